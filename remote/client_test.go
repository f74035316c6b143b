package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/models"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
)

func testClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 2 * time.Second},
	}
}

func entryFor(collection models.Collection, op models.Operation) *models.OutboxEntry {
	return &models.OutboxEntry{
		OperationId: "op-123",
		Collection:  collection,
		Operation:   op,
		EntityId:    "e-1",
		Payload:     []byte(`{"stock":"5"}`),
	}
}

func TestPushDerivesMethodAndPath(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	client := testClient(srv.URL)

	cases := []struct {
		collection models.Collection
		op         models.Operation
		method     string
		path       string
	}{
		{models.CollectionProducts, models.OperationCreate, http.MethodPost, "/products"},
		{models.CollectionProducts, models.OperationUpdate, http.MethodPut, "/products/e-1"},
		{models.CollectionProducts, models.OperationDelete, http.MethodDelete, "/products/e-1"},
		{models.CollectionPosSales, models.OperationCreate, http.MethodPost, "/pos/sales"},
		{models.CollectionStockMoves, models.OperationCreate, http.MethodPost, "/stock-moves"},
	}
	for _, c := range cases {
		if err := client.Push(context.Background(), entryFor(c.collection, c.op)); err != nil {
			t.Fatalf("push %s/%s: %v", c.collection, c.op, err)
		}
		if gotMethod != c.method || gotPath != c.path {
			t.Fatalf("%s/%s hit %s %s, want %s %s", c.collection, c.op, gotMethod, gotPath, c.method, c.path)
		}
	}
}

func TestPushSendsIdempotencyAndAuthHeaders(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()
	client := testClient(srv.URL)

	ctx := utils.SetTokenInContext(context.Background(), "token-abc")
	if err := client.Push(ctx, entryFor(models.CollectionProducts, models.OperationCreate)); err != nil {
		t.Fatalf("push: %v", err)
	}

	if got := gotHeaders.Get("X-Operation-Id"); got != "op-123" {
		t.Fatalf("X-Operation-Id = %q, want op-123", got)
	}
	if got := gotHeaders.Get("X-Idempotency-Key"); got != "op-123" {
		t.Fatalf("X-Idempotency-Key = %q, want op-123", got)
	}
	if got := gotHeaders.Get("Authorization"); got != "Bearer token-abc" {
		t.Fatalf("Authorization = %q", got)
	}
	if got := gotHeaders.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
}

func TestPushMapsConflictResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"id":"e-1","stock":"9"}`))
	}))
	defer srv.Close()
	client := testClient(srv.URL)

	err := client.Push(context.Background(), entryFor(models.CollectionProducts, models.OperationUpdate))
	var conflictErr *utils.ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if string(conflictErr.ServerSnapshot) != `{"id":"e-1","stock":"9"}` {
		t.Fatalf("server snapshot = %s", conflictErr.ServerSnapshot)
	}
}

func TestPushMapsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()
	client := testClient(srv.URL)

	err := client.Push(context.Background(), entryFor(models.CollectionProducts, models.OperationUpdate))
	var statusErr *utils.RemoteStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want RemoteStatusError", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", statusErr.StatusCode)
	}
}

func TestPushMapsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on
	client := testClient(srv.URL)

	err := client.Push(context.Background(), entryFor(models.CollectionProducts, models.OperationCreate))
	var netErr *utils.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
}

func TestPingReportsConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("ping hit %s, want /health", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := testClient(srv.URL).Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	srv.Close()
	if err := testClient(srv.URL).Ping(context.Background()); err == nil {
		t.Fatal("ping against a dead server must fail")
	}
}
