package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/models"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
)

const defaultBaseURL = "http://localhost:3000/api"

// Pusher transmits one outbox entry to the server. The sync engine depends on
// this interface so tests can swap in an httptest server or a stub.
type Pusher interface {
	Push(ctx context.Context, entry *models.OutboxEntry) error
	Ping(ctx context.Context) error
}

// Client talks to the central inventory API over REST.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient() *Client {
	base := strings.TrimSpace(os.Getenv("SYNC_API_BASE_URL"))
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(base, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// endpoint derives method and URL from the entry's collection and operation:
// create POSTs the resource, update PUTs and delete DELETEs /{resource}/{id}.
func (c *Client) endpoint(entry *models.OutboxEntry) (string, string, error) {
	resource := entry.Collection.ResourcePath()
	if resource == "" {
		return "", "", utils.NewValidationError("collection", "unknown collection")
	}
	switch entry.Operation {
	case models.OperationCreate:
		return http.MethodPost, fmt.Sprintf("%s/%s", c.BaseURL, resource), nil
	case models.OperationUpdate:
		return http.MethodPut, fmt.Sprintf("%s/%s/%s", c.BaseURL, resource, entry.EntityId), nil
	case models.OperationDelete:
		return http.MethodDelete, fmt.Sprintf("%s/%s/%s", c.BaseURL, resource, entry.EntityId), nil
	}
	return "", "", utils.NewValidationError("operation", "unknown operation")
}

// Push replays one local mutation against the server. The OperationId rides
// along as the idempotency key on every attempt, so a retry after a lost
// response cannot double-apply.
func (c *Client) Push(ctx context.Context, entry *models.OutboxEntry) error {
	method, url, err := c.endpoint(entry)
	if err != nil {
		return err
	}

	var body io.Reader
	if len(entry.Payload) > 0 && method != http.MethodDelete {
		body = bytes.NewReader(entry.Payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Operation-Id", entry.OperationId)
	req.Header.Set("X-Idempotency-Key", entry.OperationId)
	if token, ok := utils.GetTokenFromContext(ctx); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &utils.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode == http.StatusConflict {
		return &utils.ConflictError{ServerSnapshot: raw}
	}
	return &utils.RemoteStatusError{StatusCode: resp.StatusCode, Body: string(raw)}
}

// Ping is the cheap connectivity probe used by the scheduler.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &utils.NetworkError{Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return &utils.RemoteStatusError{StatusCode: resp.StatusCode, Body: ""}
	}
	return nil
}
