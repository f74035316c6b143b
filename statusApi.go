package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/events"
	"bitbucket.org/mmdatafocus/setledger_offline/models"
	"bitbucket.org/mmdatafocus/setledger_offline/syncengine"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"bitbucket.org/mmdatafocus/setledger_offline/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// runStatusAPI serves the loopback HTTP surface the local UI talks to. It is
// not the sync transport; it only exposes store state and manual triggers.
func runStatusAPI(ctx context.Context, engine *syncengine.Engine, bus *events.Bus) {
	logger := config.GetLogger()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Content-Type"},
	}))

	// Request contexts inherit the agent's org/device scope.
	scoped := func(c *gin.Context) context.Context {
		return withAgentScope(ctx, c.Request.Context())
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/status/sync", func(c *gin.Context) {
		status, err := models.GetSyncStatus(scoped(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	r.POST("/sync/force", func(c *gin.Context) {
		synced, failed, err := engine.ForceSync(scoped(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"synced": synced, "failed": failed})
	})

	r.GET("/conflicts", func(c *gin.Context) {
		filter := models.ConflictFilter{
			Status:   models.ConflictStatus(c.Query("status")),
			Severity: models.ConflictSeverity(c.Query("severity")),
		}
		conflicts, err := models.GetConflicts(scoped(c), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, conflicts)
	})

	r.POST("/conflicts/:id/resolve", func(c *gin.Context) {
		var body struct {
			Action models.ResolutionAction `json:"action" binding:"required"`
			Merged *models.Product         `json:"merged"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := workflow.ResolveConflict(scoped(c), c.Param("id"), body.Action, body.Merged); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"resolved": true})
	})

	r.POST("/conflicts/auto-resolve", func(c *gin.Context) {
		resolved, err := workflow.AutoResolveConflicts(scoped(c), bus)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"resolved": resolved})
	})

	r.POST("/outbox/:id/requeue", func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
			return
		}
		if err := models.RequeueOutboxEntry(scoped(c), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"requeued": true})
	})

	r.GET("/products", func(c *gin.Context) {
		products, err := models.GetProducts(scoped(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, products)
	})

	r.POST("/products", func(c *gin.Context) {
		var body models.NewProduct
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		product, err := models.CreateProduct(scoped(c), &body)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	})

	r.PUT("/products/:id", func(c *gin.Context) {
		var body models.NewProduct
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		product, err := models.UpdateProduct(scoped(c), c.Param("id"), &body)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	})

	r.GET("/invoices", func(c *gin.Context) {
		invoices, err := models.GetInvoices(scoped(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoices)
	})

	r.GET("/invoices/:id", func(c *gin.Context) {
		invoice, err := models.GetInvoice(scoped(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		lines, err := models.GetInvoiceLines(scoped(c), invoice.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"invoice": invoice, "lines": lines})
	})

	r.GET("/journal", func(c *gin.Context) {
		entries, err := models.GetJournalEntries(scoped(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	})

	r.GET("/stock/moves", func(c *gin.Context) {
		moves, err := models.GetStockMoves(scoped(c), c.Query("product_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, moves)
	})

	r.GET("/session", func(c *gin.Context) {
		token, _ := utils.GetTokenFromContext(ctx)
		claims, err := utils.DeviceTokenValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"org_id": claims.OrgId, "device_id": claims.DeviceId, "expires_at": claims.ExpiresAt})
	})

	r.GET("/stock/available/:productId", func(c *gin.Context) {
		available, err := models.AvailableStock(scoped(c), c.Param("productId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"product_id": c.Param("productId"), "available": available})
	})

	r.GET("/reservations", func(c *gin.Context) {
		filter := models.ReservationFilter{
			ProductId: c.Query("product_id"),
			Status:    models.ReservationStatus(c.Query("status")),
		}
		reservations, err := models.GetReservations(scoped(c), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reservations)
	})

	r.POST("/reservations", func(c *gin.Context) {
		var body workflow.NewReservation
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		reservation, err := workflow.ReserveStock(scoped(c), &body)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, reservation)
	})

	r.POST("/reservations/:id/confirm", func(c *gin.Context) {
		var body struct {
			ActualQuantity *decimal.Decimal `json:"actual_quantity"`
		}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if err := workflow.ConfirmSale(scoped(c), c.Param("id"), body.ActualQuantity); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"confirmed": true})
	})

	r.POST("/reservations/:id/release", func(c *gin.Context) {
		if err := workflow.ReleaseReservation(scoped(c), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"released": true})
	})

	r.POST("/sales", func(c *gin.Context) {
		var body workflow.NewPosSale
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		invoice, err := workflow.ProcessSale(scoped(c), &body)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, invoice)
	})

	addr := config.StatusAPIAddress()
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	logger.WithField("addr", addr).Info("status api listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		config.LogError(logger, "main", "runStatusAPI", "listen", addr, err)
	}
}

// withAgentScope copies the agent's org/device/token scope onto the request
// context so cancellation follows the request while identity follows the agent.
func withAgentScope(agent context.Context, req context.Context) context.Context {
	if v, ok := utils.GetOrgIdFromContext(agent); ok {
		req = utils.SetOrgIdInContext(req, v)
	}
	if v, ok := utils.GetDeviceIdFromContext(agent); ok {
		req = utils.SetDeviceIdInContext(req, v)
	}
	if v, ok := utils.GetTokenFromContext(agent); ok {
		req = utils.SetTokenInContext(req, v)
	}
	return req
}

func respondError(c *gin.Context, err error) {
	switch {
	case err == utils.ErrorRecordNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
