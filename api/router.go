package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/battswap/boothd/core/audit"
	"github.com/battswap/boothd/core/inventory"
	"github.com/battswap/boothd/core/logger"
	"github.com/battswap/boothd/core/model"
	"github.com/battswap/boothd/core/telemetry"
)

// BoothService is the booth surface the API exposes. booth.Manager
// implements it.
type BoothService interface {
	AddBooth(b inventory.Booth) error
	Booths() []inventory.BoothSummary
	BoothStatus(boothID string) ([]telemetry.SlotView, error)
	AddSlot(ref model.SlotRef) error
	DeleteSlot(ref model.SlotRef) error
	SendCommand(ctx context.Context, ref model.SlotRef, name model.CommandName, params map[string]any) error
	SetAdminStatus(ref model.SlotRef, disabled bool) error
	ResetSlot(ctx context.Context, ref model.SlotRef) error
	ResetAllSlots(ctx context.Context, boothID string) error
}

// SessionService is the session surface the API exposes.
// session.Orchestrator implements it.
type SessionService interface {
	StartDeposit(ctx context.Context, userID, boothID string) (model.Session, error)
	StartWithdrawal(ctx context.Context, userID string) (model.Session, error)
	ConfirmPayment(ctx context.Context, sessionID string) error
	OpenForCollection(ctx context.Context, sessionID string) error
	CancelSession(ctx context.Context, sessionID string) error
	Session(id string) (model.Session, error)
}

// Deps carries the services the router exposes.
type Deps struct {
	Booths   BoothService
	Sessions SessionService
	Audit    audit.Store
	// AuditToken protects GET /audit. Empty disables the endpoint.
	AuditToken string
	Log        logger.Logger
}

// NewRouter builds the HTTP surface.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	b := &boothHandler{svc: deps.Booths, log: deps.Log}
	booths := r.Group("/booths")
	booths.POST("", b.create)
	booths.GET("", b.list)
	booths.GET("/:booth/status", b.status)
	booths.POST("/:booth/reset", b.resetAll)
	booths.POST("/:booth/slots", b.addSlot)
	booths.DELETE("/:booth/slots/:slot", b.deleteSlot)
	booths.POST("/:booth/slots/:slot/command", b.command)
	booths.PUT("/:booth/slots/:slot/status", b.setStatus)
	booths.POST("/:booth/slots/:slot/reset", b.reset)

	s := &sessionHandler{svc: deps.Sessions, log: deps.Log}
	sessions := r.Group("/sessions")
	sessions.POST("/deposit", s.startDeposit)
	sessions.POST("/withdrawal", s.startWithdrawal)
	sessions.GET("/:id", s.get)
	sessions.POST("/:id/pay", s.pay)
	sessions.POST("/:id/open", s.open)
	sessions.POST("/:id/cancel", s.cancel)

	if deps.Audit != nil && deps.AuditToken != "" {
		a := &auditHandler{store: deps.Audit, token: deps.AuditToken}
		r.GET("/audit", a.query)
	}

	return r
}
