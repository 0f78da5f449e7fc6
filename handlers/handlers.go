package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"speaktoheaven/config"
	"speaktoheaven/logger"
	"speaktoheaven/services"
)

type Deps struct {
	Log           *logger.Logger
	Features      config.Features
	Personas      services.PersonaCatalog
	Messages      services.MessageStore
	Accounts      services.AccountStore
	Auth          *services.AuthService
	Chat          *services.ChatService
	Operator      *services.OperatorService
	Billing       *services.BillingService
	Resolver      *services.EntitlementResolver
	WebhookSecret string
}

// Handlers holds the services behind every route.
type Handlers struct {
	log           *logger.Logger
	features      config.Features
	personas      services.PersonaCatalog
	messages      services.MessageStore
	accounts      services.AccountStore
	auth          *services.AuthService
	chat          *services.ChatService
	operator      *services.OperatorService
	billing       *services.BillingService
	resolver      *services.EntitlementResolver
	webhookSecret string
}

func New(d Deps) *Handlers {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &Handlers{
		log:           d.Log.With("component", "handlers"),
		features:      d.Features,
		personas:      d.Personas,
		messages:      d.Messages,
		accounts:      d.Accounts,
		auth:          d.Auth,
		chat:          d.Chat,
		operator:      d.Operator,
		billing:       d.Billing,
		resolver:      d.Resolver,
		webhookSecret: d.WebhookSecret,
	}
}

type apiError struct {
	Status  int
	Kind    string
	Message string
}

// classify maps service errors onto the HTTP error kinds clients switch on.
func classify(err error) apiError {
	switch {
	case errors.Is(err, services.ErrInvalidPersona):
		return apiError{http.StatusBadRequest, "invalid-persona", "Unknown persona"}
	case errors.Is(err, services.ErrEmptyMessage):
		return apiError{http.StatusBadRequest, "invalid-request", "Message is empty"}
	case errors.Is(err, services.ErrInvalidRequest):
		return apiError{http.StatusBadRequest, "invalid-request", err.Error()}
	case errors.Is(err, services.ErrBadCredentials):
		return apiError{http.StatusUnauthorized, "unauthenticated", "Invalid credentials"}
	case errors.Is(err, services.ErrFreeQuotaExceeded):
		return apiError{http.StatusPaymentRequired, "free-quota-exceeded", "Free messages used up"}
	case errors.Is(err, services.ErrNoCredits):
		return apiError{http.StatusPaymentRequired, "no-credits", "Out of credits"}
	case errors.Is(err, services.ErrCompletionFailed):
		return apiError{http.StatusBadGateway, "completion-service-error", "The reply could not be generated"}
	case errors.Is(err, services.ErrEmailTaken):
		return apiError{http.StatusConflict, "conflict", "Email already exists"}
	case errors.Is(err, services.ErrNoSubscription):
		return apiError{http.StatusConflict, "no-subscription", "No subscription on file"}
	case errors.Is(err, services.ErrBillingDisabled):
		return apiError{http.StatusServiceUnavailable, "billing-unavailable", "Billing not configured"}
	case errors.Is(err, services.ErrNotFound):
		return apiError{http.StatusNotFound, "not-found", "Not found"}
	default:
		return apiError{http.StatusInternalServerError, "internal", "Internal error"}
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.FullPath(), "kind", e.Kind, "error", err)
	}
	c.JSON(e.Status, gin.H{"error": e.Message, "error_kind": e.Kind})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "error_kind": "invalid-request"})
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) ListPersonas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"personas": h.personas.List()})
}
