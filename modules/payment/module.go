package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/paydesk/paydesk/engine"
	"github.com/paydesk/paydesk/engine/settings"
	"github.com/paydesk/paydesk/modules/auth"
	"golang.org/x/time/rate"
)

type Module struct {
	settings    *settings.Store
	intents     *Intents
	eventLogger *engine.EventLogger

	// payLimiter throttles the public payment endpoint so an anonymous
	// caller can't hammer the provider with intent creations.
	payLimiter *rate.Limiter
}

func New(store *settings.Store, eventLogger *engine.EventLogger, payLimiter *rate.Limiter) *Module {
	m := &Module{
		settings:    store,
		intents:     NewIntents(store),
		eventLogger: eventLogger,
		payLimiter:  payLimiter,
	}

	store.Watch(context.Background(), settingsNamespace, settingsKeySecret, func(value string) {
		if value == "" {
			slog.Warn("no stripe secret key is configured - payment intent creation will fail until one is saved")
		}
	})

	return m
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/config", router.WithSuperAdmin(m.handleGetConfig))
	router.Handle("PUT", "/config", router.WithSuperAdmin(m.handlePutConfig))
	router.Handle("POST", "/pay", m.handleCreatePayment)
}

type configResponse struct {
	StripeKey *string `json:"stripeKey"`
}

func (m *Module) handleGetConfig(r *http.Request, ps httprouter.Params) engine.Response {
	key, err := m.settings.Get(r.Context(), settingsNamespace, settingsKeySecret)
	if err != nil {
		return engine.Error(err)
	}

	resp := &configResponse{}
	if key != "" {
		resp.StripeKey = &key
	}
	return engine.JSON(resp)
}

type putConfigRequest struct {
	StripeKey *string `json:"stripeKey"`
}

func (m *Module) handlePutConfig(r *http.Request, ps httprouter.Params) engine.Response {
	req := &putConfigRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.StripeKey == nil || *req.StripeKey == "" {
		return engine.ClientErrorf("stripeKey is required and must be a non-empty string")
	}

	if err := m.settings.Set(r.Context(), settingsNamespace, settingsKeySecret, *req.StripeKey); err != nil {
		return engine.Error(err)
	}

	principalID := auth.GetPrincipalID(r.Context())
	m.eventLogger.LogEvent(r.Context(), "stripe", principalID, "ConfigUpdated", "", true, "secret key saved")
	return engine.JSON(map[string]string{"message": "Stripe key saved"})
}

type payRequest struct {
	Amount *float64 `json:"amount"`
}

type payResponse struct {
	PaymentIntent any `json:"paymentIntent"`
}

func (m *Module) handleCreatePayment(r *http.Request, ps httprouter.Params) engine.Response {
	if !m.payLimiter.Allow() {
		return engine.TooManyRequests()
	}

	req := &payRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.Amount == nil {
		return engine.ClientErrorf("%s", ErrInvalidAmount)
	}

	intent, err := m.intents.Create(r.Context(), *req.Amount)
	if err != nil {
		return m.paymentError(r, err)
	}

	m.eventLogger.LogEvent(r.Context(), "stripe", auth.GetPrincipalID(r.Context()), "IntentCreated", intent.ID, true, fmt.Sprintf("amount=%d currency=%s", intent.Amount, intent.Currency))
	return engine.JSON(&payResponse{PaymentIntent: intent})
}

// paymentError maps the service's error taxonomy onto HTTP responses.
// Anything the caller can act on is a 400; only store failures become 500s.
func (m *Module) paymentError(r *http.Request, err error) engine.Response {
	var providerErr *ProviderError
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrNotConfigured):
		return engine.ClientErrorf("%s", err)
	case errors.Is(err, ErrInvalidKey):
		m.eventLogger.LogEvent(r.Context(), "stripe", 0, "APIError", "", false, "provider rejected the configured secret key")
		return engine.ClientErrorf("%s", err)
	case errors.As(err, &providerErr):
		m.eventLogger.LogEvent(r.Context(), "stripe", 0, "APIError", "", false, providerErr.Message)
		return engine.ClientErrorf("%s", providerErr.Message)
	default:
		return engine.Error(err)
	}
}
