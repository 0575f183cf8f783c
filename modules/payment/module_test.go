package payment

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/paydesk/paydesk/engine"
	"github.com/paydesk/paydesk/engine/settings"
	"github.com/paydesk/paydesk/modules/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"golang.org/x/time/rate"
)

func newTestModule(t *testing.T) (*Module, *sql.DB) {
	db := engine.OpenTestDB(t)
	m := New(settings.New(db), engine.NewEventLogger(db), rate.NewLimiter(rate.Inf, 0))
	return m, db
}

func newTestServer(t *testing.T, m *Module) *httpexpect.Expect {
	router := engine.NewRouter()
	m.AttachRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return httpexpect.Default(t, server.URL)
}

// stubStripe points the intent service at a local server standing in for the
// Stripe API and returns a counter of requests it received.
func stubStripe(t *testing.T, m *Module, handler http.HandlerFunc) *atomic.Int64 {
	calls := &atomic.Int64{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:           stripe.String(server.URL),
		LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	m.intents.backends = &stripe.Backends{API: backend}
	return calls
}

func TestConfigEndpoints(t *testing.T) {
	m, db := newTestModule(t)
	e := newTestServer(t, m)

	// Nothing configured yet
	e.GET("/config").Expect().Status(http.StatusOK).JSON().Object().Value("stripeKey").IsNull()

	// Invalid bodies are rejected without altering stored state
	for _, body := range []string{`{}`, `{"stripeKey":""}`, `{"stripeKey":123}`, `{"stripeKey":null}`, `not json`} {
		e.PUT("/config").WithBytes([]byte(body)).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object().Value("error").Object().Value("message").IsEqual("stripeKey is required and must be a non-empty string")
	}
	e.GET("/config").Expect().Status(http.StatusOK).JSON().Object().Value("stripeKey").IsNull()

	e.PUT("/config").WithJSON(map[string]string{"stripeKey": "sk_test_abc"}).
		Expect().
		Status(http.StatusOK).JSON().Object().Value("message").IsEqual("Stripe key saved")

	e.GET("/config").Expect().Status(http.StatusOK).JSON().Object().Value("stripeKey").IsEqual("sk_test_abc")

	// Saves are recorded in the event log
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM payment_events WHERE event_type = 'ConfigUpdated'").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestConfigEndpointsRequireSuperAdmin(t *testing.T) {
	m, db := newTestModule(t)

	issuer := engine.NewTokenIssuer(filepath.Join(t.TempDir(), "auth.pem"))
	authModule, err := auth.New(db, issuer, "root@paydesk.local")
	require.NoError(t, err)

	router := engine.NewRouter()
	router.Authenticator = authModule
	authModule.AttachRoutes(router)
	m.AttachRoutes(router)
	server := httptest.NewServer(router)
	defer server.Close()

	e := httpexpect.Default(t, server.URL)

	e.GET("/config").Expect().Status(http.StatusUnauthorized)
	e.PUT("/config").WithJSON(map[string]string{"stripeKey": "sk_test_abc"}).
		Expect().Status(http.StatusUnauthorized)

	adminToken, err := authModule.SignToken(1, time.Hour)
	require.NoError(t, err)

	// Mint a principal without any privileged role
	created := e.POST("/principals").
		WithHeader("Authorization", "Bearer "+adminToken).
		WithJSON(map[string]any{"email": "editor@paydesk.local", "roles": []string{"editor"}}).
		Expect().Status(http.StatusOK).JSON().Object()
	editorToken, err := authModule.SignToken(int64(created.Value("id").Number().Raw()), time.Hour)
	require.NoError(t, err)

	e.GET("/config").WithHeader("Authorization", "Bearer "+editorToken).
		Expect().Status(http.StatusForbidden)

	e.PUT("/config").WithHeader("Authorization", "Bearer "+adminToken).
		WithJSON(map[string]string{"stripeKey": "sk_test_abc"}).
		Expect().Status(http.StatusOK)

	e.GET("/config").WithHeader("Authorization", "Bearer "+adminToken).
		Expect().Status(http.StatusOK).JSON().Object().Value("stripeKey").IsEqual("sk_test_abc")

	// The payment endpoint stays public - no token required
	e.POST("/pay").WithJSON(map[string]any{"amount": -5}).
		Expect().Status(http.StatusBadRequest)
}

func TestPayValidation(t *testing.T) {
	m, _ := newTestModule(t)
	e := newTestServer(t, m)

	require.NoError(t, m.settings.Set(context.Background(), settingsNamespace, settingsKeySecret, "sk_test_abc"))
	calls := stubStripe(t, m, func(w http.ResponseWriter, r *http.Request) {
		t.Error("the provider should never be called for invalid amounts")
	})

	for _, body := range []string{`{}`, `{"amount":"abc"}`, `{"amount":-5}`, `{"amount":0}`, `not json`} {
		e.POST("/pay").WithBytes([]byte(body)).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object().Value("error").Object().Value("message").IsEqual("Amount is required and must be a positive number")
	}
	assert.Equal(t, int64(0), calls.Load())
}

func TestPayWithoutConfiguredKey(t *testing.T) {
	m, _ := newTestModule(t)
	e := newTestServer(t, m)

	calls := stubStripe(t, m, func(w http.ResponseWriter, r *http.Request) {
		t.Error("the provider should never be called without a configured key")
	})

	e.POST("/pay").WithJSON(map[string]any{"amount": 10.50}).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().Value("error").Object().Value("message").IsEqual("API key is not configured")
	assert.Equal(t, int64(0), calls.Load())
}

func TestPaySuccess(t *testing.T) {
	m, db := newTestModule(t)
	e := newTestServer(t, m)

	require.NoError(t, m.settings.Set(context.Background(), settingsNamespace, settingsKeySecret, "sk_test_abc"))
	stubStripe(t, m, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_abc", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "1050", r.FormValue("amount"))
		assert.Equal(t, "usd", r.FormValue("currency"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":1050,"currency":"usd","status":"requires_payment_method","client_secret":"pi_123_secret"}`))
	})

	intent := e.POST("/pay").WithJSON(map[string]any{"amount": 10.50}).
		Expect().
		Status(http.StatusOK).JSON().Object().Value("paymentIntent").Object()
	intent.Value("id").IsEqual("pi_123")
	intent.Value("amount").IsEqual(1050)
	intent.Value("currency").IsEqual("usd")
	intent.Value("status").IsEqual("requires_payment_method")

	var externalID string
	require.NoError(t, db.QueryRow("SELECT external_id FROM payment_events WHERE event_type = 'IntentCreated'").Scan(&externalID))
	assert.Equal(t, "pi_123", externalID)
}

func TestPayProviderErrors(t *testing.T) {
	m, db := newTestModule(t)
	e := newTestServer(t, m)
	require.NoError(t, m.settings.Set(context.Background(), settingsNamespace, settingsKeySecret, "sk_test_bad"))

	t.Run("invalid credentials", func(t *testing.T) {
		stubStripe(t, m, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid API Key provided: sk_test_bad"}}`))
		})

		e.POST("/pay").WithJSON(map[string]any{"amount": 10}).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object().Value("error").Object().Value("message").IsEqual("Invalid API key")
	})

	t.Run("declined", func(t *testing.T) {
		stubStripe(t, m, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
		})

		e.POST("/pay").WithJSON(map[string]any{"amount": 10}).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object().Value("error").Object().Value("message").IsEqual("Your card was declined.")
	})

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM payment_events WHERE event_type = 'APIError' AND success = 0").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestPayRateLimited(t *testing.T) {
	db := engine.OpenTestDB(t)
	m := New(settings.New(db), engine.NewEventLogger(db), rate.NewLimiter(rate.Limit(0), 0))
	e := newTestServer(t, m)

	e.POST("/pay").WithJSON(map[string]any{"amount": 10}).
		Expect().
		Status(http.StatusTooManyRequests)
}
