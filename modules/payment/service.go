package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/google/uuid"
	"github.com/paydesk/paydesk/engine/settings"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const (
	// settingsNamespace scopes this module's records in the settings store.
	settingsNamespace = "stripe-demo"
	settingsKeySecret = "secret_key"

	// Amounts are accepted in major units and converted to minor units for
	// the provider. Currency is fixed - multi-currency is out of scope.
	currency        = "usd"
	minorUnitsRatio = 100
)

// Intents creates payment intents with the secret key held in the settings
// store. The key is read on every call so rotations take effect immediately.
type Intents struct {
	settings *settings.Store

	// backends overrides the stripe API endpoint. Nil means the real thing;
	// tests point it at a local stub server.
	backends *stripe.Backends
}

func NewIntents(store *settings.Store) *Intents {
	return &Intents{settings: store}
}

// Create validates the amount, loads the configured secret key, and asks the
// provider for a new payment intent. The provider's object is returned
// unmodified. No provider call is made for invalid amounts or when no key is
// configured.
func (s *Intents) Create(ctx context.Context, amount float64) (*stripe.PaymentIntent, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, ErrInvalidAmount
	}

	key, err := s.settings.Get(ctx, settingsNamespace, settingsKeySecret)
	if err != nil {
		return nil, fmt.Errorf("loading stripe secret key: %w", err)
	}
	if key == "" {
		return nil, ErrNotConfigured
	}

	// A per-call client rather than a process-global key: the key is tenant
	// state and can change between requests.
	sc := &client.API{}
	sc.Init(key, s.backends)

	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: stripe.String(uuid.NewString()),
		},
		Amount:   stripe.Int64(toMinorUnits(amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}

	intent, err := sc.PaymentIntents.New(params)
	if err != nil {
		return nil, classifyProviderError(err)
	}
	return intent, nil
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * minorUnitsRatio))
}

// classifyProviderError maps provider failures onto the module's error
// taxonomy. Credential rejections get their own kind so they surface as an
// actionable 400 instead of a generic server error.
func classifyProviderError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusUnauthorized {
			return ErrInvalidKey
		}
		if stripeErr.Msg != "" {
			return &ProviderError{Message: stripeErr.Msg}
		}
	}
	return &ProviderError{Message: err.Error()}
}
