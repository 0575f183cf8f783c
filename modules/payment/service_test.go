package payment

import (
	"context"
	"errors"
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v78"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		amount float64
		expect int64
	}{
		{1, 100},
		{10.50, 1050},
		{0.01, 1},
		{19.99, 1999},
		{0.1, 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expect, toMinorUnits(tt.amount), "amount %v", tt.amount)
	}
}

func TestClassifyProviderError(t *testing.T) {
	err := classifyProviderError(&stripe.Error{HTTPStatusCode: http.StatusUnauthorized, Msg: "Invalid API Key provided"})
	assert.ErrorIs(t, err, ErrInvalidKey)

	err = classifyProviderError(&stripe.Error{HTTPStatusCode: http.StatusPaymentRequired, Msg: "Your card was declined."})
	var providerErr *ProviderError
	assert.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "Your card was declined.", providerErr.Message)

	// Transport-level failures still resolve to a provider error
	err = classifyProviderError(errors.New("connection refused"))
	assert.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "connection refused", providerErr.Message)
}

func TestCreateRejectsInvalidAmounts(t *testing.T) {
	// The settings store is never touched for invalid amounts, so a nil one is fine.
	s := &Intents{}

	for _, amount := range []float64{0, -5, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := s.Create(context.Background(), amount)
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %v", amount)
	}
}
