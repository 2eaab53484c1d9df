package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v78"
)

func TestFormatCardDisplay(t *testing.T) {
	tests := []struct {
		name  string
		brand string
		last4 string
		want  string
	}{
		{"brand and last4", "visa", "4242", "Visa ****4242"},
		{"already capitalized", "Mastercard", "4444", "Mastercard ****4444"},
		{"no brand", "", "4242", " ****4242"},
		{"no last4", "visa", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCardDisplay(tt.brand, tt.last4))
		})
	}
}

func TestFormatCard(t *testing.T) {
	assert.Empty(t, formatCard(nil))
	assert.Empty(t, formatCard(&stripe.PaymentMethod{}))
	assert.Equal(t, "Visa ****4242", formatCard(&stripe.PaymentMethod{
		Card: &stripe.PaymentMethodCard{
			Brand: stripe.PaymentMethodCardBrandVisa,
			Last4: "4242",
		},
	}))
}
