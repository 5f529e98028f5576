package payments

import (
	"context"
	"fmt"
	"os"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeClient wraps stripe-go PaymentIntents for the booking payment flow:
// a manual-capture hold when the driver accepts, captured on completion.
type StripeClient struct {
	currency string
}

// NewStripeClient initializes the stripe client with the STRIPE_API_KEY env var.
func NewStripeClient() *StripeClient {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	currency := os.Getenv("STRIPE_CURRENCY")
	if currency == "" {
		currency = "usd"
	}
	return &StripeClient{currency: currency}
}

// Hold creates a manual-capture PaymentIntent for the booking price and
// returns its ID as the payment reference.
func (s *StripeClient) Hold(ctx context.Context, bookingID uint, price float64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(price * 100)),
		Currency:      stripe.String(s.currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.AddMetadata("booking_id", fmt.Sprintf("%d", bookingID))

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent.
func (s *StripeClient) Capture(ctx context.Context, ref string) error {
	_, err := paymentintent.Capture(ref, nil)
	return err
}
