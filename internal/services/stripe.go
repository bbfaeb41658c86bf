package services

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeService creates checkout sessions for balance top-ups and verifies
// incoming webhook events.
type StripeService struct {
	secretKey     string
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewStripeService(secretKey, webhookSecret, successURL, cancelURL string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
	}
}

// CreateTopUpSession opens a checkout session for the given credit amount.
// The user id travels in ClientReferenceID and the amount in metadata, so the
// webhook can credit the right account without trusting the client.
func (s *StripeService) CreateTopUpSession(userID string, amountCents int64) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("$%.2f account credit", float64(amountCents)/100)),
					},
					UnitAmount: &amountCents,
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(userID),
		Metadata: map[string]string{
			"amount_cents": fmt.Sprintf("%d", amountCents),
		},
	}

	return session.New(params)
}

// VerifyWebhook checks the signature and decodes the event payload.
func (s *StripeService) VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signatureHeader, s.webhookSecret)
}
