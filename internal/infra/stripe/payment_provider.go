package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"crqbank/internal/domain"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// EventCheckoutCompleted is the webhook event that confirms a payment.
const EventCheckoutCompleted = "checkout.session.completed"

// Config holds the Stripe Checkout settings.
type Config struct {
	SecretKey     string
	PriceID       string
	WebhookSecret string
	// SuccessURL receives ?session_id={CHECKOUT_SESSION_ID} on return.
	SuccessURL string
	CancelURL  string
}

// PaymentProvider creates and verifies Stripe Checkout sessions.
type PaymentProvider struct {
	api *client.API
	cfg Config
}

func NewPaymentProvider(cfg Config) *PaymentProvider {
	return &PaymentProvider{api: client.New(cfg.SecretKey, nil), cfg: cfg}
}

func (p *PaymentProvider) CreateCheckoutSession(ctx context.Context, identity domain.Identity) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(identity.UserID),
		CustomerEmail:     stripe.String(identity.Email),
		SuccessURL:        stripe.String(successURL(p.cfg.SuccessURL)),
		CancelURL:         stripe.String(p.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.cfg.PriceID), Quantity: stripe.Int64(1)},
		},
	}
	params.Context = ctx
	cs, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe checkout: %w", err)
	}
	return cs.URL, nil
}

func (p *PaymentProvider) RetrieveSession(ctx context.Context, reference string) (domain.CheckoutStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := p.api.CheckoutSessions.Get(reference, params)
	if err != nil {
		return domain.CheckoutStatus{}, fmt.Errorf("stripe retrieve: %w", err)
	}
	return statusOf(cs), nil
}

// ParseWebhook verifies the signature and extracts the checkout outcome.
// ok is false for events other than a completed checkout.
func (p *PaymentProvider) ParseWebhook(payload []byte, signature string) (status domain.CheckoutStatus, ok bool, err error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.CheckoutStatus{}, false, fmt.Errorf("verify webhook: %w", err)
	}
	if string(event.Type) != EventCheckoutCompleted {
		return domain.CheckoutStatus{}, false, nil
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return domain.CheckoutStatus{}, false, fmt.Errorf("decode checkout session: %w", err)
	}
	return statusOf(&cs), true, nil
}

func statusOf(cs *stripe.CheckoutSession) domain.CheckoutStatus {
	status := domain.CheckoutStatus{
		Reference: cs.ID,
		Paid:      cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		UserID:    cs.ClientReferenceID,
		Email:     cs.CustomerEmail,
	}
	if status.Email == "" && cs.CustomerDetails != nil {
		status.Email = cs.CustomerDetails.Email
	}
	return status
}

func successURL(base string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "session_id={CHECKOUT_SESSION_ID}"
}
