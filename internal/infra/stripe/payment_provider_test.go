package stripe

import (
	"testing"

	"github.com/stripe/stripe-go/v76"
)

func TestSuccessURLCarriesPlaceholder(t *testing.T) {
	if got := successURL("https://crq.example/payment/return"); got != "https://crq.example/payment/return?session_id={CHECKOUT_SESSION_ID}" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := successURL("https://crq.example/r?x=1"); got != "https://crq.example/r?x=1&session_id={CHECKOUT_SESSION_ID}" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestStatusOf(t *testing.T) {
	status := statusOf(&stripe.CheckoutSession{
		ID:                "cs_1",
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
		ClientReferenceID: "u1",
		CustomerDetails:   &stripe.CheckoutSessionCustomerDetails{Email: "a@b.c"},
	})
	if !status.Paid || status.UserID != "u1" || status.Email != "a@b.c" {
		t.Fatalf("unexpected status %+v", status)
	}

	unpaid := statusOf(&stripe.CheckoutSession{ID: "cs_2", PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid})
	if unpaid.Paid {
		t.Fatalf("unpaid checkout reported as paid")
	}
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	p := NewPaymentProvider(Config{SecretKey: "sk_test_x", WebhookSecret: "whsec_test"})
	if _, _, err := p.ParseWebhook([]byte(`{"type":"checkout.session.completed"}`), "t=1,v1=bad"); err == nil {
		t.Fatalf("expected signature error")
	}
}
