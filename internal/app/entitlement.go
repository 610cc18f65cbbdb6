package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"crqbank/internal/domain"
	"crqbank/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// UserRepository persists accounts and their paid flag.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	Get(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	MarkPaid(ctx context.Context, id string) error
}

// PaymentProvider is the checkout collaborator (Stripe in production).
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, identity domain.Identity) (string, error)
	RetrieveSession(ctx context.Context, reference string) (domain.CheckoutStatus, error)
}

// ErrPaymentsUnavailable is returned when no checkout provider is configured.
var ErrPaymentsUnavailable = errors.New("payment provider not configured")

// UnavailablePayments refuses every checkout, so the full quiz stays blocked
// until a real provider is configured.
type UnavailablePayments struct{}

func (UnavailablePayments) CreateCheckoutSession(context.Context, domain.Identity) (string, error) {
	return "", ErrPaymentsUnavailable
}

func (UnavailablePayments) RetrieveSession(context.Context, string) (domain.CheckoutStatus, error) {
	return domain.CheckoutStatus{}, ErrPaymentsUnavailable
}

// Decision is the outcome of an entitlement check.
type Decision struct {
	Allowed        bool
	SignInRequired bool
	CheckoutURL    string
}

// EntitlementGate guards the full quiz behind a confirmed payment.
type EntitlementGate struct {
	users    UserRepository
	payments PaymentProvider
	events   EventPublisher
	timeout  time.Duration
	sf       singleflight.Group
}

func NewEntitlementGate(users UserRepository, payments PaymentProvider, events EventPublisher, timeout time.Duration) *EntitlementGate {
	if events == nil {
		events = NopPublisher{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EntitlementGate{users: users, payments: payments, events: events, timeout: timeout}
}

// Check decides whether the session may use the quiz engine. When blocked,
// the decision carries a checkout URL for the session identity. A provider
// failure yields a blocked decision without URL and the error.
func (g *EntitlementGate) Check(ctx context.Context, session *domain.Session) (Decision, error) {
	if session.Quiz == nil || session.Quiz.Mode != domain.ModeFullQuiz || session.Entitled {
		return Decision{Allowed: true}, nil
	}
	if session.Identity == nil {
		return Decision{SignInRequired: true}, nil
	}
	if g.refresh(ctx, session) {
		return Decision{Allowed: true}, nil
	}

	metrics.Entitlements.WithLabelValues("blocked").Inc()
	if session.CheckoutURL != "" {
		return Decision{CheckoutURL: session.CheckoutURL}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	url, err := g.payments.CreateCheckoutSession(ctx, *session.Identity)
	if err != nil {
		return Decision{}, fmt.Errorf("create checkout session: %w", err)
	}
	session.CheckoutURL = url
	return Decision{CheckoutURL: url}, nil
}

// Refresh re-reads the durable paid flag so that a payment confirmed elsewhere
// (another session, the webhook) is observed. It reports the new state.
func (g *EntitlementGate) Refresh(ctx context.Context, session *domain.Session) bool {
	if session.Entitled {
		return true
	}
	if session.Identity == nil {
		return false
	}
	return g.refresh(ctx, session)
}

func (g *EntitlementGate) refresh(ctx context.Context, session *domain.Session) bool {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	user, err := g.users.Get(ctx, session.Identity.UserID)
	if err != nil {
		log.Printf("entitlement lookup for %s: %v", session.Identity.UserID, err)
		return false
	}
	if user.Paid {
		session.Entitled = true
		session.CheckoutURL = ""
	}
	return user.Paid
}

// Confirm verifies a checkout reference returned by the payment flow. Only a
// paid checkout belonging to the session identity grants entitlement.
func (g *EntitlementGate) Confirm(ctx context.Context, session *domain.Session, reference string) error {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return fmt.Errorf("%w: missing checkout reference", domain.ErrPaymentVerification)
	}
	if session.Identity == nil {
		return fmt.Errorf("%w: sign in to confirm payment", domain.ErrPaymentVerification)
	}

	result, err, _ := g.sf.Do(reference, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.payments.RetrieveSession(ctx, reference)
	})
	if err != nil {
		metrics.Entitlements.WithLabelValues("verify_failed").Inc()
		return fmt.Errorf("%w: %v", domain.ErrPaymentVerification, err)
	}
	status := result.(domain.CheckoutStatus)
	if !status.Paid {
		return fmt.Errorf("%w: payment not completed yet", domain.ErrPaymentVerification)
	}
	if !belongsTo(status, *session.Identity) {
		metrics.Entitlements.WithLabelValues("verify_failed").Inc()
		return fmt.Errorf("%w: checkout belongs to another account", domain.ErrPaymentVerification)
	}

	if err := g.grant(ctx, session.Identity.UserID); err != nil {
		return err
	}
	session.Entitled = true
	session.CheckoutURL = ""
	return nil
}

// HandleCheckoutCompleted marks the user paid from an asynchronous
// provider notification.
func (g *EntitlementGate) HandleCheckoutCompleted(ctx context.Context, status domain.CheckoutStatus) error {
	if !status.Paid {
		return nil
	}
	userID := status.UserID
	if userID == "" && status.Email != "" {
		lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
		user, err := g.users.GetByEmail(lookupCtx, normalizeEmail(status.Email))
		cancel()
		if err != nil {
			return fmt.Errorf("resolve checkout owner: %w", err)
		}
		userID = user.ID
	}
	if userID == "" {
		return errors.New("checkout has no owner reference")
	}
	return g.grant(ctx, userID)
}

func (g *EntitlementGate) grant(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.users.MarkPaid(ctx, userID); err != nil {
		return fmt.Errorf("%w: mark paid: %v", domain.ErrPaymentVerification, err)
	}
	metrics.Entitlements.WithLabelValues("granted").Inc()
	if err := g.events.Publish(ctx, EventEntitlementGranted, map[string]string{"userId": userID}); err != nil {
		log.Printf("publish %s: %v", EventEntitlementGranted, err)
	}
	return nil
}

func belongsTo(status domain.CheckoutStatus, identity domain.Identity) bool {
	if status.UserID != "" {
		return status.UserID == identity.UserID
	}
	return status.Email != "" && normalizeEmail(status.Email) == identity.Email
}
