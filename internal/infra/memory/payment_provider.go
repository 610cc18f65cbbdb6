package memory

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"crqbank/internal/domain"
	"github.com/google/uuid"
)

// PaymentProvider is a local stand-in for the checkout provider. Checkouts
// it creates redirect straight back to returnURL and report as paid.
type PaymentProvider struct {
	returnURL string

	mu        sync.Mutex
	checkouts map[string]domain.CheckoutStatus
}

func NewPaymentProvider(returnURL string) *PaymentProvider {
	return &PaymentProvider{returnURL: returnURL, checkouts: make(map[string]domain.CheckoutStatus)}
}

func (p *PaymentProvider) CreateCheckoutSession(_ context.Context, identity domain.Identity) (string, error) {
	ref := "cs_local_" + uuid.NewString()
	p.mu.Lock()
	p.checkouts[ref] = domain.CheckoutStatus{Reference: ref, Paid: true, UserID: identity.UserID, Email: identity.Email}
	p.mu.Unlock()

	u, err := url.Parse(p.returnURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("session_id", ref)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *PaymentProvider) RetrieveSession(_ context.Context, reference string) (domain.CheckoutStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status, ok := p.checkouts[reference]
	if !ok {
		return domain.CheckoutStatus{}, errors.New("no such checkout session")
	}
	return status, nil
}
