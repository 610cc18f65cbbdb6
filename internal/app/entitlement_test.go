package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"crqbank/internal/app"
	"crqbank/internal/domain"
	"crqbank/internal/infra/memory"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGateAllowsFreeTrialAndEntitled(t *testing.T) {
	gate, _, _ := newGate(t)
	ctx := context.Background()

	trial := fullQuizSession(t, domain.ModeFreeTrial)
	decision, err := gate.Check(ctx, trial)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	paid := fullQuizSession(t, domain.ModeFullQuiz)
	paid.Entitled = true
	decision, err = gate.Check(ctx, paid)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestGateStaysBlockedWithoutProvider(t *testing.T) {
	users := memory.NewUserStore()
	_, err := users.Create(context.Background(), domain.User{ID: "u1", Email: "a@b.c"})
	require.NoError(t, err)
	gate := app.NewEntitlementGate(users, app.UnavailablePayments{}, nil, time.Second)
	ctx := context.Background()
	session := signedIn(t, fullQuizSession(t, domain.ModeFullQuiz))

	decision, err := gate.Check(ctx, session)
	require.ErrorIs(t, err, app.ErrPaymentsUnavailable)
	require.False(t, decision.Allowed)
	require.Empty(t, decision.CheckoutURL)

	require.ErrorIs(t, gate.Confirm(ctx, session, "cs_local_1"), domain.ErrPaymentVerification)
	require.False(t, session.Entitled)
	user, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, user.Paid)
}

func TestGateBlocksUntilConfirmed(t *testing.T) {
	gate, _, payments := newGate(t)
	ctx := context.Background()
	session := signedIn(t, fullQuizSession(t, domain.ModeFullQuiz))

	decision, err := gate.Check(ctx, session)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.NotEmpty(t, decision.CheckoutURL)

	again, err := gate.Check(ctx, session)
	require.NoError(t, err)
	require.Equal(t, decision.CheckoutURL, again.CheckoutURL, "checkout url is reused")
	require.Equal(t, 1, payments.created)

	payments.paid = false
	require.ErrorIs(t, gate.Confirm(ctx, session, "cs_1"), domain.ErrPaymentVerification)
	require.False(t, session.Entitled)

	payments.paid = true
	require.NoError(t, gate.Confirm(ctx, session, "cs_1"))
	require.True(t, session.Entitled)

	// A brand-new session for the same identity skips the gate.
	fresh := signedIn(t, fullQuizSession(t, domain.ModeFullQuiz))
	fresh.Entitled = false
	decision, err = gate.Check(ctx, fresh)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.True(t, fresh.Entitled)
}

func TestGateNeverGrantsOnVerificationError(t *testing.T) {
	gate, users, payments := newGate(t)
	ctx := context.Background()
	session := signedIn(t, fullQuizSession(t, domain.ModeFullQuiz))

	payments.err = errors.New("provider down")
	require.ErrorIs(t, gate.Confirm(ctx, session, "cs_1"), domain.ErrPaymentVerification)
	require.False(t, session.Entitled)

	payments.err = nil
	payments.paid = true
	payments.owner = "someone-else"
	require.ErrorIs(t, gate.Confirm(ctx, session, "cs_1"), domain.ErrPaymentVerification)
	require.False(t, session.Entitled)

	user, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, user.Paid)
}

func TestGateRequiresSignIn(t *testing.T) {
	gate, _, _ := newGate(t)
	decision, err := gate.Check(context.Background(), fullQuizSession(t, domain.ModeFullQuiz))
	require.NoError(t, err)
	require.True(t, decision.SignInRequired)
	require.False(t, decision.Allowed)
}

func TestWebhookGrantIsObservedOnNextCheck(t *testing.T) {
	gate, _, _ := newGate(t)
	ctx := context.Background()
	session := signedIn(t, fullQuizSession(t, domain.ModeFullQuiz))

	require.NoError(t, gate.HandleCheckoutCompleted(ctx, domain.CheckoutStatus{Paid: true, Email: "A@B.C"}))
	decision, err := gate.Check(ctx, session)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestUserLookupsAreBounded(t *testing.T) {
	users := hangingUsers{}
	ctx := context.Background()
	session := domain.NewSession("s1", time.Now())

	auth := app.NewAuthServiceWithCost(users, bcrypt.MinCost, 20*time.Millisecond)
	require.ErrorIs(t, auth.SignIn(ctx, session, "a@b.c", "secret1"), context.DeadlineExceeded)
	require.ErrorIs(t, auth.SignUp(ctx, session, "a@b.c", "secret1"), context.DeadlineExceeded)
	require.Nil(t, session.Identity)

	gate := app.NewEntitlementGate(users, &fakePayments{}, nil, 20*time.Millisecond)
	err := gate.HandleCheckoutCompleted(ctx, domain.CheckoutStatus{Paid: true, Email: "a@b.c"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// hangingUsers blocks every call until the caller's context ends.
type hangingUsers struct{}

func (hangingUsers) Create(ctx context.Context, _ domain.User) (domain.User, error) {
	<-ctx.Done()
	return domain.User{}, ctx.Err()
}

func (hangingUsers) Get(ctx context.Context, _ string) (domain.User, error) {
	<-ctx.Done()
	return domain.User{}, ctx.Err()
}

func (hangingUsers) GetByEmail(ctx context.Context, _ string) (domain.User, error) {
	<-ctx.Done()
	return domain.User{}, ctx.Err()
}

func (hangingUsers) MarkPaid(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestAuthSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserStore()
	auth := app.NewAuthServiceWithCost(users, bcrypt.MinCost, time.Second)

	session := domain.NewSession("s1", time.Now())
	require.ErrorIs(t, auth.SignUp(ctx, session, "not-an-email", "secret1"), domain.ErrInvalidEmail)
	require.ErrorIs(t, auth.SignUp(ctx, session, "a@b.c", "123"), domain.ErrWeakPassword)
	require.NoError(t, auth.SignUp(ctx, session, " A@B.c ", "secret1"))
	require.NotNil(t, session.Identity)
	require.Equal(t, "a@b.c", session.Identity.Email)

	other := domain.NewSession("s2", time.Now())
	err := auth.SignUp(ctx, other, "a@b.c", "secret1")
	require.ErrorIs(t, err, domain.ErrEmailTaken)
	require.ErrorIs(t, err, domain.ErrAuth)

	require.ErrorIs(t, auth.SignIn(ctx, other, "a@b.c", "wrong!!"), domain.ErrInvalidCredentials)
	require.ErrorIs(t, auth.SignIn(ctx, other, "nobody@b.c", "secret1"), domain.ErrInvalidCredentials)

	require.NoError(t, users.MarkPaid(ctx, session.Identity.UserID))
	require.NoError(t, auth.SignIn(ctx, other, "a@b.c", "secret1"))
	require.True(t, other.Entitled)

	auth.SignOut(other)
	require.Nil(t, other.Identity)
	require.False(t, other.Entitled)
}

func TestStatsCumulativeAccuracy(t *testing.T) {
	ctx := context.Background()
	responses := memory.NewResponseStore()
	questions := memory.NewQuestionStore(memory.NewStaticQuestionSource(bank()))
	stats := app.NewStatsService(responses, questions, time.Second)

	base := time.Unix(500, 0)
	pattern := []bool{true, false, true, true}
	for i, ok := range pattern {
		require.NoError(t, responses.Record(ctx, domain.StoredResponse{
			UserID: "u1", QuestionID: 10 + i, IsCorrect: ok, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	session := domain.NewSession("s1", base)
	session.Identity = &domain.Identity{UserID: "u1"}
	summary, err := stats.Summary(ctx, session)
	require.NoError(t, err)
	require.True(t, summary.Persisted)
	require.Equal(t, 4, summary.Total)
	require.Equal(t, 3, summary.Correct)
	require.InDelta(t, 75, summary.Accuracy, 1e-9)
	require.Len(t, summary.Cumulative, 4)
	for i, want := range []float64{100, 50, 200.0 / 3, 75} {
		require.InDelta(t, want, summary.Cumulative[i], 1e-9)
	}
	require.Len(t, summary.Topics, 2)
	require.Equal(t, "Topic X", summary.Topics[0].Topic)
	require.Equal(t, 2, summary.Topics[0].Total)

	anon, err := stats.Summary(ctx, domain.NewSession("anon", base))
	require.NoError(t, err)
	require.Zero(t, anon.Accuracy)
	require.Empty(t, anon.Cumulative)
}

type fakePayments struct {
	created int
	paid    bool
	owner   string
	err     error
}

func (f *fakePayments) CreateCheckoutSession(_ context.Context, identity domain.Identity) (string, error) {
	f.created++
	return "https://checkout.example/pay/" + identity.UserID, nil
}

func (f *fakePayments) RetrieveSession(_ context.Context, reference string) (domain.CheckoutStatus, error) {
	if f.err != nil {
		return domain.CheckoutStatus{}, f.err
	}
	owner := f.owner
	if owner == "" {
		owner = "u1"
	}
	return domain.CheckoutStatus{Reference: reference, Paid: f.paid, UserID: owner}, nil
}

func newGate(t *testing.T) (*app.EntitlementGate, *memory.UserStore, *fakePayments) {
	t.Helper()
	users := memory.NewUserStore()
	_, err := users.Create(context.Background(), domain.User{ID: "u1", Email: "a@b.c"})
	require.NoError(t, err)
	payments := &fakePayments{}
	return app.NewEntitlementGate(users, payments, nil, time.Second), users, payments
}

func fullQuizSession(t *testing.T, mode domain.Mode) *domain.Session {
	t.Helper()
	session := domain.NewSession(app.NewSessionID(), time.Now())
	require.NoError(t, session.Begin(domain.QuizConfig{Mode: mode, ReviewMode: domain.ReviewTutor, QuestionOrder: []int{1, 2}}, time.Now()))
	return session
}

func signedIn(t *testing.T, session *domain.Session) *domain.Session {
	t.Helper()
	session.Identity = &domain.Identity{UserID: "u1", Email: "a@b.c"}
	return session
}
