package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"crqbank/internal/app"
	"crqbank/internal/domain"
	"crqbank/internal/infra/memory"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func TestSessionCookieRejectsTamperedValue(t *testing.T) {
	cookies := NewSessionCookie("secret", time.Hour, false)
	value, err := cookies.Encode("session-1", time.Now())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	id, err := cookies.Decode(value)
	if err != nil || id != "session-1" {
		t.Fatalf("expected session-1, got %q (%v)", id, err)
	}

	other := NewSessionCookie("another-secret", time.Hour, false)
	if _, err := other.Decode(value); err == nil {
		t.Fatalf("expected foreign secret to be rejected")
	}
	forged, err := other.Encode("session-2", time.Now())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Claims for session-2 carrying session-1's signature.
	original := strings.Split(value, ".")
	parts := strings.Split(forged, ".")
	tampered := parts[0] + "." + parts[1] + "." + original[2]
	if _, err := cookies.Decode(tampered); err == nil {
		t.Fatalf("expected tampered claims to be rejected")
	}

	f := newFixture(t)
	b := f.browser()
	b.cookie = &http.Cookie{Name: sessionCookieName, Value: tampered}
	b.do(http.MethodGet, "/", nil)
	if b.cookie.Value == tampered {
		t.Fatalf("expected a fresh cookie after tampering")
	}
}

func TestFreeTrialFlow(t *testing.T) {
	f := newFixture(t)
	b := f.browser()
	b.do(http.MethodGet, "/", nil)

	rec := b.do(http.MethodPost, "/practice/start", url.Values{
		"topic": {"Cardiology"}, "mode": {"free_trial"}, "review": {"tutor"},
	})
	expectRedirect(t, rec, "/practice")
	if body := b.do(http.MethodGet, "/practice", nil).Body.String(); !strings.Contains(body, "Question 1 of 3") {
		t.Fatalf("expected first question, got %s", body)
	}

	for i := 0; i < 3; i++ {
		session := f.session(t, b)
		id := session.Quiz.QuestionOrder[session.Cursor]
		expectRedirect(t, b.do(http.MethodPost, "/practice/answer", url.Values{"option": {string(testBank()[id].Answer)}}), "/practice")
		if body := b.do(http.MethodGet, "/practice", nil).Body.String(); !strings.Contains(body, "Correct.") {
			t.Fatalf("expected tutor feedback on question %d", i+1)
		}
		expectRedirect(t, b.do(http.MethodPost, "/practice/move", url.Values{"direction": {"next"}}), "/practice")
	}

	expectRedirect(t, b.do(http.MethodPost, "/practice/submit", nil), "/practice")
	body := b.do(http.MethodGet, "/practice", nil).Body.String()
	if !strings.Contains(body, "You scored 3 / 3") {
		t.Fatalf("expected results, got %s", body)
	}

	expectRedirect(t, b.do(http.MethodPost, "/practice/restart", nil), "/practice")
	if f.session(t, b).Quiz != nil {
		t.Fatalf("expected quiz to be cleared after restart")
	}
}

func TestNoticeIsShownOnce(t *testing.T) {
	f := newFixture(t)
	b := f.browser()
	b.do(http.MethodGet, "/", nil)

	b.do(http.MethodPost, "/practice/answer", url.Values{"option": {"A"}})
	if body := b.do(http.MethodGet, "/practice", nil).Body.String(); !strings.Contains(body, "Quiz has not been started.") {
		t.Fatalf("expected notice, got %s", body)
	}
	if body := b.do(http.MethodGet, "/practice", nil).Body.String(); strings.Contains(body, "Quiz has not been started.") {
		t.Fatalf("expected notice to be consumed")
	}
}

func TestFullQuizCheckoutFlow(t *testing.T) {
	f := newFixture(t)
	b := f.browser()
	b.do(http.MethodGet, "/", nil)

	start := url.Values{"topic": {app.AllTopics}, "mode": {"full_quiz"}, "review": {"test"}}
	expectRedirect(t, b.do(http.MethodPost, "/practice/start", start), "/auth")
	if body := b.do(http.MethodGet, "/auth", nil).Body.String(); !strings.Contains(body, "Sign in to take the full quiz.") {
		t.Fatalf("expected sign-in notice, got %s", body)
	}

	expectRedirect(t, b.do(http.MethodPost, "/auth/signup", url.Values{"email": {"a@b.c"}, "password": {"secret1"}}), "/practice")
	expectRedirect(t, b.do(http.MethodPost, "/practice/start", start), "/practice")
	if body := b.do(http.MethodGet, "/practice", nil).Body.String(); !strings.Contains(body, "Continue to checkout") {
		t.Fatalf("expected paywall, got %s", body)
	}

	rec := b.do(http.MethodPost, "/practice/answer", url.Values{"option": {"A"}})
	expectRedirect(t, rec, "/practice")
	if len(f.session(t, b).Responses) != 0 {
		t.Fatalf("answer must be rejected before payment")
	}

	checkout, err := url.Parse(f.session(t, b).CheckoutURL)
	if err != nil {
		t.Fatalf("parse checkout url: %v", err)
	}
	expectRedirect(t, b.do(http.MethodGet, "/payment/return?session_id="+checkout.Query().Get("session_id"), nil), "/practice")

	session := f.session(t, b)
	if !session.Entitled {
		t.Fatalf("expected entitlement after payment return")
	}
	user, err := f.users.Get(context.Background(), session.Identity.UserID)
	if err != nil || !user.Paid {
		t.Fatalf("expected user marked paid, got %+v (%v)", user, err)
	}
	body := b.do(http.MethodGet, "/practice", nil).Body.String()
	if !strings.Contains(body, "Payment confirmed.") || !strings.Contains(body, "Question 1 of 5") {
		t.Fatalf("expected unlocked quiz, got %s", body)
	}
}

func TestSignInFailureStaysOnAuth(t *testing.T) {
	f := newFixture(t)
	b := f.browser()
	rec := b.do(http.MethodPost, "/auth/signin", url.Values{"email": {"nobody@b.c"}, "password": {"secret1"}})
	expectRedirect(t, rec, "/auth")
	if body := b.do(http.MethodGet, "/auth", nil).Body.String(); !strings.Contains(body, "Authentication failed: invalid email or password.") {
		t.Fatalf("expected credentials notice, got %s", body)
	}
}

func TestPaymentWebhook(t *testing.T) {
	f := newFixture(t)
	user, err := f.users.Create(context.Background(), domain.User{ID: "u1", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	f.webhooks.err = errors.New("bad signature")
	if rec := f.browser().do(http.MethodPost, "/payment/webhook", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", rec.Code)
	}
	if got, _ := f.users.Get(context.Background(), user.ID); got.Paid {
		t.Fatalf("rejected webhook must not grant entitlement")
	}

	f.webhooks.err = nil
	f.webhooks.ok = true
	f.webhooks.status = domain.CheckoutStatus{Reference: "cs_1", Paid: true, Email: "a@b.c"}
	if rec := f.browser().do(http.MethodPost, "/payment/webhook", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got, _ := f.users.Get(context.Background(), user.ID); !got.Paid {
		t.Fatalf("expected webhook to mark user paid")
	}
}

func TestStatsPage(t *testing.T) {
	f := newFixture(t)
	b := f.browser()
	if body := b.do(http.MethodGet, "/stats", nil).Body.String(); !strings.Contains(body, "No answers yet.") {
		t.Fatalf("expected empty stats, got %s", body)
	}

	b.do(http.MethodPost, "/practice/start", url.Values{"topic": {"Renal"}, "mode": {"free_trial"}, "review": {"tutor"}})
	b.do(http.MethodPost, "/practice/answer", url.Values{"option": {"A"}})
	body := b.do(http.MethodGet, "/stats", nil).Body.String()
	if !strings.Contains(body, "of 1 answered correctly") || !strings.Contains(body, "Renal") {
		t.Fatalf("expected in-session stats, got %s", body)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.browser().do(http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response %d %q", rec.Code, rec.Body.String())
	}
}

func TestChartPoints(t *testing.T) {
	if got := chartPoints(nil); got != "" {
		t.Fatalf("expected no points, got %q", got)
	}
	got := chartPoints([]float64{100, 50})
	want := fmt.Sprintf("0.0,0.0 %d.0,%d.0", chartWidth, chartHeight/2)
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNoticeFor(t *testing.T) {
	if got := noticeFor(domain.ErrQuizIncomplete); got != "Answer every question before submitting." {
		t.Fatalf("unexpected notice %q", got)
	}
	if got := noticeFor(errors.New("dial tcp: refused")); got != "Something went wrong. Please try again." {
		t.Fatalf("internal errors must not leak, got %q", got)
	}
}

type fakeWebhooks struct {
	status domain.CheckoutStatus
	ok     bool
	err    error
}

func (f *fakeWebhooks) ParseWebhook([]byte, string) (domain.CheckoutStatus, bool, error) {
	return f.status, f.ok, f.err
}

type fixture struct {
	router   *gin.Engine
	cookies  *SessionCookie
	sessions *app.SessionManager
	users    *memory.UserStore
	webhooks *fakeWebhooks
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	questions := memory.NewQuestionStore(memory.NewStaticQuestionSource(testBank()))
	responses := memory.NewResponseStore()
	users := memory.NewUserStore()
	sessions := app.NewSessionManager(memory.NewSessionStore(time.Hour))
	cookies := NewSessionCookie("test-secret", time.Hour, false)
	webhooks := &fakeWebhooks{}
	quiz := app.NewQuizService(questions, responses, app.Options{TrialSize: 5, Timeout: time.Second})

	router, err := NewRouter(Dependencies{
		Sessions:  sessions,
		Quiz:      quiz,
		Gate:      app.NewEntitlementGate(users, memory.NewPaymentProvider("http://localhost/payment/return"), nil, time.Second),
		Auth:      app.NewAuthServiceWithCost(users, bcrypt.MinCost, time.Second),
		Stats:     app.NewStatsService(responses, questions, time.Second),
		Webhooks:  webhooks,
		Cookies:   cookies,
		ClockTick: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return &fixture{router: router, cookies: cookies, sessions: sessions, users: users, webhooks: webhooks}
}

func (f *fixture) browser() *browser {
	return &browser{handler: f.router}
}

func (f *fixture) session(t *testing.T, b *browser) *domain.Session {
	t.Helper()
	if b.cookie == nil {
		t.Fatalf("browser has no session cookie")
	}
	id, err := f.cookies.Decode(b.cookie.Value)
	if err != nil {
		t.Fatalf("decode cookie: %v", err)
	}
	session, err := f.sessions.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return session
}

// browser replays the session cookie across requests.
type browser struct {
	handler http.Handler
	cookie  *http.Cookie
}

func (b *browser) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader = http.NoBody
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			b.cookie = c
		}
	}
	return rec
}

func expectRedirect(t *testing.T, rec *httptest.ResponseRecorder, location string) {
	t.Helper()
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != location {
		t.Fatalf("expected redirect to %s, got %s", location, got)
	}
}

// testBank holds 3 Cardiology questions (ids 0-2) and 2 Renal ones (ids 3-4).
func testBank() []domain.Question {
	topics := []string{"Cardiology", "Cardiology", "Cardiology", "Renal", "Renal"}
	out := make([]domain.Question, len(topics))
	for i, topic := range topics {
		out[i] = domain.Question{
			ID:          i,
			Topic:       topic,
			Prompt:      fmt.Sprintf("Prompt %d", i),
			Choices:     [4]string{"one", "two", "three", "four"},
			Answer:      domain.Options[(i+1)%4],
			Explanation: fmt.Sprintf("Explanation %d", i),
		}
	}
	return out
}
