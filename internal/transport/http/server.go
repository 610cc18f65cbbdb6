package http

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode"

	"crqbank/internal/app"
	"crqbank/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxWebhookBody = 64 << 10

// WebhookParser verifies and decodes a payment provider notification. ok is
// false for event types that carry no payment confirmation.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (status domain.CheckoutStatus, ok bool, err error)
}

// Dependencies are the use cases the router dispatches to. Webhooks may be
// nil when no provider is configured.
type Dependencies struct {
	Sessions *app.SessionManager
	Quiz     *app.QuizService
	Gate     *app.EntitlementGate
	Auth     *app.AuthService
	Stats    *app.StatsService
	Webhooks WebhookParser
	Cookies  *SessionCookie
	// ClockTick is the websocket clock period in test mode.
	ClockTick time.Duration
}

type Server struct {
	sessions *app.SessionManager
	quiz     *app.QuizService
	gate     *app.EntitlementGate
	auth     *app.AuthService
	stats    *app.StatsService
	webhooks WebhookParser
}

// NewRouter builds the gin engine serving every page, the websocket, health
// and metrics endpoints.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	pages, err := loadPages()
	if err != nil {
		return nil, err
	}
	s := &Server{
		sessions: deps.Sessions,
		quiz:     deps.Quiz,
		gate:     deps.Gate,
		auth:     deps.Auth,
		stats:    deps.Stats,
		webhooks: deps.Webhooks,
	}
	ws := NewWSHandler(deps.Sessions, deps.Quiz, deps.Gate, deps.ClockTick)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.HTMLRender = pages

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/payment/webhook", s.paymentWebhook)

	web := r.Group("/", deps.Cookies.Middleware())
	web.GET("/", s.home)
	web.GET("/auth", s.authPage)
	web.POST("/auth/signup", s.signUp)
	web.POST("/auth/signin", s.signIn)
	web.POST("/auth/signout", s.signOut)
	web.GET("/practice", s.practice)
	web.POST("/practice/start", s.start)
	web.POST("/practice/answer", s.answer)
	web.POST("/practice/move", s.move)
	web.POST("/practice/submit", s.submit)
	web.POST("/practice/restart", s.restart)
	web.GET("/payment/return", s.paymentReturn)
	web.GET("/stats", s.statsPage)
	web.GET("/ws", ws.ServeWS)
	return r, nil
}

type homeData struct {
	Topics []domain.TopicCount
	Total  int
}

func (s *Server) home(c *gin.Context) {
	s.render(c, "home", "Home", func(session *domain.Session) (any, error) {
		topics, err := s.quiz.Topics(c.Request.Context())
		if err != nil {
			return nil, err
		}
		data := homeData{Topics: topics}
		for _, t := range topics {
			data.Total += t.Count
		}
		return data, nil
	})
}

func (s *Server) authPage(c *gin.Context) {
	s.render(c, "auth", "Account", func(*domain.Session) (any, error) { return nil, nil })
}

func (s *Server) signUp(c *gin.Context) {
	next := "/practice"
	ok := s.act(c, func(session *domain.Session) error {
		if err := s.auth.SignUp(c.Request.Context(), session, c.PostForm("email"), c.PostForm("password")); err != nil {
			next = "/auth"
			return err
		}
		session.Notice = "Welcome, " + session.Identity.Email + "."
		return nil
	})
	if ok {
		c.Redirect(http.StatusSeeOther, next)
	}
}

func (s *Server) signIn(c *gin.Context) {
	next := "/practice"
	ok := s.act(c, func(session *domain.Session) error {
		if err := s.auth.SignIn(c.Request.Context(), session, c.PostForm("email"), c.PostForm("password")); err != nil {
			next = "/auth"
			return err
		}
		session.Notice = "Signed in as " + session.Identity.Email + "."
		return nil
	})
	if ok {
		c.Redirect(http.StatusSeeOther, next)
	}
}

func (s *Server) signOut(c *gin.Context) {
	ok := s.act(c, func(session *domain.Session) error {
		s.auth.SignOut(session)
		session.Notice = "Signed out."
		return nil
	})
	if ok {
		c.Redirect(http.StatusSeeOther, "/")
	}
}

type practiceData struct {
	Started   bool
	Submitted bool
	View      app.PracticeView
	Decision  app.Decision
	Topics    []domain.TopicCount
	AllTopics string
}

func (s *Server) practice(c *gin.Context) {
	s.render(c, "practice", "Practice", func(session *domain.Session) (any, error) {
		ctx := c.Request.Context()
		decision, err := s.gate.Check(ctx, session)
		if err != nil {
			log.Printf("entitlement check for session %s: %v", session.ID, err)
		}
		view, err := s.quiz.View(ctx, session)
		if err != nil {
			return nil, err
		}
		data := practiceData{
			Started:   session.Quiz != nil,
			Submitted: session.Submitted,
			View:      view,
			Decision:  decision,
			AllTopics: app.AllTopics,
		}
		if !data.Started {
			if data.Topics, err = s.quiz.Topics(ctx); err != nil {
				return nil, err
			}
		}
		return data, nil
	})
}

func (s *Server) start(c *gin.Context) {
	next := "/practice"
	ok := s.act(c, func(session *domain.Session) error {
		mode, err := domain.ParseMode(c.PostForm("mode"))
		if err != nil {
			return err
		}
		review, err := domain.ParseReviewMode(c.PostForm("review"))
		if err != nil {
			return err
		}
		if mode == domain.ModeFullQuiz && session.Identity == nil {
			next = "/auth"
			session.Notice = "Sign in to take the full quiz."
			return nil
		}
		return s.quiz.Start(c.Request.Context(), session, c.PostForm("topic"), mode, review)
	})
	if ok {
		c.Redirect(http.StatusSeeOther, next)
	}
}

func (s *Server) answer(c *gin.Context) {
	ok := s.act(c, func(session *domain.Session) error {
		outcome, err := s.quiz.Answer(c.Request.Context(), session, c.PostForm("option"))
		if err != nil {
			return err
		}
		if outcome.Warning != nil {
			session.Notice = "Your answer counts for this quiz but could not be saved to your history."
		}
		return nil
	})
	if ok {
		c.Redirect(http.StatusSeeOther, "/practice")
	}
}

func (s *Server) move(c *gin.Context) {
	direction := 1
	if c.PostForm("direction") == "back" {
		direction = -1
	}
	ok := s.act(c, func(session *domain.Session) error {
		return s.quiz.Advance(session, direction)
	})
	if ok {
		c.Redirect(http.StatusSeeOther, "/practice")
	}
}

func (s *Server) submit(c *gin.Context) {
	ok := s.act(c, func(session *domain.Session) error {
		_, err := s.quiz.Submit(c.Request.Context(), session)
		return err
	})
	if ok {
		c.Redirect(http.StatusSeeOther, "/practice")
	}
}

func (s *Server) restart(c *gin.Context) {
	ok := s.act(c, func(session *domain.Session) error {
		s.quiz.Reset(session)
		return nil
	})
	if ok {
		c.Redirect(http.StatusSeeOther, "/practice")
	}
}

func (s *Server) paymentReturn(c *gin.Context) {
	ok := s.act(c, func(session *domain.Session) error {
		if err := s.gate.Confirm(c.Request.Context(), session, c.Query("session_id")); err != nil {
			return err
		}
		session.Notice = "Payment confirmed. The full quiz is unlocked."
		return nil
	})
	if ok {
		c.Redirect(http.StatusSeeOther, "/practice")
	}
}

func (s *Server) paymentWebhook(c *gin.Context) {
	if s.webhooks == nil {
		c.Status(http.StatusNotFound)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	status, ok, err := s.webhooks.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		log.Printf("reject webhook: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
		return
	}
	if ok {
		if err := s.gate.HandleCheckoutCompleted(c.Request.Context(), status); err != nil {
			log.Printf("handle checkout %s: %v", status.Reference, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record payment"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

type statsData struct {
	Stats       app.Stats
	ChartPoints string
	ChartWidth  int
	ChartHeight int
}

func (s *Server) statsPage(c *gin.Context) {
	s.render(c, "stats", "Stats", func(session *domain.Session) (any, error) {
		summary, err := s.stats.Summary(c.Request.Context(), session)
		if err != nil {
			log.Printf("load stats for session %s: %v", session.ID, err)
			session.Notice = "Statistics are unavailable right now."
			summary = app.Stats{}
		}
		return statsData{
			Stats:       summary,
			ChartPoints: chartPoints(summary.Cumulative),
			ChartWidth:  chartWidth,
			ChartHeight: chartHeight,
		}, nil
	})
}

// render loads the session, builds the page data and consumes the notice.
func (s *Server) render(c *gin.Context, name, title string, build func(*domain.Session) (any, error)) {
	var data page
	_, err := s.sessions.Update(c.Request.Context(), sessionID(c), func(session *domain.Session) error {
		d, err := build(session)
		if err != nil {
			return err
		}
		data = newPage(title, session, d)
		return nil
	})
	if err != nil {
		log.Printf("render %s: %v", name, err)
		c.String(http.StatusInternalServerError, "page unavailable, please retry")
		return
	}
	c.HTML(http.StatusOK, name, data)
}

// act runs a mutating action. Errors the user can act on become the session
// notice; it reports false after writing a failure response itself.
func (s *Server) act(c *gin.Context, fn func(*domain.Session) error) bool {
	_, err := s.sessions.Update(c.Request.Context(), sessionID(c), func(session *domain.Session) error {
		if err := fn(session); err != nil {
			session.Notice = noticeFor(err)
		}
		return nil
	})
	if err != nil {
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.String(http.StatusInternalServerError, "session unavailable, please retry")
		return false
	}
	return true
}

var userErrors = []error{
	domain.ErrInvalidOption,
	domain.ErrUnknownMode,
	domain.ErrNoQuestions,
	domain.ErrQuizNotStarted,
	domain.ErrQuizInProgress,
	domain.ErrAlreadyAnswered,
	domain.ErrQuizIncomplete,
	domain.ErrQuizSubmitted,
	domain.ErrEntitlementRequired,
	domain.ErrAuth,
	domain.ErrPaymentVerification,
	domain.ErrPersistenceWrite,
}

func noticeFor(err error) string {
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return sentence(err.Error())
		}
	}
	log.Printf("unexpected action error: %v", err)
	return "Something went wrong. Please try again."
}

func sentence(msg string) string {
	if msg == "" {
		return msg
	}
	r := []rune(msg)
	r[0] = unicode.ToUpper(r[0])
	out := string(r)
	if !strings.HasSuffix(out, ".") {
		out += "."
	}
	return out
}
