package http

import (
	"encoding/json"
	"log"
	"time"

	"crqbank/internal/app"
	"crqbank/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler pushes practice snapshots to the browser and accepts quiz
// actions over the same connection.
type WSHandler struct {
	sessions *app.SessionManager
	quiz     *app.QuizService
	gate     *app.EntitlementGate
	tick     time.Duration
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions *app.SessionManager, quiz *app.QuizService, gate *app.EntitlementGate, tick time.Duration) *WSHandler {
	if tick <= 0 {
		tick = time.Second
	}
	return &WSHandler{
		sessions: sessions,
		quiz:     quiz,
		gate:     gate,
		tick:     tick,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Option string `json:"option"`
}

type movePayload struct {
	Direction int `json:"direction"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// blockedPayload replaces the practice view while the full quiz is locked.
type blockedPayload struct {
	SignInRequired bool   `json:"signInRequired"`
	CheckoutURL    string `json:"checkoutUrl,omitempty"`
	Message        string `json:"message"`
}

type clockPayload struct {
	Elapsed string `json:"elapsed"`
}

// snapshot is the JSON shape of the practice view. The correct answer and
// explanation are only present when the review mode reveals them.
type snapshot struct {
	Status      domain.Status   `json:"status"`
	Number      int             `json:"number"`
	Total       int             `json:"total"`
	Prompt      string          `json:"prompt,omitempty"`
	Choices     []domain.Choice `json:"choices,omitempty"`
	Answered    bool            `json:"answered"`
	Selected    domain.Option   `json:"selected,omitempty"`
	IsCorrect   *bool           `json:"isCorrect,omitempty"`
	Answer      domain.Option   `json:"answer,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
	Elapsed     string          `json:"elapsed,omitempty"`
	CanBack     bool            `json:"canBack"`
	CanNext     bool            `json:"canNext"`
	Score       *domain.Score   `json:"score,omitempty"`
	Notice      string          `json:"notice,omitempty"`
}

func snapshotOf(view app.PracticeView, notice string) snapshot {
	snap := snapshot{
		Status:   view.Status,
		Number:   view.Number,
		Total:    view.Total,
		Answered: view.Answered,
		Selected: view.Selected,
		Elapsed:  view.Elapsed,
		CanBack:  view.CanBack,
		CanNext:  view.CanNext,
		Notice:   notice,
	}
	if view.Config != nil {
		snap.Prompt = view.Question.Prompt
		snap.Choices = view.Question.ChoiceList()
	}
	if view.Reveal {
		correct := view.IsCorrect
		snap.IsCorrect = &correct
		snap.Answer = view.Question.Answer
		snap.Explanation = view.Question.Explanation
	}
	if view.Status == domain.StatusSubmitted {
		score := view.Score
		snap.Score = &score
	}
	return snap
}

// ServeWS upgrades the request and serves the session bound to the cookie.
func (h *WSHandler) ServeWS(c *gin.Context) {
	id := sessionID(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	ctx := c.Request.Context()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	clockDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// Clock ticks are only sent while a timed quiz is running.
	go func() {
		defer close(clockDone)
		ticker := time.NewTicker(h.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				session, err := h.sessions.Load(ctx, id)
				if err != nil {
					continue
				}
				view, err := h.quiz.View(ctx, session)
				if err != nil || !view.ShowClock {
					continue
				}
				select {
				case send <- outboundMessage{Type: "clock", Payload: clockPayload{Elapsed: view.Elapsed}}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	push := func(msg outboundMessage) bool { return deliver(send, writerDone, msg) }

	open := push(h.snapshot(c, id, func(*domain.Session) error { return nil }))
	for open {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var action func(*domain.Session) error
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				open = push(errorMessage("invalid answer payload"))
				continue
			}
			action = func(session *domain.Session) error {
				outcome, err := h.quiz.Answer(ctx, session, payload.Option)
				if err == nil && outcome.Warning != nil {
					session.Notice = "Your answer counts for this quiz but could not be saved to your history."
				}
				return err
			}
		case "move":
			var payload movePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				open = push(errorMessage("invalid move payload"))
				continue
			}
			action = func(session *domain.Session) error {
				return h.quiz.Advance(session, payload.Direction)
			}
		case "submit":
			action = func(session *domain.Session) error {
				_, err := h.quiz.Submit(ctx, session)
				return err
			}
		default:
			open = push(errorMessage("unsupported message type"))
			continue
		}
		open = push(h.snapshot(c, id, action))
	}

	close(closeSignals)
	<-clockDone
	close(send)
	<-writerDone
}

// snapshot applies action to the session and returns the resulting view, or
// an error message if the action was rejected. A session the entitlement gate
// blocks gets a blocked message and no question content.
func (h *WSHandler) snapshot(c *gin.Context, id string, action func(*domain.Session) error) outboundMessage {
	ctx := c.Request.Context()
	var (
		view    app.PracticeView
		notice  string
		viewErr error
		blocked *blockedPayload
	)
	_, err := h.sessions.Update(ctx, id, func(session *domain.Session) error {
		decision, err := h.gate.Check(ctx, session)
		if err != nil {
			log.Printf("entitlement check for session %s: %v", session.ID, err)
		}
		if !decision.Allowed {
			blocked = blockedOf(decision)
			return nil
		}
		if err := action(session); err != nil {
			return err
		}
		notice = session.TakeNotice()
		view, viewErr = h.quiz.View(ctx, session)
		return nil
	})
	if err == nil {
		err = viewErr
	}
	if err != nil {
		return errorMessage(noticeFor(err))
	}
	if blocked != nil {
		return outboundMessage{Type: "blocked", Payload: *blocked}
	}
	return outboundMessage{Type: "snapshot", Payload: snapshotOf(view, notice)}
}

func blockedOf(decision app.Decision) *blockedPayload {
	switch {
	case decision.SignInRequired:
		return &blockedPayload{SignInRequired: true, Message: "Sign in to take the full quiz."}
	case decision.CheckoutURL != "":
		return &blockedPayload{CheckoutURL: decision.CheckoutURL, Message: "The full quiz requires a subscription."}
	}
	return &blockedPayload{Message: "Checkout is unavailable right now. Please try again shortly."}
}

// deliver queues msg for the writer. It reports false once the writer has
// exited on a write error.
func deliver(send chan<- outboundMessage, writerDone <-chan struct{}, msg outboundMessage) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func errorMessage(msg string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: msg}}
}
