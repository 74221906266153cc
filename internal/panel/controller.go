package panel

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"github.com/comigor/taxassist-go/internal/chat"
	"github.com/comigor/taxassist-go/internal/history"
	"github.com/comigor/taxassist-go/internal/logger"
)

// ErrStaleReply is reported by an Exchange whose reply arrived after the
// user switched to another session.
var ErrStaleReply = errors.New("reply arrived for an inactive session")

// Completer produces the assistant reply for one user message.
type Completer interface {
	Complete(ctx context.Context, req chat.CompletionRequest) (chat.AIMessage, error)
}

type sessionState string

const (
	sessionIdle          sessionState = "Idle"
	sessionAwaitingReply sessionState = "AwaitingReply"
)

type sessionTrigger string

const (
	triggerSend          sessionTrigger = "Send"
	triggerReplyReceived sessionTrigger = "ReplyReceived"
	triggerReplyFailed   sessionTrigger = "ReplyFailed"
)

// Session is the active session context: id, title, message log and the
// in-flight state of its completion request.
type Session struct {
	ID       string
	Title    string
	Messages *MessageStore

	fsm *stateless.StateMachine
}

func newSession(id, title string) *Session {
	fsm := stateless.NewStateMachine(sessionIdle)
	fsm.Configure(sessionIdle).
		Permit(triggerSend, sessionAwaitingReply)
	fsm.Configure(sessionAwaitingReply).
		Permit(triggerReplyReceived, sessionIdle).
		Permit(triggerReplyFailed, sessionIdle)

	return &Session{ID: id, Title: title, Messages: NewMessageStore(), fsm: fsm}
}

func (s *Session) awaiting() bool {
	return s.fsm.MustState() == sessionAwaitingReply
}

func (s *Session) fire(t sessionTrigger) {
	if err := s.fsm.Fire(t); err != nil {
		logger.L.Error("invalid session transition", "session_id", s.ID, "trigger", t, "error", err)
	}
}

// SessionView is a snapshot of the active session.
type SessionView struct {
	ID       string             `json:"session_id"`
	Title    string             `json:"title"`
	Messages []chat.ChatMessage `json:"messages"`
	Loading  bool               `json:"loading"`
}

func (s *Session) view() SessionView {
	return SessionView{
		ID:       s.ID,
		Title:    s.Title,
		Messages: s.Messages.Messages(),
		Loading:  s.awaiting(),
	}
}

// Exchange tracks one completion request started by the controller.
type Exchange struct {
	SessionID string

	done  chan struct{}
	reply chat.AIMessage
	err   error
}

// Done is closed once the request has finished and its outcome is applied.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Err reports the outcome. Only valid after Done is closed.
func (e *Exchange) Err() error {
	return e.err
}

// Reply returns the assistant reply. Only valid after Done is closed.
func (e *Exchange) Reply() chat.AIMessage {
	return e.reply
}

// Wait blocks until the exchange finishes or ctx is done.
func (e *Exchange) Wait(ctx context.Context) (chat.AIMessage, error) {
	select {
	case <-e.done:
		return e.reply, e.err
	case <-ctx.Done():
		return chat.AIMessage{}, ctx.Err()
	}
}

// ControllerOptions wires a Controller.
type ControllerOptions struct {
	Completer Completer
	Store     history.Store
	History   *HistoryAggregator
	// Context returns the milestone label sent with each message.
	Context func() string
	// Emit receives every visible state change. Optional.
	Emit func(Update)
	// DiscardStaleReplies drops replies whose session is no longer active
	// instead of appending them to the active session.
	DiscardStaleReplies bool
	RequestTimeout      time.Duration
	Now                 func() time.Time
}

// Controller owns the active session and runs its exchanges. Sessions with
// a request in flight are tracked by id until the reply arrives.
type Controller struct {
	opts ControllerOptions

	mu      sync.Mutex
	active  *Session
	pending map[string]*Session
	wg      sync.WaitGroup
}

func NewController(opts ControllerOptions) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Context == nil {
		opts.Context = func() string { return DefaultMilestone }
	}
	if opts.Emit == nil {
		opts.Emit = func(Update) {}
	}
	return &Controller{
		opts:    opts,
		active:  newSession(uuid.NewString(), TitleNewConversation),
		pending: make(map[string]*Session),
	}
}

// Active returns a snapshot of the active session.
func (c *Controller) Active() SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active.view()
}

func (c *Controller) emitSession(v SessionView) {
	c.opts.Emit(Update{Kind: UpdateSession, Session: &v})
}

func (c *Controller) notify(n Notice) {
	c.opts.Emit(Update{Kind: UpdateNotice, Notice: &n})
}

// StartNewConversation switches to a fresh, empty session.
func (c *Controller) StartNewConversation() SessionView {
	c.mu.Lock()
	c.active = newSession(uuid.NewString(), TitleNewConversation)
	v := c.active.view()
	c.mu.Unlock()

	logger.L.Info("new conversation started", "session_id", v.ID)
	c.emitSession(v)
	return v
}

// SendMessage appends text to the active session and requests a reply in the
// background. It returns nil when text is blank or a request for the active
// session is already in flight.
func (c *Controller) SendMessage(ctx context.Context, text string) *Exchange {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	s := c.active
	if s.awaiting() {
		c.mu.Unlock()
		logger.L.Debug("message ignored while awaiting reply", "session_id", s.ID)
		return nil
	}
	return c.begin(ctx, s, text, NoticeSendFailed)
}

// StartFromExternalQuery starts a new session seeded with query, as when a
// search elsewhere in the host is handed to the assistant.
func (c *Controller) StartFromExternalQuery(ctx context.Context, query string) *Exchange {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	c.mu.Lock()
	s := newSession(uuid.NewString(), TitleNewConversation)
	c.active = s
	logger.L.Info("conversation started from external query", "session_id", s.ID)
	return c.begin(ctx, s, query, NoticeSearchFailed)
}

// begin must be called with c.mu held; it releases it.
func (c *Controller) begin(ctx context.Context, s *Session, text, failure string) *Exchange {
	s.Messages.Append(chat.UserMessage(text, c.opts.Now()))
	s.fire(triggerSend)
	c.pending[s.ID] = s
	v := s.view()
	label := c.opts.Context()
	c.wg.Add(1)
	c.mu.Unlock()

	c.emitSession(v)

	ex := &Exchange{SessionID: s.ID, done: make(chan struct{})}
	go c.exchange(context.WithoutCancel(ctx), s, ex, chat.CompletionRequest{
		Message:     text,
		SessionID:   s.ID,
		UserContext: label,
	}, failure)
	return ex
}

func (c *Controller) exchange(ctx context.Context, s *Session, ex *Exchange, req chat.CompletionRequest, failure string) {
	defer c.wg.Done()
	defer close(ex.done)

	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	reply, err := c.opts.Completer.Complete(ctx, req)

	c.mu.Lock()
	if c.pending[s.ID] == s {
		delete(c.pending, s.ID)
	}
	if err != nil {
		s.fire(triggerReplyFailed)
		v := c.active.view()
		c.mu.Unlock()

		logger.L.Error("completion failed", "session_id", s.ID, "error", err)
		ex.err = err
		c.notify(errorNotice(failure))
		c.emitSession(v)
		return
	}

	ex.reply = reply
	s.fire(triggerReplyReceived)
	target := c.active
	if c.active.ID != s.ID {
		if c.opts.DiscardStaleReplies {
			target = nil
			ex.err = ErrStaleReply
		}
	}
	if target != nil {
		target.Messages.Append(chat.AssistantMessage(reply, c.opts.Now()))
	}
	v := c.active.view()
	c.mu.Unlock()

	if target == nil {
		logger.L.Info("discarded reply for inactive session", "session_id", s.ID)
		return
	}
	c.emitSession(v)
}

// LoadConversation replaces the active session with the persisted messages
// of sessionID. On failure the active session is left untouched. At most one
// request per session id is in flight, so reloading a session that is
// awaiting a reply keeps it awaiting.
func (c *Controller) LoadConversation(ctx context.Context, sessionID string) (SessionView, error) {
	rows, err := c.opts.Store.Select(ctx, history.Query{SessionID: sessionID, Order: history.Ascending})
	if err != nil {
		logger.L.Error("failed to load conversation", "session_id", sessionID, "error", err)
		c.notify(errorNotice(NoticeLoadFailed))
		return c.Active(), err
	}

	msgs := make([]chat.ChatMessage, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, rowMessage(r))
	}

	title := TitleConversation
	if c.opts.History != nil {
		if e, ok := c.opts.History.Find(sessionID); ok {
			title = e.Title
		}
	}

	c.mu.Lock()
	s := c.active
	if s.ID != sessionID {
		// A session with a request in flight keeps its state across reloads.
		if p, ok := c.pending[sessionID]; ok {
			s = p
		} else {
			s = newSession(sessionID, title)
		}
		c.active = s
	}
	s.Title = title
	s.Messages.Replace(msgs)
	v := s.view()
	c.mu.Unlock()

	logger.L.Info("conversation loaded", "session_id", sessionID, "messages", len(msgs))
	c.emitSession(v)
	return v, nil
}

// Wait blocks until every exchange started so far has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// rowMessage maps a persisted row to a display message. Assistant payloads
// that are not a well-formed AIMessage are shown as plain answers.
func rowMessage(r history.Row) chat.ChatMessage {
	var m chat.ChatMessage
	if r.Role == chat.RoleAssistant {
		raw := string(r.Message)
		var text string
		if err := json.Unmarshal(r.Message, &text); err == nil {
			raw = text
		}
		m = chat.AssistantMessage(chat.ParseAIMessage(raw, chat.UnknownContext), r.CreatedAt)
	} else {
		m = chat.UserMessage(chat.PayloadText(r.Message), r.CreatedAt)
	}
	m.ID = strconv.FormatInt(r.ID, 10)
	return m
}
