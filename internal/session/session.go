// Package session implements the widget's connection-state machine. A Session
// owns the current identity and the online-user list, interprets decoded
// protocol events, and reconciles every transition into calls on a rendering
// Surface. It never touches the transport or the terminal directly; both are
// injected, which keeps the state machine testable with recording doubles.
//
// All methods must be called from a single dispatch goroutine. The state
// machine has no locking of its own: transitions happen on socket or user
// callbacks that the host serializes, and every callback runs to completion.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/watercooler/chat-widget/internal/metrics"
	"github.com/watercooler/chat-widget/internal/protocol"
)

// ---------------------------------------------------------------------------
// States
// ---------------------------------------------------------------------------

// State is the connection-state of a Session.
type State int

const (
	// StateConnecting is the initial state, before the socket-open callback.
	StateConnecting State = iota
	// StateAwaitingIdentity means the socket is open and the user has not
	// been accepted under a nickname yet. The identity-rejected error overlay
	// (ErrorShown) lives inside this state.
	StateAwaitingIdentity
	// StateInChat means the server accepted the identity: the first users
	// snapshot doubles as the join-accepted signal.
	StateInChat
	// StateClosed is terminal. No reconnection is attempted.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingIdentity:
		return "awaiting_identity"
	case StateInChat:
		return "in_chat"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Surface is the rendering surface the session reconciles its state into.
// The concrete rendering technology is out of scope here; the terminal
// implementation lives in internal/view and tests pass a recording double.
//
// The "You" substitution for the session's own identity is a presentation
// rule: the surface receives the identity at render time and is expected to
// label matching entries distinctly instead of showing the raw name.
type Surface interface {
	// ShowIdentityPrompt renders the identity-entry surface.
	ShowIdentityPrompt()
	// ShowIdentityError renders the inline nickname-collision message next
	// to the identity input. The entry form itself is left untouched.
	ShowIdentityError()
	// ClearIdentityError removes the inline collision message.
	ClearIdentityError()
	// ShowChat discards the identity-entry surface and materializes the chat
	// view. The session calls it exactly once per lifetime.
	ShowChat()
	// RenderUserList redraws the online-user list from scratch.
	RenderUserList(users []protocol.User, self string)
	// AppendMessage appends one entry to the message stream. Prior entries
	// are never re-rendered.
	AppendMessage(msg protocol.Message, self string)
}

// Sender is the outbound half of the connection resource: a fire-and-forget
// text-frame send with no acknowledgement and no buffering of unsent frames.
type Sender interface {
	SendText(frame []byte) error
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrNotAwaitingIdentity = errors.New("session: identity can only be submitted while awaiting identity")
	ErrNotInChat           = errors.New("session: messages can only be sent while in chat")
	ErrEmptyNickname       = errors.New("session: nickname must not be empty")
	ErrEmptyMessage        = errors.New("session: message must not be empty")
)

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Session is the root aggregate: connection state, the session's identity,
// the latest online-user snapshot and the received message stream.
type Session struct {
	id          string
	state       State
	errorShown  bool
	currentUser string
	onlineUsers []protocol.User
	messages    []protocol.Message

	surface Surface
	sender  Sender
	now     func() time.Time
	log     zerolog.Logger
}

// New creates a Session in StateConnecting wired to the given surface and
// sender. The logger is enriched with a generated session id so every
// diagnostic of one connection shares a correlation key.
func New(surface Surface, sender Sender, logger zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		state:   StateConnecting,
		surface: surface,
		sender:  sender,
		now:     time.Now,
		log:     logger.With().Str("session_id", id).Logger(),
	}
}

// ID returns the session's correlation id.
func (s *Session) ID() string { return s.id }

// State returns the current connection state.
func (s *Session) State() State { return s.state }

// ErrorShown reports whether the identity-rejected overlay is visible.
func (s *Session) ErrorShown() bool { return s.errorShown }

// CurrentUser returns the claimed identity, or "" before the first submit.
func (s *Session) CurrentUser() string { return s.currentUser }

// OnlineUsers returns the latest snapshot. The slice mirrors exactly the most
// recent users event; snapshots are never merged or diffed.
func (s *Session) OnlineUsers() []protocol.User { return s.onlineUsers }

// Messages returns the received message stream in arrival order.
func (s *Session) Messages() []protocol.Message { return s.messages }

// ---------------------------------------------------------------------------
// Socket callbacks
// ---------------------------------------------------------------------------

// HandleOpen moves the session out of StateConnecting and renders the
// identity prompt.
func (s *Session) HandleOpen() {
	if s.state != StateConnecting {
		s.log.Warn().Stringer("state", s.state).Msg("open callback in unexpected state")
		return
	}
	s.state = StateAwaitingIdentity
	s.surface.ShowIdentityPrompt()
	s.log.Info().Msg("connected")
}

// HandleFrame decodes one inbound frame and applies the resulting event.
// Malformed frames are surfaced as diagnostics and counted, never fatal: the
// session stays interactable and no transition happens.
func (s *Session) HandleFrame(frame []byte) {
	ev, err := protocol.Decode(frame)
	if err != nil {
		metrics.FramesMalformed.Inc()
		s.log.Warn().Err(err).Str("frame", truncate(frame, 256)).Msg("malformed frame")
		return
	}
	metrics.FramesReceived.WithLabelValues(ev.Kind()).Inc()

	switch ev := ev.(type) {
	case protocol.ErrorEvent:
		s.handleIdentityRejected()
	case protocol.UsersSnapshot:
		s.handleUsersSnapshot(ev.Users)
	case protocol.MessageAdded:
		s.handleMessageAdded(ev.Message)
	case protocol.PeerConnected:
		s.log.Info().Str("info", string(ev.Info)).Msg("peer connected")
	case protocol.PeerDisconnected:
		s.log.Info().Str("info", string(ev.Info)).Msg("peer disconnected")
	}
}

// HandleTransportError records a socket-level error. The close callback that
// follows moves the session to StateClosed.
func (s *Session) HandleTransportError(err error) {
	s.log.Error().Err(err).Msg("transport error")
}

// HandleClose moves the session to the terminal StateClosed. A nil err means
// the connection closed cleanly. No reconnection is attempted.
func (s *Session) HandleClose(err error) {
	s.state = StateClosed
	if err != nil {
		s.log.Warn().Err(err).Msg("connection died")
		return
	}
	s.log.Info().Msg("connection closed cleanly")
}

func (s *Session) handleIdentityRejected() {
	if s.state != StateAwaitingIdentity {
		s.log.Warn().Stringer("state", s.state).Msg("error frame outside identity negotiation")
		return
	}
	if s.errorShown {
		return
	}
	s.errorShown = true
	s.surface.ShowIdentityError()
	s.log.Info().Str("user", s.currentUser).Msg("identity rejected")
}

func (s *Session) handleUsersSnapshot(users []protocol.User) {
	switch s.state {
	case StateAwaitingIdentity:
		// Server acceptance: there is no explicit join-accepted message, the
		// first snapshot is the signal. The chat surface is materialized
		// exactly once.
		s.errorShown = false
		s.state = StateInChat
		s.surface.ShowChat()
		s.log.Info().Str("user", s.currentUser).Msg("joined chat")
	case StateInChat:
	default:
		s.log.Warn().Stringer("state", s.state).Msg("users snapshot in unexpected state")
		return
	}

	s.onlineUsers = users
	metrics.UsersOnline.Set(float64(len(users)))
	s.surface.RenderUserList(users, s.currentUser)
}

func (s *Session) handleMessageAdded(msg protocol.Message) {
	if s.state != StateInChat {
		s.log.Warn().Stringer("state", s.state).Msg("message broadcast outside chat")
		return
	}
	s.messages = append(s.messages, msg)
	s.surface.AppendMessage(msg, s.currentUser)
}

// ---------------------------------------------------------------------------
// User callbacks
// ---------------------------------------------------------------------------

// SubmitIdentity claims a nickname. The identity is set optimistically before
// server acceptance; on collision the session stays in StateAwaitingIdentity
// and a later submit overwrites the provisional value. Exactly one join frame
// is sent per call.
func (s *Session) SubmitIdentity(nick string) error {
	if s.state != StateAwaitingIdentity {
		return ErrNotAwaitingIdentity
	}
	if strings.TrimSpace(nick) == "" {
		return ErrEmptyNickname
	}

	s.currentUser = nick
	frame, err := protocol.EncodeJoin(nick)
	if err != nil {
		return err
	}
	if err := s.sender.SendText(frame); err != nil {
		return fmt.Errorf("session: send join intent: %w", err)
	}
	metrics.IntentsSent.WithLabelValues(protocol.TypeAddUser).Inc()
	s.log.Info().Str("user", nick).Msg("identity submitted")
	return nil
}

// IdentityEdited clears the identity-rejected overlay on the next edit of the
// identity input. Pure view cleanup: no frame is sent.
func (s *Session) IdentityEdited() {
	if !s.errorShown {
		return
	}
	s.errorShown = false
	s.surface.ClearIdentityError()
}

// SubmitMessage sends a chat message stamped with the current wall clock.
// The message is not rendered locally; it appears in the stream only when the
// server echoes it back.
func (s *Session) SubmitMessage(body string) error {
	if s.state != StateInChat {
		return ErrNotInChat
	}
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}

	frame, err := protocol.EncodeMessage(s.currentUser, body, s.now())
	if err != nil {
		return err
	}
	if err := s.sender.SendText(frame); err != nil {
		return fmt.Errorf("session: send message intent: %w", err)
	}
	metrics.IntentsSent.WithLabelValues(protocol.TypeAddMessage).Inc()
	return nil
}

// Teardown sends the leave notice before the host tears the transport down.
// Best effort by contract: no acknowledgement exists, the frame may never
// arrive, and failures are swallowed. Safe to call in any state.
func (s *Session) Teardown() {
	frame, err := protocol.EncodeLeave(s.currentUser)
	if err != nil {
		return
	}
	if err := s.sender.SendText(frame); err != nil {
		s.log.Debug().Err(err).Msg("leave notice not delivered")
		return
	}
	metrics.IntentsSent.WithLabelValues(protocol.TypeDeleteUser).Inc()
}

// truncate bounds frame snippets embedded in log events.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
