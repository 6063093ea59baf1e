// Package session drives one kiosk user through capture, identification,
// confirmation and the optional admin view. Each step takes the current state
// and context by value and returns the next ones.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/facematch"
	"github.com/kozaktomas/kiosk/internal/metrics"
)

// State is a screen of the kiosk.
type State string

const (
	StateCapture State = "capture"
	StateConfirm State = "confirm"
	StateAdmin   State = "admin"
	StateReject  State = "reject"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateCapture, StateConfirm, StateAdmin, StateReject:
		return true
	}
	return false
}

// InputKind says what the user presented.
type InputKind string

const (
	InputFace     InputKind = "face"
	InputPIN      InputKind = "pin"
	InputIDNumber InputKind = "idNumber"
)

// Input is one identification attempt. Embedding is nil when the frame held no face.
type Input struct {
	Kind         InputKind
	Embedding    []float32
	Value        string
	RequestAdmin bool
}

// Reasons a step did not identify anyone.
const (
	ReasonNoFace      = "no_face"
	ReasonNoMatch     = "no_match"
	ReasonUnavailable = "unavailable"
	ReasonBadInput    = "bad_input"
)

// Context is the state carried between steps.
type Context struct {
	SessionID      string
	IdentityID     int64
	DisplayName    string
	IsAdmin        bool
	Method         database.Method
	Distance       float64
	RecordID       int64
	RecordedAt     time.Time
	Attempts       int // failed identification attempts in this session
	AdminRequested bool
	Reason         string
}

// Matcher resolves inputs to identities.
type Matcher interface {
	MatchFace(ctx context.Context, embedding []float32, threshold float64) (*facematch.Match, error)
	MatchCredential(ctx context.Context, value string, kind database.CredentialKind) (*facematch.Match, error)
}

// Recorder appends attendance records.
type Recorder interface {
	Record(ctx context.Context, identityID int64, method database.Method) database.AttendanceRecord
}

// Flow holds the collaborators; it keeps no per-session state.
type Flow struct {
	matcher    Matcher
	recorder   Recorder
	threshold  float64
	retryDelay time.Duration
	logger     *slog.Logger
	metrics    *metrics.Manager
}

// Option configures a Flow.
type Option func(*Flow)

// WithThreshold sets the face distance threshold. Zero uses the matcher default.
func WithThreshold(threshold float64) Option {
	return func(f *Flow) { f.threshold = threshold }
}

// WithRetryDelay sets how long a reject screen is shown before returning to capture.
func WithRetryDelay(d time.Duration) Option {
	return func(f *Flow) { f.retryDelay = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) { f.logger = logger }
}

// WithMetrics counts match results and transitions.
func WithMetrics(m *metrics.Manager) Option {
	return func(f *Flow) { f.metrics = m }
}

// NewFlow creates a flow over a matcher and a ledger.
func NewFlow(matcher Matcher, recorder Recorder, opts ...Option) *Flow {
	f := &Flow{
		matcher:    matcher,
		recorder:   recorder,
		retryDelay: 1500 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RetryDelay is how long the caller should show a reject before calling Reset.
func (f *Flow) RetryDelay() time.Duration {
	return f.retryDelay
}

// Start opens a new session in the capture state.
func (f *Flow) Start(adminRequested bool) (State, Context) {
	return StateCapture, Context{SessionID: uuid.NewString(), AdminRequested: adminRequested}
}

// Reset returns to capture after a reject or a finished confirmation,
// clearing the identified person but keeping the session and attempt count.
func (f *Flow) Reset(state State, sc Context) (State, Context) {
	next := Context{
		SessionID:      sc.SessionID,
		Attempts:       sc.Attempts,
		AdminRequested: sc.AdminRequested,
	}
	f.transition(state, StateCapture, next)
	return StateCapture, next
}

// Step handles one input. Only the capture state accepts input; other states
// are returned unchanged until Reset.
func (f *Flow) Step(ctx context.Context, state State, sc Context, in Input) (State, Context) {
	if state != StateCapture {
		return state, sc
	}
	sc.Reason = ""
	if in.RequestAdmin {
		sc.AdminRequested = true
	}

	start := time.Now()
	var match *facematch.Match
	var err error
	method := string(in.Kind)

	switch in.Kind {
	case InputFace:
		if len(in.Embedding) == 0 {
			f.metrics.RecordMatch(method, metrics.ResultNoFace, time.Since(start))
			sc.Reason = ReasonNoFace
			return StateCapture, sc
		}
		match, err = f.matcher.MatchFace(ctx, in.Embedding, f.threshold)
	case InputPIN:
		match, err = f.matcher.MatchCredential(ctx, in.Value, database.CredentialPIN)
	case InputIDNumber:
		match, err = f.matcher.MatchCredential(ctx, in.Value, database.CredentialIDNumber)
	default:
		sc.Reason = ReasonBadInput
		return f.reject(state, sc)
	}

	if err != nil {
		f.metrics.RecordMatch(method, metrics.ResultError, time.Since(start))
		f.logger.Error("identification failed", "session", sc.SessionID, "input", in.Kind, "error", err)
		sc.Reason = ReasonUnavailable
		if in.Kind == InputFace {
			return StateCapture, sc
		}
		return f.reject(state, sc)
	}

	if match == nil {
		f.metrics.RecordMatch(method, metrics.ResultNoMatch, time.Since(start))
		sc.Attempts++
		sc.Reason = ReasonNoMatch
		// faces keep streaming in, only typed credentials get a reject screen
		if in.Kind == InputFace {
			return StateCapture, sc
		}
		return f.reject(state, sc)
	}

	f.metrics.RecordMatch(method, metrics.ResultMatched, time.Since(start))
	return f.identified(ctx, state, sc, match.Identity, match.Method, match.Distance)
}

// Register records the first check-in of a freshly enrolled identity and
// moves to confirmation.
func (f *Flow) Register(ctx context.Context, state State, sc Context, identity database.Identity) (State, Context) {
	return f.identified(ctx, state, sc, identity, database.MethodRegister, 0)
}

func (f *Flow) identified(ctx context.Context, from State, sc Context, identity database.Identity, method database.Method, distance float64) (State, Context) {
	rec := f.recorder.Record(ctx, identity.ID, method)

	sc.IdentityID = identity.ID
	sc.DisplayName = identity.DisplayName
	sc.IsAdmin = identity.IsAdmin
	sc.Method = method
	sc.Distance = distance
	sc.RecordID = rec.ID
	sc.RecordedAt = rec.Timestamp
	sc.Reason = ""

	next := StateConfirm
	if identity.IsAdmin && sc.AdminRequested {
		next = StateAdmin
	}
	f.logger.Info("identified",
		"session", sc.SessionID,
		"identity_id", identity.ID,
		"method", method,
		"state", next)
	f.transition(from, next, sc)
	return next, sc
}

func (f *Flow) reject(from State, sc Context) (State, Context) {
	f.transition(from, StateReject, sc)
	return StateReject, sc
}

func (f *Flow) transition(from, to State, sc Context) {
	if from == to {
		return
	}
	f.metrics.RecordTransition(string(from), string(to))
	f.logger.Debug("session transition", "session", sc.SessionID, "from", from, "to", to)
}

// MessageID names the screen message for a state and context.
func MessageID(state State, sc Context) string {
	switch state {
	case StateConfirm:
		if sc.Method == database.MethodRegister {
			return "confirm.registered"
		}
		return "confirm.welcome"
	case StateAdmin:
		return "admin.welcome"
	case StateReject:
		if sc.Reason == "" {
			return "reject.no_match"
		}
		return "reject." + sc.Reason
	}
	if sc.Reason == "" {
		return "capture.prompt"
	}
	return "capture." + sc.Reason
}
