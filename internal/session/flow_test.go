package session

import (
	"context"
	"testing"
	"time"

	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/database/mock"
	"github.com/kozaktomas/kiosk/internal/facematch"
	"github.com/kozaktomas/kiosk/internal/ledger"
	"github.com/kozaktomas/kiosk/internal/logging"
)

type fixture struct {
	repo   *mock.MockStore
	flow   *Flow
	ana    int64
	admin  int64
	ledger *ledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := mock.NewMockStore()

	ana, err := repo.CreateIdentity(ctx, &database.Identity{DisplayName: "Ana", PIN: "1234", IDNumber: "10001", Embeddings: [][]float32{{0, 0}}})
	if err != nil {
		t.Fatal(err)
	}
	admin, err := repo.CreateIdentity(ctx, &database.Identity{DisplayName: "Carmen", PIN: "4321", IsAdmin: true, Embeddings: [][]float32{{5, 5}}})
	if err != nil {
		t.Fatal(err)
	}

	l := ledger.New(repo, ledger.WithLogger(logging.Discard()))
	flow := NewFlow(facematch.NewMatcher(repo), l, WithThreshold(0.6), WithRetryDelay(time.Second), WithLogger(logging.Discard()))
	return &fixture{repo: repo, flow: flow, ana: ana, admin: admin, ledger: l}
}

func TestStep(t *testing.T) {
	tests := []struct {
		name         string
		input        Input
		adminSession bool
		wantState    State
		wantIdentity string // display name, empty when nobody was identified
		wantMethod   database.Method
		wantReason   string
		wantRecords  int
	}{
		{"face match", Input{Kind: InputFace, Embedding: []float32{0.1, 0}}, false, StateConfirm, "Ana", database.MethodFace, "", 1},
		{"absent face", Input{Kind: InputFace}, false, StateCapture, "", "", ReasonNoFace, 0},
		{"unknown face keeps capturing", Input{Kind: InputFace, Embedding: []float32{2, 2}}, false, StateCapture, "", "", ReasonNoMatch, 0},
		{"pin match", Input{Kind: InputPIN, Value: "1234"}, false, StateConfirm, "Ana", database.MethodPIN, "", 1},
		{"pin miss", Input{Kind: InputPIN, Value: "9999"}, false, StateReject, "", "", ReasonNoMatch, 0},
		{"id number match", Input{Kind: InputIDNumber, Value: "10001"}, false, StateConfirm, "Ana", database.MethodCedula, "", 1},
		{"id number miss", Input{Kind: InputIDNumber, Value: "10002"}, false, StateReject, "", "", ReasonNoMatch, 0},
		{"admin without request confirms", Input{Kind: InputPIN, Value: "4321"}, false, StateConfirm, "Carmen", database.MethodPIN, "", 1},
		{"admin requested in session", Input{Kind: InputPIN, Value: "4321"}, true, StateAdmin, "Carmen", database.MethodPIN, "", 1},
		{"admin requested with input", Input{Kind: InputFace, Embedding: []float32{5, 5}, RequestAdmin: true}, false, StateAdmin, "Carmen", database.MethodFace, "", 1},
		{"non admin requesting admin confirms", Input{Kind: InputPIN, Value: "1234", RequestAdmin: true}, false, StateConfirm, "Ana", database.MethodPIN, "", 1},
		{"unknown input kind", Input{Kind: "badge", Value: "x"}, false, StateReject, "", "", ReasonBadInput, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			ctx := context.Background()

			state, sc := fx.flow.Start(tt.adminSession)
			if state != StateCapture || sc.SessionID == "" {
				t.Fatalf("unexpected start: %s %+v", state, sc)
			}

			state, sc = fx.flow.Step(ctx, state, sc, tt.input)
			if state != tt.wantState {
				t.Errorf("expected state %s, got %s", tt.wantState, state)
			}
			if sc.DisplayName != tt.wantIdentity || sc.Method != tt.wantMethod || sc.Reason != tt.wantReason {
				t.Errorf("unexpected context: %+v", sc)
			}

			records, _ := fx.ledger.ListAll(ctx)
			if len(records) != tt.wantRecords {
				t.Fatalf("expected %d attendance records, got %d", tt.wantRecords, len(records))
			}
			if tt.wantRecords == 1 {
				if records[0].IdentityID != sc.IdentityID || records[0].Method != tt.wantMethod || sc.RecordID != records[0].ID {
					t.Errorf("record does not match context: %+v vs %+v", records[0], sc)
				}
			}
		})
	}
}

func TestStep_ContextIsAValue(t *testing.T) {
	fx := newFixture(t)
	state, sc := fx.flow.Start(false)
	before := sc

	fx.flow.Step(context.Background(), state, sc, Input{Kind: InputPIN, Value: "1234"})
	if sc != before {
		t.Errorf("caller's context was modified: %+v", sc)
	}
}

func TestStep_IgnoredOutsideCapture(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	state, sc := fx.flow.Start(false)
	state, sc = fx.flow.Step(ctx, state, sc, Input{Kind: InputPIN, Value: "1234"})
	if state != StateConfirm {
		t.Fatalf("expected confirm, got %s", state)
	}

	next, nextCtx := fx.flow.Step(ctx, state, sc, Input{Kind: InputPIN, Value: "4321"})
	if next != StateConfirm || nextCtx.DisplayName != "Ana" {
		t.Errorf("expected confirm screen to ignore input, got %s %+v", next, nextCtx)
	}
	if n, _ := fx.repo.CountAttendance(ctx); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestRejectAndReset(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	state, sc := fx.flow.Start(true)
	state, sc = fx.flow.Step(ctx, state, sc, Input{Kind: InputPIN, Value: "0000"})
	if state != StateReject || sc.Attempts != 1 {
		t.Fatalf("expected reject after 1 attempt, got %s %+v", state, sc)
	}
	if fx.flow.RetryDelay() != time.Second {
		t.Errorf("unexpected retry delay %v", fx.flow.RetryDelay())
	}

	session := sc.SessionID
	state, sc = fx.flow.Reset(state, sc)
	if state != StateCapture || sc.SessionID != session || sc.Attempts != 1 || !sc.AdminRequested || sc.Reason != "" {
		t.Errorf("unexpected reset: %s %+v", state, sc)
	}

	state, sc = fx.flow.Step(ctx, state, sc, Input{Kind: InputPIN, Value: "4321"})
	if state != StateAdmin {
		t.Errorf("expected admin after retry, got %s", state)
	}
}

func TestStep_RepeatedFramesAreReadOnly(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	state, sc := fx.flow.Start(false)

	for range 25 {
		state, sc = fx.flow.Step(ctx, state, sc, Input{Kind: InputFace, Embedding: []float32{9, -9}})
	}
	if state != StateCapture || sc.Attempts != 25 {
		t.Errorf("expected capture with 25 attempts, got %s %+v", state, sc)
	}
	if n, _ := fx.repo.CountAttendance(ctx); n != 0 {
		t.Errorf("expected no records, got %d", n)
	}
}

func TestStep_StorageError(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.repo.FindByCredentialError = database.ErrStorage
	fx.repo.ListEmbeddingsError = database.ErrStorage

	state, sc := fx.flow.Start(false)
	faceState, faceCtx := fx.flow.Step(ctx, state, sc, Input{Kind: InputFace, Embedding: []float32{0, 0}})
	if faceState != StateCapture || faceCtx.Reason != ReasonUnavailable {
		t.Errorf("expected capture to continue on face lookup error, got %s %+v", faceState, faceCtx)
	}

	pinState, pinCtx := fx.flow.Step(ctx, state, sc, Input{Kind: InputPIN, Value: "1234"})
	if pinState != StateReject || pinCtx.Reason != ReasonUnavailable {
		t.Errorf("expected reject on pin lookup error, got %s %+v", pinState, pinCtx)
	}
}

func TestRecordFailureStillConfirms(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.repo.InsertAttendanceError = database.ErrStorage

	state, sc := fx.flow.Start(false)
	state, sc = fx.flow.Step(ctx, state, sc, Input{Kind: InputPIN, Value: "1234"})
	if state != StateConfirm || sc.IdentityID != fx.ana {
		t.Errorf("expected confirm despite write failure, got %s %+v", state, sc)
	}
	if sc.RecordID != 0 || fx.ledger.Pending() != 1 {
		t.Errorf("expected unsaved pending record, got id %d pending %d", sc.RecordID, fx.ledger.Pending())
	}
}

func TestRegister(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	identity, _ := fx.repo.GetIdentity(ctx, fx.admin)

	state, sc := fx.flow.Start(false)
	state, sc = fx.flow.Register(ctx, state, sc, *identity)
	if state != StateConfirm || sc.Method != database.MethodRegister || sc.IdentityID != fx.admin {
		t.Errorf("unexpected register result: %s %+v", state, sc)
	}
}

func TestMessageID(t *testing.T) {
	tests := []struct {
		state State
		sc    Context
		want  string
	}{
		{StateCapture, Context{}, "capture.prompt"},
		{StateCapture, Context{Reason: ReasonNoFace}, "capture.no_face"},
		{StateConfirm, Context{Method: database.MethodFace}, "confirm.welcome"},
		{StateConfirm, Context{Method: database.MethodRegister}, "confirm.registered"},
		{StateAdmin, Context{}, "admin.welcome"},
		{StateReject, Context{Reason: ReasonUnavailable}, "reject.unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := MessageID(tt.state, tt.sc); got != tt.want {
				t.Errorf("MessageID() = %q, want %q", got, tt.want)
			}
		})
	}
}
