package handlers

import (
	"sync"
	"time"

	"github.com/kozaktomas/kiosk/internal/constants"
	"github.com/kozaktomas/kiosk/internal/session"
)

type kioskEntry struct {
	state   session.State
	ctx     session.Context
	touched time.Time
}

// KioskSessions keeps the current state of every open kiosk screen.
// Entries idle for longer than the TTL are dropped.
type KioskSessions struct {
	mu       sync.Mutex
	entries  map[string]*kioskEntry
	ttl      time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewKioskSessions creates the store and starts sweeping idle sessions.
func NewKioskSessions() *KioskSessions {
	ks := &KioskSessions{
		entries: make(map[string]*kioskEntry),
		ttl:     constants.KioskSessionTTL,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go ks.sweepLoop()
	return ks
}

// Put stores the state of a session.
func (ks *KioskSessions) Put(state session.State, sc session.Context) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.entries[sc.SessionID] = &kioskEntry{state: state, ctx: sc, touched: ks.now()}
}

// Get returns the state of a live session.
func (ks *KioskSessions) Get(id string) (session.State, session.Context, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.entries[id]
	if !ok {
		return "", session.Context{}, false
	}
	if ks.now().Sub(e.touched) > ks.ttl {
		delete(ks.entries, id)
		return "", session.Context{}, false
	}
	return e.state, e.ctx, true
}

// Delete ends a session.
func (ks *KioskSessions) Delete(id string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	delete(ks.entries, id)
}

// Len returns the number of stored sessions.
func (ks *KioskSessions) Len() int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return len(ks.entries)
}

func (ks *KioskSessions) sweepLoop() {
	ticker := time.NewTicker(constants.KioskSessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ks.sweep()
		case <-ks.stop:
			return
		}
	}
}

func (ks *KioskSessions) sweep() {
	now := ks.now()
	ks.mu.Lock()
	defer ks.mu.Unlock()
	for id, e := range ks.entries {
		if now.Sub(e.touched) > ks.ttl {
			delete(ks.entries, id)
		}
	}
}

// Stop ends the background sweep.
func (ks *KioskSessions) Stop() {
	ks.stopOnce.Do(func() { close(ks.stop) })
}
