package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	sessionCookieName = "kiosk_admin_session"
	sessionDuration   = 30 * time.Minute
	cleanupInterval   = 5 * time.Minute
)

// Session is an authenticated admin. Admins log in with their own PIN or ID
// number, or by reaching the admin screen at the kiosk.
type Session struct {
	ID          string
	IdentityID  int64
	DisplayName string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// SessionManager handles session creation and validation
type SessionManager struct {
	secret   []byte
	sessions map[string]*Session
	mu       sync.RWMutex
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionManager creates a session manager and starts removing expired sessions in the background.
func NewSessionManager(secret string) *SessionManager {
	if secret == "" {
		secret = "kiosk-dev-secret-change-in-production"
	}
	sm := &SessionManager{
		secret:   []byte(secret),
		sessions: make(map[string]*Session),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go sm.cleanupLoop()
	return sm
}

// CreateSession creates a new session for an admin identity
func (sm *SessionManager) CreateSession(identityID int64, displayName string) (*Session, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}
	sessionID := base64.URLEncoding.EncodeToString(idBytes)

	now := sm.now()
	session := &Session{
		ID:          sessionID,
		IdentityID:  identityID,
		DisplayName: displayName,
		CreatedAt:   now,
		ExpiresAt:   now.Add(sessionDuration),
	}

	sm.mu.Lock()
	sm.sessions[sessionID] = session
	sm.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by ID, nil when missing or expired
func (sm *SessionManager) GetSession(sessionID string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()
	if !ok {
		return nil
	}
	if sm.now().After(session.ExpiresAt) {
		sm.DeleteSession(sessionID)
		return nil
	}
	return session
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()
}

// DeleteForIdentity removes every session held by identityID and returns how many were removed.
func (sm *SessionManager) DeleteForIdentity(identityID int64) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	removed := 0
	for id, s := range sm.sessions {
		if s.IdentityID == identityID {
			delete(sm.sessions, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *SessionManager) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sm.removeExpired()
		case <-sm.stop:
			return
		}
	}
}

func (sm *SessionManager) removeExpired() {
	now := sm.now()
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, s := range sm.sessions {
		if now.After(s.ExpiresAt) {
			delete(sm.sessions, id)
		}
	}
}

// Stop ends the background cleanup. Safe to call more than once.
func (sm *SessionManager) Stop() {
	sm.stopOnce.Do(func() { close(sm.stop) })
}

// SetSessionCookie sets the session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, r *http.Request, session *Session) {
	signature := sm.signData(session.ID)
	cookieValue := session.ID + "." + signature

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    cookieValue,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionDuration.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest reads the signed cookie, then a Bearer token.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if sessionID, signature, ok := strings.Cut(cookie.Value, "."); ok && sm.verifySignature(sessionID, signature) {
			if session := sm.GetSession(sessionID); session != nil {
				return session
			}
		}
	}

	if sessionID, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if session := sm.GetSession(sessionID); session != nil {
			return session
		}
	}

	return nil
}

func (sm *SessionManager) signData(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

func (sm *SessionManager) verifySignature(data, signature string) bool {
	expected := sm.signData(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// SessionData is the JSON form of a session
type SessionData struct {
	SessionID   string `json:"session_id"`
	IdentityID  int64  `json:"identity_id"`
	DisplayName string `json:"display_name"`
	ExpiresAt   string `json:"expires_at"`
}

// ToJSON returns the session data for JSON response
func (s *Session) ToJSON() SessionData {
	return SessionData{
		SessionID:   s.ID,
		IdentityID:  s.IdentityID,
		DisplayName: s.DisplayName,
		ExpiresAt:   s.ExpiresAt.Format(time.RFC3339),
	}
}

// MarshalJSON implements json.Marshaler
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToJSON())
}
