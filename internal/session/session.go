package session

import (
	"log/slog"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Roles that may create, edit and delete schedule events.
const (
	RoleScheduler = "ROLE_SCHEDULER"
	RoleAdmin     = "ROLE_ADMIN"
)

// Snapshot is the serializable form of a session, used for persistence.
type Snapshot struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Username     string `json:"username"`
	Role         string `json:"role"`
}

// SaveFunc persists a snapshot; a zero snapshot means the session was cleared.
type SaveFunc func(Snapshot) error

// Session owns the process-wide credential pair. The transport's refresh path
// is the only writer besides login and logout; every outgoing call reads the
// access token immediately before sending.
type Session struct {
	mu      sync.RWMutex
	access  string
	refresh string
	user    string
	role    string
	save    SaveFunc
	logger  *slog.Logger
}

// New returns an empty session. The save hook may be nil for in-memory use.
func New(save SaveFunc, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{save: save, logger: logger}
}

// Restore seeds the session from a persisted snapshot without re-saving it.
func (s *Session) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = snap.AccessToken
	s.refresh = snap.RefreshToken
	s.user = snap.Username
	s.role = snap.Role
}

// Login replaces the whole session after a successful authentication.
func (s *Session) Login(username, access, refresh string) {
	s.mu.Lock()
	s.user = username
	s.access = access
	s.refresh = refresh
	s.role = RoleFromToken(access)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.persist(snap)
}

// SetTokens replaces the credential pair, re-deriving the role from the new
// access token. Called by the transport after a successful refresh.
func (s *Session) SetTokens(access, refresh string) {
	s.mu.Lock()
	s.access = access
	s.refresh = refresh
	if role := RoleFromToken(access); role != "" {
		s.role = role
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.persist(snap)
}

// Clear destroys the session, both in memory and in the persisted store.
func (s *Session) Clear() {
	s.mu.Lock()
	s.access = ""
	s.refresh = ""
	s.user = ""
	s.role = ""
	s.mu.Unlock()
	s.persist(Snapshot{})
}

// AccessToken returns the current access credential, empty when logged out.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// RefreshToken returns the current refresh credential, empty when logged out.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// Username returns the name the session was established with.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Role returns the role claim carried by the access token.
func (s *Session) Role() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// CanEdit reports whether the session's role grants schedule editing.
func (s *Session) CanEdit() bool {
	role := s.Role()
	return role == RoleScheduler || role == RoleAdmin
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		AccessToken:  s.access,
		RefreshToken: s.refresh,
		Username:     s.user,
		Role:         s.role,
	}
}

func (s *Session) persist(snap Snapshot) {
	if s.save == nil {
		return
	}
	if err := s.save(snap); err != nil {
		s.logger.Error("failed to persist session", "error", err)
	}
}

// RoleFromToken extracts the role claim from a JWT access token without
// verifying the signature. The backend authorizes every call on its own; the
// claim only routes client-side capability such as showing edit affordances.
// Both "role" and the compact "rol" claim names are accepted.
func RoleFromToken(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, name := range []string{"role", "rol"} {
		if value, ok := claims[name].(string); ok {
			return value
		}
	}
	return ""
}
