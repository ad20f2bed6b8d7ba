package conversation

import (
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/finbot_backend/config"
)

// SessionTTL bounds every multi-turn dialog: a reply that arrives more than
// five minutes after the flow started is treated as a fresh conversation.
const SessionTTL = 5 * time.Minute

type Flow string

const (
	FlowAwaitingAccountSelection   Flow = "awaiting_account_selection"
	FlowAwaitingDeleteConfirmation Flow = "awaiting_delete_confirmation"
	FlowAwaitingRenameConfirmation Flow = "awaiting_rename_confirmation"
	FlowAwaitingInviteConfirmation Flow = "awaiting_invite_confirmation"
	FlowAwaitingInviteToRegister   Flow = "awaiting_invite_to_register"
	FlowAwaitingInvitationResponse Flow = "awaiting_invitation_response"
)

// AccountRef is a snapshot of an account taken when a flow starts. Selection
// answers ("2", "débito") resolve against this fixed list, not against a
// fresh query, so the numbering the user saw stays valid.
type AccountRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type TransactionDraft struct {
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	Amount      *int64 `json:"amount"`
	Description string `json:"description"`
}

// Session is the per-phone dialog state. At most one flow is active per
// phone; starting a new flow overwrites the old one.
type Session struct {
	Flow     Flow              `json:"flow"`
	Draft    *TransactionDraft `json:"draft,omitempty"`
	Accounts []AccountRef      `json:"accounts,omitempty"`

	// Pending target for delete / rename / invite flows.
	AccountId   int    `json:"account_id,omitempty"`
	AccountName string `json:"account_name,omitempty"`
	NewName     string `json:"new_name,omitempty"`

	InviteeIdentifier string `json:"invitee_identifier,omitempty"`
	InvitationIds     []int  `json:"invitation_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (s *Session) expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) >= SessionTTL
}

// Store holds dialog state and the per-phone first-contact marker. State is
// ephemeral: safe to lose on restart.
type Store interface {
	Get(phone string) (*Session, bool)
	Set(phone string, session *Session)
	Clear(phone string)

	// First-contact marker, used for the one-time welcome / registration
	// prompt. Unlike sessions it does not expire.
	Seen(phone string) bool
	MarkSeen(phone string)
}

// MemoryStore is the in-process backend: a map behind a mutex with lazy TTL
// eviction on read. Used when redis is not configured, and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	contacts map[string]bool

	// now is replaceable so tests can step time past the TTL.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		contacts: make(map[string]bool),
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(phone string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[phone]
	if !ok {
		return nil, false
	}
	if session.expired(m.now()) {
		delete(m.sessions, phone)
		return nil, false
	}
	return session, true
}

func (m *MemoryStore) Set(phone string, session *Session) {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = m.now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[phone] = session
}

func (m *MemoryStore) Clear(phone string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, phone)
}

func (m *MemoryStore) Seen(phone string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contacts[phone]
}

func (m *MemoryStore) MarkSeen(phone string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[phone] = true
}

// RedisStore keys sessions by phone with redis-side expiry, which removes the
// in-process bottleneck and lets multiple instances share dialog state. Get
// still validates CreatedAt so a clock-skewed entry cannot outlive the TTL.
type RedisStore struct{}

func NewRedisStore() *RedisStore {
	return &RedisStore{}
}

func sessionKey(phone string) string { return "session:" + phone }
func seenKey(phone string) string    { return "seen:" + phone }

func (r *RedisStore) Get(phone string) (*Session, bool) {
	var session Session
	exists, err := config.GetRedisObject(sessionKey(phone), &session)
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "RedisStore.Get", phone, nil, err)
		return nil, false
	}
	if !exists {
		return nil, false
	}
	if session.expired(time.Now()) {
		config.RemoveRedisKey(sessionKey(phone))
		return nil, false
	}
	return &session, true
}

func (r *RedisStore) Set(phone string, session *Session) {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if err := config.SetRedisObject(sessionKey(phone), session, SessionTTL); err != nil {
		config.LogError(config.GetLogger(), "conversation", "RedisStore.Set", phone, session.Flow, err)
	}
}

func (r *RedisStore) Clear(phone string) {
	if err := config.RemoveRedisKey(sessionKey(phone)); err != nil {
		config.LogError(config.GetLogger(), "conversation", "RedisStore.Clear", phone, nil, err)
	}
}

func (r *RedisStore) Seen(phone string) bool {
	_, exists, err := config.GetRedisValue(seenKey(phone))
	if err != nil {
		config.LogError(config.GetLogger(), "conversation", "RedisStore.Seen", phone, nil, err)
		return false
	}
	return exists
}

func (r *RedisStore) MarkSeen(phone string) {
	if err := config.SetRedisValue(seenKey(phone), "1", 0); err != nil {
		config.LogError(config.GetLogger(), "conversation", "RedisStore.MarkSeen", phone, nil, err)
	}
}
