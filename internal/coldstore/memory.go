package coldstore

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/relaychat/server/internal/domain"
)

// Memory is an in-process Store+Users double used by tests that exercise
// MessagingCore and ArchiveWorker without a live Postgres instance, mirror-
// ing the role hotstore.Memory plays for HotStore.
type Memory struct {
	mu sync.Mutex

	users       map[int64]*domain.User
	byUsername  map[string]int64
	byEmail     map[string]int64
	nextUserID  int64
	nextGroupID int64

	groups        map[int64]*domain.Group
	friendships   map[[2]int64]bool
	privateMsgs   []*domain.Message
	groupMsgs     map[int64][]*domain.Message
}

// NewMemory builds an empty in-memory cold store.
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[int64]*domain.User),
		byUsername:  make(map[string]int64),
		byEmail:     make(map[string]int64),
		groups:      make(map[int64]*domain.Group),
		friendships: make(map[[2]int64]bool),
		groupMsgs:   make(map[int64][]*domain.Message),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUsername[username]
	if !ok {
		return nil, domain.NewError(domain.NotFound, "user not found")
	}
	u := *m.users[id]
	return &u, nil
}

func (m *Memory) FindByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.NewError(domain.NotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) VerifyCredentials(_ context.Context, username, password string) (int64, error) {
	m.mu.Lock()
	id, ok := m.byUsername[username]
	var u *domain.User
	if ok {
		u = m.users[id]
	}
	m.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return 0, domain.NewError(domain.InvalidCredentials, "invalid username or password")
	}
	m.mu.Lock()
	now := time.Now()
	u.LastLoginAt = &now
	u.Online = true
	m.mu.Unlock()
	return u.ID, nil
}

func (m *Memory) SetOnline(_ context.Context, userID int64, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.Online = online
	}
	return nil
}

func (m *Memory) UpdateLastLogin(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		now := time.Now()
		u.LastLoginAt = &now
		u.Online = true
	}
	return nil
}

func (m *Memory) Register(_ context.Context, username, password, email, avatar string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byUsername[username]; ok {
		return 0, domain.NewError(domain.Conflict, "Username already exists")
	}
	if _, ok := m.byEmail[email]; ok {
		return 0, domain.NewError(domain.Conflict, "Email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, domain.Wrap(domain.UpstreamFailure, "hash password", err)
	}

	m.nextUserID++
	id := m.nextUserID
	u := &domain.User{
		ID: id, Username: username, Email: email, Avatar: avatar,
		PasswordHash: string(hash), CreatedAt: time.Now(),
	}
	m.users[id] = u
	m.byUsername[username] = id
	m.byEmail[email] = id
	return id, nil
}

func (m *Memory) UsernameExists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byUsername[username]
	return ok, nil
}

func (m *Memory) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byEmail[email]
	return ok, nil
}

func (m *Memory) ListOnline(_ context.Context) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.User
	for _, u := range m.users {
		if u.Online {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) InsertPrivateMessages(_ context.Context, msgs []*domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
next:
	for _, msg := range msgs {
		for _, have := range m.privateMsgs {
			if have.From == msg.From && have.To == msg.To && have.Timestamp == msg.Timestamp && have.Content == msg.Content {
				continue next
			}
		}
		m.privateMsgs = append(m.privateMsgs, msg)
	}
	return nil
}

func (m *Memory) InsertGroupMessages(_ context.Context, groupID int64, msgs []*domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupMsgs[groupID] = append(m.groupMsgs[groupID], msgs...)
	return nil
}

func (m *Memory) GroupExists(_ context.Context, groupID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.groups[groupID]
	return ok, nil
}

func (m *Memory) InsertFriendship(_ context.Context, a, b int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, hi := domain.PairKey(a, b)
	m.friendships[[2]int64{lo, hi}] = true
	return nil
}

func (m *Memory) HistoryPrivate(_ context.Context, a, b int64, count, offset int) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, hi := domain.PairKey(a, b)
	var matched []*domain.Message
	for i := len(m.privateMsgs) - 1; i >= 0; i-- {
		msg := m.privateMsgs[i]
		mlo, mhi := domain.PairKey(msg.From, msg.To)
		if mlo == lo && mhi == hi {
			matched = append(matched, msg)
		}
	}
	return paginate(matched, count, offset), nil
}

func (m *Memory) HistoryGroup(_ context.Context, groupID int64, count, offset int) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.groupMsgs[groupID]
	reversed := make([]*domain.Message, len(all))
	for i, msg := range all {
		reversed[len(all)-1-i] = msg
	}
	return paginate(reversed, count, offset), nil
}

func paginate(msgs []*domain.Message, count, offset int) []*domain.Message {
	if offset >= len(msgs) {
		return nil
	}
	end := offset + count
	if end > len(msgs) {
		end = len(msgs)
	}
	return msgs[offset:end]
}

func (m *Memory) NextGroupID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextGroupID++
	return m.nextGroupID, nil
}

func (m *Memory) CreateGroup(_ context.Context, g *domain.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.groups[g.ID] = &cp
	return nil
}

// SeedGroup lets tests register a group directly (bypassing NextGroupID)
// for archive-pass tests that need a pre-existing group row.
func (m *Memory) SeedGroup(g *domain.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.groups[g.ID] = &cp
}
