package handler

import (
	"sync"
	"time"

	"github.com/getcharzp/go-vision-sam/sam"
	"github.com/google/uuid"
)

type storeEntry struct {
	session  *sam.Session
	lastUsed time.Time
}

// SessionStore 按 ID 保存会话, 超过上限时淘汰最久未使用的会话
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*storeEntry
	max      int
	idle     time.Duration
	factory  func() *sam.Session
	now      func() time.Time
}

// NewSessionStore 创建会话存储
func NewSessionStore(limit int, idle time.Duration, factory func() *sam.Session) *SessionStore {
	if limit <= 0 {
		limit = 1
	}
	return &SessionStore{
		sessions: make(map[string]*storeEntry),
		max:      limit,
		idle:     idle,
		factory:  factory,
		now:      time.Now,
	}
}

// Create 创建新会话并加入存储
func (s *SessionStore) Create() (string, *sam.Session) {
	sess := s.factory()
	return s.Add(sess), sess
}

// NewSession 创建未加入存储的会话, 图片加载成功后再调用 Add
func (s *SessionStore) NewSession() *sam.Session {
	return s.factory()
}

// Add 加入会话并返回其 ID, 超过上限时淘汰最久未使用的会话
func (s *SessionStore) Add(sess *sam.Session) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.max {
		var oldestID string
		var oldest time.Time
		for id, e := range s.sessions {
			if oldestID == "" || e.lastUsed.Before(oldest) {
				oldestID, oldest = id, e.lastUsed
			}
		}
		delete(s.sessions, oldestID)
	}

	id := uuid.NewString()
	s.sessions[id] = &storeEntry{session: sess, lastUsed: s.now()}
	return id
}

// Get 获取会话并刷新使用时间
func (s *SessionStore) Get(id string) (*sam.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = s.now()
	return e.session, true
}

// Delete 删除会话
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len 当前会话数量
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep 清理空闲超时的会话, 返回清理数量
func (s *SessionStore) Sweep() int {
	if s.idle <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := s.now().Add(-s.idle)
	n := 0
	for id, e := range s.sessions {
		if e.lastUsed.Before(deadline) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
