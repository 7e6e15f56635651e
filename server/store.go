package server

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"thesis_generator/generator"
)

// sessionStore 按 LRU 保留最近使用的 session，容量满后最旧的被淘汰。
type sessionStore struct {
	sessions *lru.Cache[string, *generator.Session]
}

func newStore(capacity int) (*sessionStore, error) {
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	c, err := lru.New[string, *generator.Session](capacity)
	if err != nil {
		return nil, err
	}
	return &sessionStore{sessions: c}, nil
}

func (s *sessionStore) set(id string, sess *generator.Session) {
	s.sessions.Add(id, sess)
}

func (s *sessionStore) get(id string) (*generator.Session, bool) {
	return s.sessions.Get(id)
}

func (s *sessionStore) len() int { return s.sessions.Len() }
