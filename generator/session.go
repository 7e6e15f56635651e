package generator

import (
	"context"
	"sync"
	"time"
)

// Session 持有一次主题的生成结果和之后的审阅记录。
type Session struct {
	ID        string
	Request   Request
	Document  Document
	CreatedAt time.Time

	mu      sync.Mutex
	history []Turn
	agent   *Agent
}

// NewSession 创建 session，尚未生成稿件。
func NewSession(id string, req Request, agent *Agent) *Session {
	return &Session{
		ID:        id,
		Request:   req,
		CreatedAt: time.Now(),
		agent:     agent,
	}
}

// Propose 生成稿件。Must complete before the session is shared.
func (s *Session) Propose(ctx context.Context, identity string) (Document, error) {
	doc, err := s.agent.Generate(ctx, s.Request, identity)
	if err != nil {
		return Document{}, err
	}
	s.Document = doc
	return doc, nil
}

// Review asks for revision suggestions on text (normally the rendered
// document) and records them as a new turn.
func (s *Session) Review(ctx context.Context, text string) ([]string, error) {
	suggestions, err := s.agent.RevisionSuggestions(ctx, text)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.history = append(s.history, Turn{Suggestions: suggestions, CreatedAt: time.Now()})
	s.mu.Unlock()
	return suggestions, nil
}

// History returns a copy of the review turns.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}
