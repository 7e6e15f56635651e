package generator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"thesis_generator/logger"
	"thesis_generator/ratelimit"
)

// Agent 串起限流、校验、提示词、上游调用和回复修复。
type Agent struct {
	llm       LLMClient
	limiter   ratelimit.Tracker
	recoverer *Recoverer
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*Agent)

func WithLogger(l *zap.Logger) Option { return func(a *Agent) { a.log = logger.OrNop(l) } }

func WithClock(now func() time.Time) Option { return func(a *Agent) { a.now = now } }

func WithRecoverer(r *Recoverer) Option { return func(a *Agent) { a.recoverer = r } }

// NewAgent requires an LLM client. A nil limiter falls back to an in-memory
// tracker with the default limits.
func NewAgent(llm LLMClient, limiter ratelimit.Tracker, opts ...Option) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	a := &Agent{llm: llm, limiter: limiter, log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	if a.limiter == nil {
		mt, err := ratelimit.NewMemoryTracker(ratelimit.DefaultLimits(), 0)
		if err != nil {
			return nil, err
		}
		a.limiter = mt
	}
	if a.recoverer == nil {
		a.recoverer = &Recoverer{}
	}
	if a.recoverer.Log == nil {
		a.recoverer.Log = a.log
	}
	a.log = a.log.With(zap.String("component", "agent"))
	return a, nil
}

// Generate produces one thesis for identity. Every failure is a *GenerationError.
func (a *Agent) Generate(ctx context.Context, req Request, identity string) (Document, error) {
	log := a.log.With(zap.String("identity", identity))

	dec, err := a.limiter.CheckAndConsume(ctx, identity, a.now())
	if err != nil {
		log.Error("rate limiter unavailable", zap.Error(err))
		return Document{}, &GenerationError{Kind: KindTransport, Message: "rate limiter unavailable", Err: err}
	}
	if !dec.Allowed {
		log.Warn("request denied", zap.String("reason", string(dec.Reason)), zap.Duration("retry_after", dec.RetryAfter))
		return Document{}, &GenerationError{Kind: KindRateLimit, Message: string(dec.Reason), RetryAfter: dec.RetryAfter}
	}

	if err := Validate(req); err != nil {
		log.Info("invalid request", zap.Error(err))
		return Document{}, &GenerationError{Kind: KindValidation, Message: err.Error(), Err: err}
	}

	req.Topic = sanitizeTopic(req.Topic)
	prompt := BuildThesisPrompt(req)

	start := a.now()
	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		if errors.Is(err, ErrEmptyCompletion) {
			return Document{}, &GenerationError{Kind: KindRecovery, Message: "empty reply", Err: err}
		}
		log.Error("upstream call failed", zap.Error(err))
		return Document{}, &GenerationError{Kind: KindTransport, Message: "upstream request failed", Err: err}
	}

	doc, err := a.recoverer.Recover(raw)
	if err != nil {
		return Document{}, &GenerationError{Kind: KindRecovery, Message: "could not recover document", Err: err}
	}

	log.Info("thesis generated",
		zap.String("language", string(req.Language)),
		zap.Int("chapters", len(doc.Chapters)),
		zap.Int("references", len(doc.References)),
		zap.Duration("elapsed", a.now().Sub(start)))
	return doc, nil
}

// RevisionSuggestions asks the model to review text. A reply that is a JSON
// array yields its string items; anything else becomes one suggestion.
func (a *Agent) RevisionSuggestions(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &RevisionError{Err: errors.New("document text empty")}
	}
	raw, err := a.llm.Complete(ctx, BuildRevisionPrompt(text))
	if err != nil {
		a.log.Error("revision request failed", zap.Error(err))
		return nil, &RevisionError{Err: err}
	}
	return parseSuggestions(raw), nil
}

func parseSuggestions(raw string) []string {
	trimmed := strings.TrimSpace(stripFences(raw))
	if trimmed == "" {
		return []string{}
	}
	if gjson.Valid(trimmed) {
		if res := gjson.Parse(trimmed); res.IsArray() {
			if hasString(res) || len(res.Array()) == 0 {
				return stringsOf(res, true)
			}
			// 数组里一个字符串都没有，当作普通文本整体返回
		}
	}
	return []string{trimmed}
}

func hasString(arr gjson.Result) bool {
	for _, item := range arr.Array() {
		if item.Type == gjson.String {
			return true
		}
	}
	return false
}
