package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"thesis_generator/config"
	"thesis_generator/generator"
	"thesis_generator/logger"
	"thesis_generator/ratelimit"
	"thesis_generator/transport"
)

// app 持有一次运行所需的组件，Close 释放限流器后台任务和连接。
type app struct {
	cfg     config.Config
	log     *zap.Logger
	agent   *generator.Agent
	closers []func()
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}

	llm, err := buildLLM(cfg, log)
	if err != nil {
		return nil, err
	}
	limiter, err := a.buildLimiter(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.agent, err = generator.NewAgent(llm, limiter,
		generator.WithLogger(log),
		generator.WithRecoverer(&generator.Recoverer{RequireChapters: cfg.Recovery.RequireChapters}),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.log.Sync()
}

func buildLLM(cfg config.Config, log *zap.Logger) (generator.LLMClient, error) {
	switch cfg.LLM.Provider {
	case "openai", "groq", "deepseek":
		rt := transport.New(nil, transport.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay(),
			MaxDelay:    cfg.Retry.MaxDelay(),
			Jitter:      cfg.Retry.Jitter,
		}, log)
		return generator.NewOpenAILLMFromConfig(&generator.LLMSettings{
			Provider:    cfg.LLM.Provider,
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Transport:   rt,
		})
	case "mock":
		return &generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.LLM.Provider)
	}
}

// buildLimiter 配置了 redis_addr 时使用共享的 Redis 计数，否则使用进程内 LRU 加定时清理。
func (a *app) buildLimiter(ctx context.Context) (ratelimit.Tracker, error) {
	rl := a.cfg.RateLimit
	lim := ratelimit.Limits{MaxRequests: rl.MaxRequests, Window: rl.Window(), Cooldown: rl.Cooldown()}

	if rl.RedisAddr != "" {
		rdb, err := ratelimit.DialRedis(ctx, rl.RedisAddr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.log.Info("rate limiter backed by redis", zap.String("addr", rl.RedisAddr))
		return ratelimit.NewRedisTracker(rdb, lim)
	}

	mt, err := ratelimit.NewMemoryTracker(lim, rl.Capacity)
	if err != nil {
		return nil, err
	}
	sweeper, err := ratelimit.StartSweeper(mt, rl.SweepSpec, a.log)
	if err != nil {
		return nil, fmt.Errorf("rate limit sweeper: %w", err)
	}
	a.closers = append(a.closers, func() { <-sweeper.Stop().Done() })
	return mt, nil
}
