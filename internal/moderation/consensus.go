package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/debatehub/backend/internal/config"
	"github.com/debatehub/backend/pkg/logger"
)

// DefaultTotalTimeout bounds a whole multi-provider analysis.
const DefaultTotalTimeout = 30 * time.Second

// Analysis is a consensus verdict together with how it was reached.
type Analysis struct {
	Verdict       Verdict       `json:"verdict"`
	Results       []Result      `json:"provider_results"`
	ProvidersUsed []string      `json:"providers_used"`
	APICalls      int           `json:"api_calls"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Analyzer produces a consensus verdict for one submission.
type Analyzer interface {
	AnalyzeDetailed(ctx context.Context, title, content string) *Analysis
}

// Engine queries every registered provider concurrently and merges their
// verdicts. Registration order decides reason order.
type Engine struct {
	providers    []Provider
	totalTimeout time.Duration
}

type EngineOption func(*Engine)

func WithTotalTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.totalTimeout = d
		}
	}
}

func NewEngine(providers []Provider, opts ...EngineOption) *Engine {
	e := &Engine{
		providers:    append([]Provider(nil), providers...),
		totalTimeout: DefaultTotalTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Providers returns the registered provider names in order.
func (e *Engine) Providers() []string {
	names := make([]string, len(e.providers))
	for i, p := range e.providers {
		names[i] = p.Name()
	}
	return names
}

// Analyze returns only the consensus verdict.
func (e *Engine) Analyze(ctx context.Context, title, content string) Verdict {
	return e.AnalyzeDetailed(ctx, title, content).Verdict
}

func (e *Engine) AnalyzeDetailed(ctx context.Context, title, content string) *Analysis {
	start := time.Now()

	if len(e.providers) == 0 {
		logger.Warn().Msg("[Moderation] No AI provider configured, routing to manual review")
		return &Analysis{
			Verdict:       NoProviderVerdict(),
			Results:       []Result{},
			ProvidersUsed: []string{},
			Elapsed:       time.Since(start),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.totalTimeout)
	defer cancel()

	results := make([]Result, len(e.providers))
	var wg sync.WaitGroup
	for i, p := range e.providers {
		wg.Add(1)
		go func(idx int, p Provider) {
			defer wg.Done()
			results[idx] = evaluate(ctx, p, title, content)
		}(i, p)
	}
	wg.Wait()

	verdicts := make([]Verdict, len(results))
	used := make([]string, len(results))
	fallbacks := 0
	for i, r := range results {
		verdicts[i] = r.Verdict
		used[i] = r.Provider
		if r.Fallback {
			fallbacks++
		}
	}

	analysis := &Analysis{
		Verdict:       MergeAll(verdicts),
		Results:       results,
		ProvidersUsed: used,
		APICalls:      len(results),
		Elapsed:       time.Since(start),
	}

	logger.Info().
		Bool("approved", analysis.Verdict.Approved).
		Str("risk", string(analysis.Verdict.RiskLevel)).
		Float64("confidence", analysis.Verdict.Confidence).
		Int("providers", len(results)).
		Int("fallbacks", fallbacks).
		Dur("elapsed", analysis.Elapsed).
		Msg("[Moderation] Consensus reached")

	return analysis
}

// evaluate shields the engine from misbehaving providers.
func evaluate(ctx context.Context, p Provider, title, content string) (r Result) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().
				Str("provider", p.Name()).
				Interface("panic", rec).
				Msg("[Moderation] Provider panicked, using fallback verdict")
			r = Result{
				Provider: p.Name(),
				Verdict:  FallbackVerdict(),
				Fallback: true,
				Attempts: 1,
				Latency:  time.Since(start),
				Err:      fmt.Errorf("provider panic: %v", rec),
			}
		}
	}()

	if rp, ok := p.(Reporter); ok {
		r = rp.EvaluateDetailed(ctx, title, content)
		if r.Provider == "" {
			r.Provider = p.Name()
		}
		r.Verdict = Sanitize(r.Verdict)
		return r
	}

	v := p.Evaluate(ctx, title, content)
	return Result{
		Provider: p.Name(),
		Verdict:  Sanitize(v),
		Fallback: IsFallback(v),
		Attempts: 1,
		Latency:  time.Since(start),
	}
}

// NewProvidersFromConfig builds adapters for every enabled provider, in
// configuration order.
func NewProvidersFromConfig(cfg config.ModerationConfig, observers ...CallObserver) ([]Provider, error) {
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		if !pc.IsEnabled() {
			continue
		}
		completer, err := NewCompleter(pc)
		if err != nil {
			return nil, err
		}

		opts := []AdapterOption{
			WithBackend(pc.Provider),
			WithTimeout(cfg.ProviderTimeout),
			WithRetries(cfg.MaxRetries),
		}
		if cfg.Breaker.Enabled {
			opts = append(opts, WithBreaker(NewBreaker(pc.Name, cfg.Breaker.ConsecutiveFailures, cfg.Breaker.OpenTimeout)))
		}
		for _, o := range observers {
			opts = append(opts, WithObserver(o))
		}

		providers = append(providers, NewAdapter(pc.Name, completer, opts...))
		logger.Infof("[Moderation] Registered provider %s (%s, model %s)", pc.Name, pc.Provider, pc.Model)
	}
	return providers, nil
}

// NewEngineFromConfig is the usual way to build an Engine at startup.
func NewEngineFromConfig(cfg config.ModerationConfig, observers ...CallObserver) (*Engine, error) {
	providers, err := NewProvidersFromConfig(cfg, observers...)
	if err != nil {
		return nil, err
	}
	return NewEngine(providers, WithTotalTimeout(cfg.TotalTimeout)), nil
}
