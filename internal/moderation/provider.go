package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/debatehub/backend/pkg/logger"
	"github.com/sony/gobreaker"
)

// DefaultProviderTimeout bounds a single provider evaluation.
const DefaultProviderTimeout = 20 * time.Second

// Provider is one AI classifier. Evaluate never fails: any problem is
// reported as FallbackVerdict.
type Provider interface {
	Name() string
	Evaluate(ctx context.Context, title, content string) Verdict
}

// Reporter is implemented by providers that can describe how their verdict
// was produced. The consensus engine prefers it when available.
type Reporter interface {
	EvaluateDetailed(ctx context.Context, title, content string) Result
}

// Result is one provider's contribution to an analysis.
type Result struct {
	Provider string        `json:"provider"`
	Backend  string        `json:"backend,omitempty"`
	Verdict  Verdict       `json:"verdict"`
	Fallback bool          `json:"fallback"`
	Attempts int           `json:"attempts"`
	Latency  time.Duration `json:"latency"`
	Err      error         `json:"-"`
}

// Completer sends a prompt to a text-completion backend and returns the raw
// model text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// CallObserver receives every finished provider evaluation.
type CallObserver func(Result)

// Adapter turns a Completer into a Provider: it builds the classification
// prompt, bounds the call in time, retries transient failures, and parses the
// model answer into a Verdict.
type Adapter struct {
	name      string
	backend   string
	completer Completer
	timeout   time.Duration
	retries   int
	breaker   *gobreaker.CircuitBreaker
	observers []CallObserver
}

type AdapterOption func(*Adapter)

func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithRetries sets how many extra attempts follow a failed call.
func WithRetries(n int) AdapterOption {
	return func(a *Adapter) {
		if n >= 0 {
			a.retries = n
		}
	}
}

func WithBreaker(cb *gobreaker.CircuitBreaker) AdapterOption {
	return func(a *Adapter) { a.breaker = cb }
}

func WithBackend(backend string) AdapterOption {
	return func(a *Adapter) { a.backend = backend }
}

func WithObserver(o CallObserver) AdapterOption {
	return func(a *Adapter) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

func NewAdapter(name string, completer Completer, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		name:      name,
		completer: completer,
		timeout:   DefaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Evaluate(ctx context.Context, title, content string) Verdict {
	return a.EvaluateDetailed(ctx, title, content).Verdict
}

func (a *Adapter) EvaluateDetailed(ctx context.Context, title, content string) Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	prompt := BuildPrompt(title, content)

	verdict, attempts, err := a.call(ctx, prompt)

	result := Result{
		Provider: a.name,
		Backend:  a.backend,
		Verdict:  verdict,
		Attempts: attempts,
		Latency:  time.Since(start),
		Err:      err,
	}
	if err != nil {
		logger.Warn().Err(err).
			Str("provider", a.name).
			Int("attempts", attempts).
			Dur("latency", result.Latency).
			Msg("[Moderation] Provider failed, using fallback verdict")
		result.Verdict = FallbackVerdict()
		result.Fallback = true
	} else {
		logger.Debug().
			Str("provider", a.name).
			Bool("approved", verdict.Approved).
			Str("risk", string(verdict.RiskLevel)).
			Dur("latency", result.Latency).
			Msg("[Moderation] Provider verdict")
	}

	for _, o := range a.observers {
		o(result)
	}
	return result
}

const promptTemplate = `You are a content moderator for a structured debate platform where users discuss topics, questions and arguments.
Evaluate the submission below. Reasoned disagreement, criticism of ideas and strong opinions are acceptable.
Reject hate speech, harassment, threats, incitement to violence, sexual content, spam, doxxing and illegal content.

Answer ONLY with a JSON object of this exact shape:
{
  "isApproved": true or false,
  "confidence": number between 0 and 1,
  "riskLevel": "LOW" | "MEDIUM" | "HIGH" | "CRITICAL",
  "categories": ["UPPER_SNAKE_CASE tags such as EDUCATIONAL, OPINION, TOXIC, HATE_SPEECH, SPAM, VIOLENCE"],
  "reasons": ["short reasons for the decision"],
  "suggestions": ["optional suggestions to improve the content"]
}

Title: %s

Content:
%s`

// BuildPrompt renders the classification prompt for one submission.
func BuildPrompt(title, content string) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(title), strings.TrimSpace(content))
}
