package payments

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/brickapparel/storefront-backend/pkg/config"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/metrics"
)

const (
	defaultCallTimeout = 10 * time.Second
	defaultMaxAttempts = 3
	defaultBaseBackoff = 200 * time.Millisecond
	defaultMaxBackoff  = 2 * time.Second
	jitterWindow       = 100 * time.Millisecond
)

type outcome int

const (
	outcomeFatal outcome = iota
	outcomeRetry
	outcomeDeclined
)

// classifier maps a provider SDK error to a retry outcome and a short reason.
type classifier func(err error) (outcome, string)

// DeclineDetails is attached to PAYMENT_DECLINED errors.
type DeclineDetails struct {
	Provider enums.PaymentProvider `json:"provider"`
	Reason   string                `json:"reason"`
}

// Policy bounds provider calls with a per-attempt timeout and retries
// transient failures with exponential backoff.
type Policy struct {
	timeout     time.Duration
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	metrics     *metrics.FulfillmentMetrics
	logg        *logger.Logger
	sleep       func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	jitter *rand.Rand
}

func NewPolicy(cfg config.PaymentsConfig, m *metrics.FulfillmentMetrics, logg *logger.Logger) *Policy {
	p := &Policy{
		timeout:     cfg.CallTimeout,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
		maxBackoff:  cfg.MaxBackoff,
		metrics:     m,
		logg:        logg,
		sleep:       sleepContext,
		jitter:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if p.timeout <= 0 {
		p.timeout = defaultCallTimeout
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = defaultMaxAttempts
	}
	if p.baseBackoff <= 0 {
		p.baseBackoff = defaultBaseBackoff
	}
	if p.maxBackoff < p.baseBackoff {
		p.maxBackoff = defaultMaxBackoff
	}
	return p
}

func (p *Policy) do(ctx context.Context, provider enums.PaymentProvider, op string, classify classifier, fn func(ctx context.Context) error) error {
	var (
		backoff time.Duration
		lastErr error
	)
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		start := time.Now()
		err := fn(callCtx)
		cancel()
		p.metrics.ObserveProviderCall(string(provider), op, time.Since(start))
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return pkgerrors.Wrapf(pkgerrors.CodeProviderUnavailable, err, "%s %s interrupted", provider, op)
		}

		result, reason := classify(err)
		if isTransport(err) {
			result = outcomeRetry
		}
		switch result {
		case outcomeDeclined:
			return pkgerrors.Wrap(pkgerrors.CodePaymentDeclined, err, "payment declined").
				WithDetails(DeclineDetails{Provider: provider, Reason: reason})
		case outcomeFatal:
			return pkgerrors.Wrapf(pkgerrors.CodeInternal, err, "%s %s rejected: %s", provider, op, reason)
		}

		if attempt == p.maxAttempts {
			break
		}
		p.metrics.IncProviderRetry(string(provider), op)
		if p.logg != nil {
			logCtx := p.logg.WithFields(ctx, map[string]any{
				"provider":  string(provider),
				"operation": op,
				"attempt":   attempt,
				"reason":    reason,
			})
			p.logg.Warn(logCtx, "payment provider call failed, retrying")
		}
		backoff = nextBackoff(backoff, p.baseBackoff, p.maxBackoff)
		if err := p.sleep(ctx, p.withJitter(backoff)); err != nil {
			return pkgerrors.Wrapf(pkgerrors.CodeProviderUnavailable, lastErr, "%s %s interrupted", provider, op)
		}
	}
	return pkgerrors.Wrapf(pkgerrors.CodeProviderUnavailable, lastErr, "%s unavailable after %d attempts", provider, p.maxAttempts)
}

// isTransport reports network failures and per-attempt timeouts.
func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		return base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func (p *Policy) withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return d + time.Duration(p.jitter.Int63n(int64(jitterWindow)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classifyStatus is the shared HTTP status rule set.
func classifyStatus(status int) outcome {
	switch {
	case status == 0:
		return outcomeRetry
	case status == 429 || status >= 500:
		return outcomeRetry
	case status == 402:
		return outcomeDeclined
	default:
		return outcomeFatal
	}
}
