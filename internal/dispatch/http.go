package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/symptom-triage-server/internal/domain"
)

// ErrDispatchRejected is returned when the endpoint answers with a non-2xx
// status.
var ErrDispatchRejected = errors.New("dispatch endpoint rejected request")

// HTTPDispatcher posts escalations as JSON to an external endpoint behind
// a circuit breaker and a rate limiter.
type HTTPDispatcher struct {
	endpoint      string
	apiKey        string
	httpClient    *http.Client
	rateLimit     *rate.Limiter
	breaker       *gobreaker.CircuitBreaker
	retryCount    int
	retryInterval time.Duration
	logger        *logrus.Logger
}

// NewHTTPDispatcher creates a dispatcher from configuration, filling in
// defaults for zero values.
func NewHTTPDispatcher(config domain.DispatchConfig, logger *logrus.Logger) *HTTPDispatcher {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = time.Second
	}
	if config.CircuitBreaker.MaxRequests == 0 {
		config.CircuitBreaker.MaxRequests = 3
	}
	if config.CircuitBreaker.Interval == 0 {
		config.CircuitBreaker.Interval = 60 * time.Second
	}
	if config.CircuitBreaker.Timeout == 0 {
		config.CircuitBreaker.Timeout = 30 * time.Second
	}
	if config.CircuitBreaker.FailureThreshold == 0 {
		config.CircuitBreaker.FailureThreshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "EmergencyDispatch",
		MaxRequests: config.CircuitBreaker.MaxRequests,
		Interval:    config.CircuitBreaker.Interval,
		Timeout:     config.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.CircuitBreaker.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from,
				"to_state":        to,
			}).Warn("Circuit breaker state changed")
		},
	}

	return &HTTPDispatcher{
		endpoint:      config.Endpoint,
		apiKey:        config.APIKey,
		httpClient:    &http.Client{Timeout: config.Timeout},
		rateLimit:     rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:       gobreaker.NewCircuitBreaker(settings),
		retryCount:    config.RetryCount,
		retryInterval: config.RetryInterval,
		logger:        logger,
	}
}

// Dispatch implements Dispatcher. Transient failures are retried up to the
// configured count; an open breaker fails immediately.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= d.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.retryInterval):
			}
		}

		if err := d.rateLimit.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait failed: %w", err)
		}

		_, lastErr = d.breaker.Execute(func() (interface{}, error) {
			return nil, d.post(ctx, body)
		})
		if lastErr == nil {
			d.logger.WithFields(logrus.Fields{
				"escalation_id": req.EscalationID,
				"session_id":    req.SessionID,
				"attempt":       attempt + 1,
			}).Info("Emergency dispatch delivered")
			return nil
		}
		if errors.Is(lastErr, gobreaker.ErrOpenState) || errors.Is(lastErr, gobreaker.ErrTooManyRequests) {
			break
		}

		d.logger.WithError(lastErr).WithFields(logrus.Fields{
			"escalation_id": req.EscalationID,
			"attempt":       attempt + 1,
		}).Warn("Emergency dispatch attempt failed")
	}

	return fmt.Errorf("dispatch %s failed: %w", req.EscalationID, lastErr)
}

func (d *HTTPDispatcher) post(ctx context.Context, body []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "Symptom-Triage-Server/1.0")
	if d.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: status %d: %s", ErrDispatchRejected, resp.StatusCode, string(msg))
	}
	return nil
}

// State exposes the breaker state for health reporting.
func (d *HTTPDispatcher) State() gobreaker.State {
	return d.breaker.State()
}

// New selects a dispatcher by mode. Unknown modes fall back to the
// simulated dispatcher.
func New(config domain.DispatchConfig, logger *logrus.Logger) Dispatcher {
	switch config.Mode {
	case "http":
		return NewHTTPDispatcher(config, logger)
	default:
		return NewLogDispatcher(logger)
	}
}
