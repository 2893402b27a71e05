package circuitbreaker

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var errServerStatus = errors.New("server error status")

// Doer wraps an HTTPDoer with a CircuitBreaker. Transport errors and 5xx
// responses count as failures. A 5xx response is still handed back to the
// caller unchanged.
type Doer struct {
	client  HTTPDoer
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewDoer wraps client with breaker protection.
func NewDoer(client HTTPDoer, breaker *CircuitBreaker, logger *zap.Logger) *Doer {
	return &Doer{
		client:  client,
		breaker: breaker,
		logger:  logger,
	}
}

// Do sends req through the breaker. If the circuit is open it returns an
// error wrapping ErrCircuitOpen without touching the network.
func (d *Doer) Do(req *http.Request) (*http.Response, error) {
	result, err := d.breaker.Execute(func() (interface{}, error) {
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, fmt.Errorf("%w: %d", errServerStatus, resp.StatusCode)
		}
		return resp, nil
	})

	if errors.Is(err, ErrCircuitOpen) {
		d.logger.Warn("circuit breaker rejected request, failing fast",
			zap.String("breaker", d.breaker.Name()),
			zap.String("url", req.URL.Redacted()),
		)
		return nil, err
	}
	if errors.Is(err, errServerStatus) {
		return result.(*http.Response), nil
	}
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

// Breaker returns the underlying circuit breaker for monitoring.
func (d *Doer) Breaker() *CircuitBreaker {
	return d.breaker
}
