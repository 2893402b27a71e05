package dingtalk

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/circuitbreaker"
)

// Pool hands out one Client per app key so access tokens are shared
// between backend instances.
type Pool struct {
	endpoints Endpoints
	doer      circuitbreaker.HTTPDoer
	logger    *zap.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

func NewPool(endpoints Endpoints, doer circuitbreaker.HTTPDoer, logger *zap.Logger) *Pool {
	return &Pool{
		endpoints: endpoints,
		doer:      doer,
		logger:    logger,
		clients:   make(map[string]*Client),
	}
}

// Client returns the client for appKey, creating it on first use. A
// changed secret replaces the cached client.
func (p *Pool) Client(appKey, appSecret string) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[appKey]; ok && c.appSecret == appSecret {
		return c
	}
	c := NewClient(appKey, appSecret, p.endpoints, p.doer, p.logger)
	p.clients[appKey] = c
	return c
}

// Robot returns a chatbot sender sharing the pool's transport.
func (p *Pool) Robot() *Robot {
	return NewRobot(p.doer)
}
