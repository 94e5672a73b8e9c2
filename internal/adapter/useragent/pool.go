// Package useragent rotates the User-Agent header sent by the fetchers.
package useragent

import "sync"

var browserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// Pool hands out user agents in round-robin order.
type Pool struct {
	agents []string

	mu  sync.Mutex
	idx int
}

// New returns a pool that always yields fixed when it is non-empty, and
// rotates through common desktop browsers otherwise.
func New(fixed string) *Pool {
	if fixed != "" {
		return &Pool{agents: []string{fixed}}
	}
	return &Pool{agents: browserAgents}
}

// Next returns the next user agent.
func (p *Pool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ua := p.agents[p.idx]
	p.idx = (p.idx + 1) % len(p.agents)
	return ua
}
