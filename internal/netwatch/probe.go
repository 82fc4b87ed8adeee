package netwatch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Probe polls a lightweight remote endpoint and derives the connectivity
// state from the outcome: DNS/dial errors mean disconnected, HTTP-level
// failures mean connected but unreachable.
type Probe struct {
	notifier

	url      string
	interval time.Duration
	httpc    *http.Client
}

var _ Observer = (*Probe)(nil)

func NewProbe(url string, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Probe{
		url:      url,
		interval: interval,
		httpc:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *Probe) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	p.probeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.probeOnce(ctx)
		}
	}
}

func (p *Probe) probeOnce(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.set(State{})
		return
	}

	resp, err := p.httpc.Do(req)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) || errors.Is(err, context.DeadlineExceeded) {
			p.set(State{})
			return
		}
		// соединение есть, но до API не достучались
		p.set(State{Connected: true, Reachable: false})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		p.set(State{Connected: true, Reachable: false})
		return
	}
	p.set(State{Connected: true, Reachable: true})
}

// Manual is an observer driven from outside: the device shell reports
// transitions through the agent's HTTP surface. Used when the host platform
// already knows its connectivity better than a probe would.
type Manual struct {
	notifier
}

var _ Observer = (*Manual)(nil)

func NewManual(initial State) *Manual {
	m := &Manual{}
	m.state = initial
	return m
}

func (m *Manual) Set(s State) {
	m.set(s)
}
