// Package health serves liveness and readiness probes.
//
// Probes run in rounds at a fixed interval; all probes of a round run
// concurrently. A probe flips to failing after FailureThreshold consecutive
// errors and back after SuccessThreshold consecutive successes.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a probe contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// Probe describes a single check.
type Probe struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Check   CheckFunc
	// FailureThreshold defaults to 3, SuccessThreshold to 1.
	FailureThreshold int
	SuccessThreshold int
}

type probeState struct {
	Probe

	passing atomic.Bool
	lastErr atomic.Pointer[string]

	// Only touched by the round that runs the probe.
	fails, oks int
}

func (p *probeState) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	if err := p.Check(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.oks = 0
		p.fails++
		if p.fails >= p.FailureThreshold {
			p.passing.Store(false)
		}
		return
	}
	p.lastErr.Store(nil)
	p.fails = 0
	p.oks++
	if p.oks >= p.SuccessThreshold {
		p.passing.Store(true)
	}
}

func (p *probeState) failure() (string, bool) {
	if p.passing.Load() {
		return "", false
	}
	if msg := p.lastErr.Load(); msg != nil {
		return *msg, true
	}
	return "check is failing", true
}

// Checker owns the registered probes and the manual readiness flag.
type Checker struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probeState
}

// New creates a Checker that reports not ready until SetReady(true).
func New() *Checker {
	return &Checker{}
}

// Register adds a probe. Probes start out passing.
func (c *Checker) Register(p Probe) {
	if p.Timeout <= 0 {
		p.Timeout = time.Second
	}
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = 3
	}
	if p.SuccessThreshold <= 0 {
		p.SuccessThreshold = 1
	}
	st := &probeState{Probe: p}
	st.passing.Store(true)

	c.mu.Lock()
	c.probes = append(c.probes, st)
	c.mu.Unlock()
}

func (c *Checker) snapshot(kind Kind) []*probeState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*probeState, 0, len(c.probes))
	for _, p := range c.probes {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// Round runs every probe once, concurrently.
func (c *Checker) Round(ctx context.Context) {
	c.mu.RLock()
	probes := append([]*probeState(nil), c.probes...)
	c.mu.RUnlock()

	var g errgroup.Group
	for _, p := range probes {
		g.Go(func() error {
			p.observe(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

// Run executes a round immediately and then every interval until ctx is
// done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Round(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Round(ctx)
		}
	}
}

// SetReady sets the manual readiness flag, cleared during shutdown.
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// Ready reports whether the flag is set and all readiness probes pass.
func (c *Checker) Ready() bool {
	if !c.ready.Load() {
		return false
	}
	for _, p := range c.snapshot(Readiness) {
		if _, failing := p.failure(); failing {
			return false
		}
	}
	return true
}

// LiveEndpoint serves /livez.
func (c *Checker) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(c.snapshot(Liveness)))
}

// ReadyEndpoint serves /readyz.
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	f := failures(c.snapshot(Readiness))
	if !c.ready.Load() {
		f["_readiness"] = "service is not ready"
	}
	writeStatus(w, f)
}

func failures(probes []*probeState) map[string]string {
	out := make(map[string]string)
	for _, p := range probes {
		if msg, failing := p.failure(); failing {
			out[p.Name] = msg
		}
	}
	return out
}

// writeStatus writes {"status":"ok"} or 503 with
// {"status":"unhealthy","checks":{name:error}}.
func writeStatus(w http.ResponseWriter, failed map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.Obj(func(e *jx.Encoder) {
		if len(failed) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		status = http.StatusServiceUnavailable
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		sort.Strings(names)
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failed[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
