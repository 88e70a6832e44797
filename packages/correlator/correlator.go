package correlator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/tentspec/packages/assertions"
	"github.com/abdul-hamid-achik/tentspec/packages/results"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultTick    = time.Second

	// DefaultMarkerHeader marks requests the harness itself sends to the
	// peer. They are never buffered.
	DefaultMarkerHeader = "X-Tentspec-Marker"
)

// Correlator buffers side-channel exchanges and binds them to expectations.
type Correlator struct {
	mu       sync.Mutex
	watched  map[string]int
	buffer   []*Exchange
	general  []*Exchange
	pending  []*Expectation
	timeout  time.Duration
	tick     time.Duration
	marker   string
	schemas  assertions.SchemaValidator
	logger   *slog.Logger
	onTick   func(remaining int)
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithTimeout bounds how long Drain waits for outstanding expectations.
func WithTimeout(d time.Duration) Option {
	return func(c *Correlator) {
		c.timeout = d
	}
}

// WithTick sets the polling interval of Drain.
func WithTick(d time.Duration) Option {
	return func(c *Correlator) {
		c.tick = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Correlator) {
		c.logger = l
	}
}

func WithMarkerHeader(name string) Option {
	return func(c *Correlator) {
		c.marker = name
	}
}

// WithSchemas sets the validator for schema assertions on peer responses.
func WithSchemas(s assertions.SchemaValidator) Option {
	return func(c *Correlator) {
		c.schemas = s
	}
}

// WithTickFunc is called on every Drain tick with the number of
// expectations still outstanding.
func WithTickFunc(fn func(remaining int)) Option {
	return func(c *Correlator) {
		c.onTick = fn
	}
}

func New(opts ...Option) *Correlator {
	c := &Correlator{
		watched: make(map[string]int),
		timeout: DefaultTimeout,
		tick:    DefaultTick,
		marker:  DefaultMarkerHeader,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MarkerHeader is the header that excludes a request from capture.
func (c *Correlator) MarkerHeader() string {
	return c.marker
}

// Watch arms or disarms capture for key. Arming is counted so nested
// watches of the same key compose.
func (c *Correlator) Watch(key string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.watched[key]++
		return
	}
	if c.watched[key] <= 1 {
		delete(c.watched, key)
		return
	}
	c.watched[key]--
}

// Watching reports whether key is armed.
func (c *Correlator) Watching(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watched[key] > 0
}

// Observe buffers ex if its key is watched, otherwise into the general
// buffer while expectations are outstanding. Anything else is dropped.
func (c *Correlator) Observe(ex *Exchange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.watched[ex.Key] > 0:
		c.buffer = append(c.buffer, ex)
	case len(c.pending) > 0:
		c.general = append(c.general, ex)
	default:
		c.logger.Debug("dropping unwatched exchange", "key", ex.Key, "method", ex.Method, "path", ex.Path)
		return
	}
	c.logger.Debug("captured exchange", "key", ex.Key, "method", ex.Method, "path", ex.Path)
}

// Expect registers an expectation. path is the results path of the node
// that declared it, without the validator name.
func (c *Correlator) Expect(validator string, path []string, m RequestMatcher) *Expectation {
	full := append([]string{validator}, path...)
	e := newExpectation(validator, full, m, c.schemas)
	c.mu.Lock()
	c.pending = append(c.pending, e)
	c.mu.Unlock()
	return e
}

// Outstanding is the number of expectations not yet bound.
func (c *Correlator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Buffered reports the sizes of the watched and general buffers.
func (c *Correlator) Buffered() (watched, general int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer), len(c.general)
}

// Outcome is the scored record of one expectation.
type Outcome struct {
	Validator string
	Path      []string
	Record    *results.Record
	Matched   bool
}

// Node places the outcome's record in a results tree.
func (o Outcome) Node() *results.Node {
	return results.At([]*results.Record{o.Record}, o.Path...)
}

// Drain binds buffered exchanges to outstanding expectations, polling every
// tick until none remain, the timeout elapses or ctx is done. Expectations
// left unbound are scored against an empty exchange. Buffers are reset on
// return.
func (c *Correlator) Drain(ctx context.Context) []Outcome {
	var outcomes []Outcome

	c.mu.Lock()
	total := len(c.pending)
	c.mu.Unlock()
	if total == 0 {
		c.reset()
		return nil
	}

	c.logger.Info("waiting for side-channel requests", "expectations", total, "timeout", c.timeout)

	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	outcomes = append(outcomes, c.bind()...)

loop:
	for c.Outstanding() > 0 {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline.C:
			break loop
		case <-ticker.C:
			outcomes = append(outcomes, c.bind()...)
			if c.onTick != nil {
				c.onTick(c.Outstanding())
			}
		}
	}

	c.mu.Lock()
	left := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, e := range left {
		c.logger.Warn("expected request never arrived", "validator", e.validator, "expectation", e.Description())
		outcomes = append(outcomes, Outcome{
			Validator: e.validator,
			Path:      e.Path(),
			Record:    e.Score(emptyExchange()),
		})
	}

	c.reset()
	return outcomes
}

// bind walks the watched buffer and then the general buffer. Each
// exchange goes to the outstanding expectations that accept it, in
// registration order: the first one it scores as passing for, otherwise
// the first candidate. A bound exchange is consumed.
func (c *Correlator) bind() []Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	var outcomes []Outcome
	for _, buf := range []*[]*Exchange{&c.buffer, &c.general} {
		kept := (*buf)[:0]
		for _, ex := range *buf {
			e, rec, ok := c.claim(ex)
			if !ok {
				kept = append(kept, ex)
				continue
			}
			outcomes = append(outcomes, Outcome{
				Validator: e.validator,
				Path:      e.Path(),
				Record:    rec,
				Matched:   true,
			})
		}
		for i := len(kept); i < len(*buf); i++ {
			(*buf)[i] = nil
		}
		*buf = kept
	}
	return outcomes
}

// claim picks the expectation ex is bound to and removes it from pending.
func (c *Correlator) claim(ex *Exchange) (*Expectation, *results.Record, bool) {
	chosen := -1
	var rec *results.Record
	for i, e := range c.pending {
		if !e.accepts(ex) {
			continue
		}
		scored := e.Score(ex)
		if chosen < 0 {
			chosen, rec = i, scored
		}
		if scored.Passed() {
			chosen, rec = i, scored
			break
		}
	}
	if chosen < 0 {
		return nil, nil, false
	}
	e := c.pending[chosen]
	c.pending = append(c.pending[:chosen], c.pending[chosen+1:]...)
	return e, rec, true
}

func (c *Correlator) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = nil
	c.general = nil
}
