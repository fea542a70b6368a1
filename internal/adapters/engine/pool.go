package engine

import (
	"context"
	"errors"
	"sync"

	perr "enginefeed/internal/platform/errors"
)

const defaultPoolSize = 2

// Pool hands out clients for concurrent job flows.
// Clients are keyed by engine root (scheme, host:port, base path) and each
// key holds at most Size clients; every client keeps its own single
// connection and one request at a time
type Pool struct {
	size int

	mu     sync.Mutex
	sets   map[string]*poolSet
	closed bool

	newClient func(context.Context, Options) (*Client, error)
}

type poolSet struct {
	idle   chan *Client
	tokens chan struct{}
}

// NewPool returns a pool allowing size clients per engine; size <= 0 means 2
func NewPool(size int) *Pool {
	if size <= 0 {
		size = defaultPoolSize
	}
	return &Pool{size: size, sets: map[string]*poolSet{}, newClient: NewClient}
}

// Size returns the per key client limit
func (p *Pool) Size() int { return p.size }

var errPoolClosed = errors.New("engine pool closed")

func (p *Pool) set(key string) (*poolSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, perr.Wrap(errPoolClosed, perr.ErrorCodeUnavailable, "engine pool acquire")
	}
	s, ok := p.sets[key]
	if !ok {
		s = &poolSet{idle: make(chan *Client, p.size), tokens: make(chan struct{}, p.size)}
		for range p.size {
			s.tokens <- struct{}{}
		}
		p.sets[key] = s
	}
	return s, nil
}

// Acquire returns a client for o's engine and a release func that must be
// called once the caller is done with it. It blocks while all clients for
// the key are in use, until one is released or ctx ends
func (p *Pool) Acquire(ctx context.Context, o Options) (*Client, func(), error) {
	o = o.withDefaults()
	s, err := p.set(o.root())
	if err != nil {
		return nil, nil, err
	}

	// prefer a warm client over dialing a new one
	select {
	case c := <-s.idle:
		return c, p.releaser(s, c), nil
	default:
	}

	select {
	case c := <-s.idle:
		return c, p.releaser(s, c), nil
	case <-s.tokens:
		c, err := p.newClient(ctx, o)
		if err != nil {
			s.tokens <- struct{}{}
			return nil, nil, err
		}
		return c, p.releaser(s, c), nil
	case <-ctx.Done():
		code := perr.ErrorCodeUnavailable
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code = perr.ErrorCodeTimeout
		}
		return nil, nil, perr.Wrapf(ctx.Err(), code, "engine pool acquire %s", o.Addr())
	}
}

func (p *Pool) releaser(s *poolSet, c *Client) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.closed {
				c.CloseIdle()
				return
			}
			// never blocks: at most size clients exist per key
			s.idle <- c
		})
	}
}

// Close releases idle connections and fails later Acquire calls.
// Clients still checked out are closed on release
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, s := range p.sets {
	drain:
		for {
			select {
			case c := <-s.idle:
				c.CloseIdle()
			default:
				break drain
			}
		}
	}
	p.sets = map[string]*poolSet{}
}
