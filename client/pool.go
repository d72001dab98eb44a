package client

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed rejects Get on a pool that has been closed.
var ErrPoolClosed = errors.New("client: pool is closed")

// Pool manages reusable connected clients to a single peer, for
// embedders that want isolated sessions per unit of work instead of
// multiplexing everything over one. A buffered channel serves as the
// FIFO queue: concurrency-safe, and blocking on empty is built in.
type Pool struct {
	mu         sync.Mutex
	clients    chan *Client
	maxClients int
	curClients int
	closed     bool
	factory    func() (*Client, error)
}

// NewPool creates a pool with the given size cap. Clients are created
// lazily by factory, typically a Dial closure.
func NewPool(maxClients int, factory func() (*Client, error)) *Pool {
	return &Pool{
		clients:    make(chan *Client, maxClients),
		maxClients: maxClients,
		factory:    factory,
	}
}

// Get retrieves a client:
//  1. reuse an idle one if available (discarding any that died idle)
//  2. create a new one while under the cap
//  3. otherwise block until one is returned
//
// After Close, Get fails with ErrPoolClosed.
func (p *Pool) Get() (*Client, error) {
	select {
	case c, ok := <-p.clients:
		if !ok {
			return nil, ErrPoolClosed
		}
		if c.Closed() {
			p.forget(c)
			return p.createNew()
		}
		return c, nil
	default:
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		under := p.curClients < p.maxClients
		p.mu.Unlock()
		if under {
			return p.createNew()
		}
		c, ok := <-p.clients
		if !ok {
			return nil, ErrPoolClosed
		}
		if c.Closed() {
			p.forget(c)
			return p.createNew()
		}
		return c, nil
	}
}

// Put returns a client to the pool. A closed client is discarded so
// the next Get can replace it; after Close the client is simply
// closed.
func (p *Pool) Put(c *Client) {
	if c.Closed() {
		p.forget(c)
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.Close()
		return
	}
	// Under the lock the channel cannot be closed out from under us,
	// and the buffer holds maxClients so the send never blocks.
	p.clients <- c
	p.mu.Unlock()
}

// Close shuts down the pool and every idle client. Borrowed clients
// are the borrower's to close (returning one via Put also closes it).
// Idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.clients)
	for c := range p.clients {
		c.Close()
		p.curClients--
	}
	return nil
}

func (p *Pool) forget(c *Client) {
	c.Close()
	p.mu.Lock()
	p.curClients--
	p.mu.Unlock()
}

func (p *Pool) createNew() (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if p.curClients >= p.maxClients {
		return nil, fmt.Errorf("client: pool exhausted")
	}
	c, err := p.factory()
	if err != nil {
		return nil, err
	}
	p.curClients++
	return c, nil
}
