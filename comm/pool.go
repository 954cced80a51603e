package comm

import (
	"io"
	"sync"
	"time"
)

// CreationFunc returns a new "connection" to something.  Use a closure to
// encapsulate addresses, serial configs, and so forth.
type CreationFunc func() (io.ReadWriteCloser, error)

// Pool is a communication pool which holds one or more connections to a
// device.  Connections are closed when they sit unused for the reclaim
// timeout and re-opened as needed.  It is concurrent safe.  Pools must be
// created with NewPool.
//
// A pool of size 1 serializes access to a half-duplex device.
type Pool struct {
	maxSize int                     // maximum number of connections, == cap(conns)
	onLease int                     // number of connections given out
	timeout time.Duration           // time after len(conns) == maxSize to free all connections
	conns   chan io.ReadWriteCloser // the circular buffer of connections
	timer   *time.Timer             // fires to destroy idle connections
	maker   CreationFunc

	reclaiming bool
	mu         *sync.Mutex
}

// NewPool creates a new pool of up to maxSize connections, reclaimed after
// they are all returned and timeout elapses.
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	p := &Pool{
		maxSize: maxSize,
		timeout: timeout,
		conns:   make(chan io.ReadWriteCloser, maxSize),
		timer:   time.NewTimer(timeout),
		maker:   maker,
		mu:      &sync.Mutex{},
	}
	p.timer.Stop() // nothing to reclaim yet
	return p
}

// Get retrieves a connection from the pool, blocking until one is available
// if all are in use.  The caller has exclusive use of the ReadWriter until it
// is returned with Put, ReturnWithError, or discarded with Destroy.
//
// If the error from Get is not nil, the value must not be returned to the
// pool.
func (p *Pool) Get() (io.ReadWriter, error) {
	// stopping the timer can fail as documented on time.Timer, but a new
	// connection is made with retry logic anyway, so ignore it.
	p.timer.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	// short circuit: if a connection is available, immediately return it
	if len(p.conns) > 0 {
		ret := <-p.conns
		p.onLease++
		return ret, nil
	}
	// if they're all given out, wait for one to come back
	if p.onLease == p.maxSize {
		ret := <-p.conns
		p.onLease++
		return ret, nil
	}
	// none available and not all given out; make a fresh one.  Only count
	// the lease if the maker gave us something other than garbage.
	c, err := p.maker()
	if err == nil {
		p.onLease++
	}
	return c, err
}

// Put restores a connection to the pool.  It may be reused, or will be freed
// after all connections are returned and the timeout elapses.  Junk
// connections (ones that always error) should be Destroy()'d instead.
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := (rw).(io.ReadWriteCloser)
	p.conns <- rwc
	p.onLease--
	if len(p.conns) == p.maxSize {
		p.startReclaim()
	}
}

// Destroy immediately frees a connection from the pool.  Use it instead of
// Put when the connection has gone bad.
func (p *Pool) Destroy(rw io.ReadWriter) {
	rwc := (rw).(io.ReadWriteCloser)
	rwc.Close()
	p.onLease--
}

// ReturnWithError puts rw back in the pool if err is nil, or destroys it
// otherwise.  It streamlines the common deferred cleanup in device drivers.
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if err != nil {
		p.Destroy(rw)
		return
	}
	p.Put(rw)
}

// Size returns the number of connections in the pool or given out from it.
func (p *Pool) Size() int {
	return len(p.conns) + p.onLease
}

// Active returns the number of connections currently given out.
func (p *Pool) Active() int {
	return p.onLease
}

// startReclaim spawns a goroutine which closes all pooled connections after
// the timeout elapses.
func (p *Pool) startReclaim() {
	defer func() { p.reclaiming = true }()
	if !p.reclaiming {
		p.timer.Reset(p.timeout)
		go func() {
			defer func() { p.reclaiming = false }()
			<-p.timer.C
			for len(p.conns) > 0 {
				closer := <-p.conns
				closer.Close()
			}
		}()
	}
}
