// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package workers implements a fixed pool of persistent goroutines that run
// reusable works. The caller fans out with Submit and fans back in with Join.
package workers

import (
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// package errors
var (
	ErrClosed = errors.New("workers: pool is closed")
	ErrBusy   = errors.New("workers: work is already submitted")
)

// Work is a reusable unit of work. The same Work may be submitted any
// number of times, but only once at a time.
type Work struct {
	fn func() error

	mu      sync.Mutex
	pending bool
	done    chan struct{}
	err     error
}

// NewWork creates a Work that calls fn each time it is run.
func NewWork(fn func() error) *Work {
	return &Work{fn: fn}
}

// Signal returns the completion signal of the latest submission.
// A Work never submitted is already fired.
func (w *Work) Signal() Signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == nil {
		return FiredSignal
	}
	return w.done
}

// Err returns the error of the latest completed run.
func (w *Work) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Work) arm() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending {
		return ErrBusy
	}
	w.pending = true
	w.err = nil
	w.done = make(chan struct{})
	return nil
}

func (w *Work) run() {
	err := w.call()
	w.mu.Lock()
	w.err = err
	w.pending = false
	close(w.done)
	w.mu.Unlock()
}

func (w *Work) call() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("workers: work panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return w.fn()
}

// Pool is a fixed set of goroutines, started once and kept
// until Close is called.
type Pool struct {
	size  int
	queue chan *Work
	log   logrus.FieldLogger
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New starts a pool of size goroutines.
func New(size int, logger logrus.FieldLogger) (*Pool, error) {
	if size < 1 {
		return nil, errors.Errorf("workers: pool size must be positive, got %d", size)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	p := &Pool{
		size:  size,
		queue: make(chan *Work, size),
		log:   logger,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	p.log.WithField("workers", size).Debug("worker pool started")
	return p, nil
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for w := range p.queue {
		w.run()
	}
	p.log.WithField("worker", id).Debug("worker stopped")
}

// Size returns the amount of goroutines in the pool.
func (p *Pool) Size() int {
	return p.size
}

// Submit queues the work to be run by the next free goroutine. It does not
// block as long as no more than Size works are outstanding.
func (p *Pool) Submit(w *Work) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := w.arm(); err != nil {
		return err
	}
	p.queue <- w
	return nil
}

// Join blocks until the latest submission of w has completed and
// returns its error. Joining a Work never submitted returns at once.
func (p *Pool) Join(w *Work) error {
	<-w.Signal()
	return w.Err()
}

// Close stops accepting works, lets the queued ones finish and
// stops the goroutines. Calling Close more than once is fine.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Debug("worker pool closed")
}
