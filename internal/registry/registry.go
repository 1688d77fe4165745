// Package registry keeps the set of active download tasks and is the single
// point of coordination for starting, controlling and removing them.
package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/broadcast"
	"github.com/tanq16/vidgrab/internal/download"
	"github.com/tanq16/vidgrab/internal/utils"
)

var ErrClosed = errors.New("registry closed")

// Handle identifies a task inside one registry.
type Handle string

type Entry struct {
	Handle Handle
	Task   *download.Task
}

type EventKind int

const (
	Added EventKind = iota
	Removed
	TaskEvent
)

// Event is a registry notification. Task is set for TaskEvent only.
type Event struct {
	Kind   EventKind
	Handle Handle
	Info   download.Info
	Task   download.Event
}

type Subscription = broadcast.Subscription[Event]

type Option func(*Registry)

func WithSaveDir(dir string) Option {
	return func(r *Registry) { r.taskOpts = append(r.taskOpts, download.WithSaveDir(dir)) }
}

func WithChunkSize(n int) Option {
	return func(r *Registry) { r.taskOpts = append(r.taskOpts, download.WithChunkSize(n)) }
}

func WithClient(client utils.HTTPDoer) Option {
	return func(r *Registry) { r.taskOpts = append(r.taskOpts, download.WithClient(client)) }
}

// WithAutoRemove drops tasks from the registry once they reach a terminal state.
func WithAutoRemove(enabled bool) Option {
	return func(r *Registry) { r.autoRemove = enabled }
}

type Registry struct {
	taskOpts   []download.Option
	autoRemove bool

	mu     sync.RWMutex
	order  []Handle
	tasks  map[Handle]*download.Task
	closed bool

	subsMu sync.Mutex
	subs   map[*Subscription]struct{}

	// live counts forwarders still running; idle is closed whenever it is zero
	live int
	idle chan struct{}
}

func New(opts ...Option) *Registry {
	idle := make(chan struct{})
	close(idle)
	r := &Registry{
		tasks: make(map[Handle]*download.Task),
		subs:  make(map[*Subscription]struct{}),
		idle:  idle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartNew creates a task for url, registers it and starts it. It returns as
// soon as the transfer goroutine is running.
func (r *Registry) StartNew(url, fileName string) (Handle, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrClosed
	}
	task := download.New(url, fileName, r.taskOpts...)
	h := Handle(uuid.NewString())
	r.order = append(r.order, h)
	r.tasks[h] = task
	r.publish(Event{Kind: Added, Handle: h, Info: task.Snapshot()})
	sub := task.Subscribe()
	if r.live == 0 {
		r.idle = make(chan struct{})
	}
	r.live++
	r.mu.Unlock()

	go r.forward(h, sub)
	if err := task.Start(); err != nil {
		r.Remove(h)
		return "", err
	}
	log.Debug().Str("op", "registry/registry").Str("handle", string(h)).Msgf("started %s -> %s", url, task.Path())
	return h, nil
}

func (r *Registry) forward(h Handle, sub *download.Subscription) {
	defer r.forwarderDone()
	for ev := range sub.Events() {
		r.mu.RLock()
		task, ok := r.tasks[h]
		if ok {
			r.publish(Event{Kind: TaskEvent, Handle: h, Info: task.Snapshot(), Task: ev})
		}
		r.mu.RUnlock()
		if ok && r.autoRemove && ev.Kind == download.StateChanged && ev.State.IsTerminal() {
			r.Remove(h)
		}
	}
}

// Remove stops the task behind h and deletes its entry. Unknown handles are ignored.
func (r *Registry) Remove(h Handle) {
	r.mu.Lock()
	task, ok := r.tasks[h]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.tasks, h)
	for i, cur := range r.order {
		if cur == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.publish(Event{Kind: Removed, Handle: h, Info: task.Snapshot()})
	r.mu.Unlock()
	task.Stop()
	log.Debug().Str("op", "registry/registry").Str("handle", string(h)).Msg("removed")
}

func (r *Registry) Get(h Handle) (*download.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[h]
	return task, ok
}

// Entries returns the registered tasks in insertion order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.order))
	for _, h := range r.order {
		entries = append(entries, Entry{Handle: h, Task: r.tasks[h]})
	}
	return entries
}

func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Handle(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) Pause(h Handle) {
	if task, ok := r.Get(h); ok {
		task.Pause()
	}
}

func (r *Registry) Resume(h Handle) {
	if task, ok := r.Get(h); ok {
		task.Resume()
	}
}

func (r *Registry) Stop(h Handle) {
	if task, ok := r.Get(h); ok {
		task.Stop()
	}
}

// StopAll stops every registered task without removing it.
func (r *Registry) StopAll() {
	for _, e := range r.Entries() {
		e.Task.Stop()
	}
}

// Subscribe returns registry events from now on. Events of one task arrive in
// the order the task issued them. The subscription holds a delivery goroutine
// until it is closed or the registry is, so callers must Close it when done.
func (r *Registry) Subscribe() *Subscription {
	var sub *Subscription
	sub = broadcast.New[Event](func() {
		r.subsMu.Lock()
		delete(r.subs, sub)
		r.subsMu.Unlock()
	})
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		sub.End()
		return sub
	}
	r.subsMu.Lock()
	r.subs[sub] = struct{}{}
	r.subsMu.Unlock()
	return sub
}

func (r *Registry) publish(ev Event) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for sub := range r.subs {
		sub.Push(ev)
	}
}

func (r *Registry) forwarderDone() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live--
	if r.live == 0 {
		close(r.idle)
	}
}

// idleCh returns a channel closed once no task is running. Tasks started
// before that moment are included in the wait.
func (r *Registry) idleCh() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.idle
}

// Wait blocks until every started task has ended and its events were forwarded.
func (r *Registry) Wait(ctx context.Context) error {
	select {
	case <-r.idleCh():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new tasks and stops every running one. Subscriptions end once
// all tasks have reached a terminal state.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.StopAll()
	idle := r.idleCh()
	go func() {
		<-idle
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		for sub := range r.subs {
			sub.End()
		}
	}()
}
