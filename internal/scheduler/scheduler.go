package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/download"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/registry"
)

// Job is one URL to save under FileName.
type Job struct {
	URL      string
	FileName string
}

type Options struct {
	// Output receives status updates. When nil, Run creates a manager and owns its display.
	Output *output.Manager
	// Workers caps how many jobs transfer at once; zero or less starts them all.
	Workers int
}

type Result struct {
	Finished  int
	Failed    int
	Cancelled int
}

type run struct {
	reg     *registry.Registry
	mgr     *output.Manager
	queue   []Job
	workers int
	ours    map[registry.Handle]string
	done    map[registry.Handle]bool
	running int
	result  Result
}

// Run starts jobs through reg, mirrors their events into the display and waits
// for all of them. Cancelling ctx stops every job it started.
func Run(ctx context.Context, reg *registry.Registry, jobs []Job, opts Options) (Result, error) {
	mgr := opts.Output
	if mgr == nil {
		mgr = output.NewManager()
		mgr.StartDisplay()
		defer mgr.StopDisplay()
	}
	r := &run{
		reg:     reg,
		mgr:     mgr,
		queue:   jobs,
		workers: opts.Workers,
		ours:    make(map[registry.Handle]string),
		done:    make(map[registry.Handle]bool),
	}
	if r.workers <= 0 {
		r.workers = len(jobs)
	}
	sub := reg.Subscribe()
	defer sub.Close()

	r.startNext()
	ctxDone := ctx.Done()
	for r.pending() > 0 {
		select {
		case <-ctxDone:
			ctxDone = nil
			log.Info().Str("op", "scheduler/scheduler").Msgf("interrupted, stopping %d downloads", r.running)
			r.result.Cancelled += len(r.queue)
			r.queue = nil
			for h := range r.ours {
				if !r.done[h] {
					reg.Stop(h)
				}
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return r.result, fmt.Errorf("registry closed with %d downloads pending", r.pending())
			}
			r.handle(ev)
		}
	}

	if r.result.Failed > 0 {
		return r.result, fmt.Errorf("%d of %d downloads failed", r.result.Failed, len(jobs))
	}
	return r.result, ctx.Err()
}

func (r *run) pending() int {
	return len(r.queue) + r.running
}

func (r *run) startNext() {
	for r.running < r.workers && len(r.queue) > 0 {
		job := r.queue[0]
		r.queue = r.queue[1:]
		h, err := r.reg.StartNew(job.URL, job.FileName)
		if err != nil {
			key := fmt.Sprintf("rejected-%d", r.result.Failed+1)
			r.mgr.Register(key, job.FileName)
			r.mgr.ReportError(key, err)
			r.result.Failed++
			continue
		}
		r.ours[h] = job.FileName
		r.running++
	}
}

func (r *run) handle(ev registry.Event) {
	name, ok := r.ours[ev.Handle]
	if !ok || r.done[ev.Handle] {
		return
	}
	key := string(ev.Handle)
	switch ev.Kind {
	case registry.Added:
		r.mgr.Register(key, name)
		r.mgr.SetMessage(key, fmt.Sprintf("Probing %s", name))
		r.mgr.AddStreamLine(key, ev.Info.URL)
	case registry.Removed:
		r.mgr.Cancel(key, fmt.Sprintf("Removed %s", name))
		r.finish(ev.Handle, &r.result.Cancelled)
	case registry.TaskEvent:
		r.handleTask(key, name, ev)
	}
}

func (r *run) handleTask(key, name string, ev registry.Event) {
	if ev.Task.Kind == download.ProgressChanged {
		r.mgr.SetProgress(key, ev.Task.Downloaded, ev.Info.Size)
		return
	}
	switch ev.Task.State {
	case download.Downloading:
		r.mgr.SetStatus(key, output.StatusActive)
		r.mgr.SetMessage(key, fmt.Sprintf("Downloading %s", name))
	case download.Paused:
		r.mgr.SetStatus(key, output.StatusPaused)
		r.mgr.SetMessage(key, fmt.Sprintf("Paused %s", name))
	case download.Finished:
		r.mgr.Complete(key, fmt.Sprintf("Downloaded %s %s %s", name, output.StyleSymbols["arrow"], ev.Info.Path))
		r.finish(ev.Handle, &r.result.Finished)
	case download.Failed:
		r.mgr.ReportError(key, ev.Task.Err)
		r.finish(ev.Handle, &r.result.Failed)
	case download.Cancelled:
		r.mgr.Cancel(key, fmt.Sprintf("Cancelled %s", name))
		r.finish(ev.Handle, &r.result.Cancelled)
	}
}

func (r *run) finish(h registry.Handle, counter *int) {
	r.done[h] = true
	*counter++
	r.running--
	r.startNext()
}
