package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/broadcast"
	"github.com/tanq16/vidgrab/internal/utils"
)

type command int

const (
	cmdPause command = iota + 1
	cmdResume
	cmdStop
)

type Option func(*Task)

// destination is where the transfer writes; an *os.File outside tests.
type destination interface {
	io.Writer
	Sync() error
	Close() error
}

func createFile(path string) (destination, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// WithSaveDir sets the directory the destination file is created in.
func WithSaveDir(dir string) Option {
	return func(t *Task) { t.saveDir = dir }
}

// WithChunkSize sets the bytes read and written per loop iteration.
func WithChunkSize(n int) Option {
	return func(t *Task) {
		if n > 0 {
			t.chunkSize = n
		}
	}
}

func WithClient(client utils.HTTPDoer) Option {
	return func(t *Task) {
		if client != nil {
			t.client = client
		}
	}
}

// Info is a point-in-time copy of a task's observable state.
type Info struct {
	URL        string
	FileName   string
	Path       string
	State      State
	Size       int64
	Downloaded int64
	Progress   int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Task transfers one URL into one file under pause, resume and stop control.
type Task struct {
	url       string
	fileName  string
	saveDir   string
	path      string
	chunkSize int
	client    utils.HTTPDoer
	create    func(path string) (destination, error)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	ctrlMu  sync.Mutex
	ctrl    chan command
	stopped bool

	mu         sync.Mutex
	started    bool
	state      State
	size       int64
	downloaded int64
	err        error
	startedAt  time.Time
	finishedAt time.Time
	subs       map[*Subscription]struct{}
}

func New(url, fileName string, opts ...Option) *Task {
	t := &Task{
		url:       url,
		fileName:  fileName,
		saveDir:   ".",
		chunkSize: utils.DefaultChunkSize,
		ctrl:      make(chan command, 1),
		done:      make(chan struct{}),
		state:     Initialized,
		size:      -1,
		subs:      make(map[*Subscription]struct{}),
		create:    createFile,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		t.client = utils.NewHTTPClient(utils.HTTPClientConfig{})
	}
	name := utils.SanitizeFileName(fileName)
	if name == "" {
		name = "download"
	}
	t.path = filepath.Join(t.saveDir, name)
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

func (t *Task) URL() string      { return t.url }
func (t *Task) FileName() string { return t.fileName }
func (t *Task) Path() string     { return t.path }

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Size is the probed content length, or -1 before the probe succeeded.
func (t *Task) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

func (t *Task) Downloaded() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloaded
}

func (t *Task) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progressLocked()
}

// Err is the failure cause for Failed tasks, ErrCancelled for Cancelled ones, nil otherwise.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) Snapshot() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Info{
		URL:        t.url,
		FileName:   t.fileName,
		Path:       t.path,
		State:      t.state,
		Size:       t.size,
		Downloaded: t.downloaded,
		Progress:   t.progressLocked(),
		Err:        t.err,
		StartedAt:  t.startedAt,
		FinishedAt: t.finishedAt,
	}
}

// Done is closed once the task has reached a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns an ordered event stream for this task. Subscribing to a
// task that already ended yields its final state event and a closed stream.
// Every subscription runs a delivery goroutine until the task ends or Close is
// called, so callers must Close subscriptions to tasks that may never finish.
func (t *Task) Subscribe() *Subscription {
	var sub *Subscription
	sub = broadcast.New[Event](func() { t.unsubscribe(sub) })
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		sub.Push(Event{Kind: StateChanged, State: t.state, Err: t.err})
		sub.End()
		return sub
	}
	t.subs[sub] = struct{}{}
	return sub
}

func (t *Task) unsubscribe(sub *Subscription) {
	t.mu.Lock()
	delete(t.subs, sub)
	t.mu.Unlock()
}

// Start launches the transfer on its own goroutine. It fails with
// ErrInvalidState unless the task is Initialized and was never started.
func (t *Task) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.state != Initialized {
		return fmt.Errorf("%w: cannot start task in state %s", ErrInvalidState, t.state)
	}
	t.started = true
	t.startedAt = time.Now()
	go t.run()
	return nil
}

// Pause asks the transfer to suspend at the next chunk boundary.
func (t *Task) Pause() { t.send(cmdPause) }

// Resume releases a pause, or withdraws one that was not applied yet.
func (t *Task) Resume() { t.send(cmdResume) }

// Stop cancels the transfer. It never blocks and wins over any later Pause or Resume.
func (t *Task) Stop() {
	t.send(cmdStop)
	t.cancel()
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started && t.state == Initialized {
		t.err = ErrCancelled
		t.setStateLocked(Cancelled)
		t.finishLocked()
	}
}

func (t *Task) send(cmd command) {
	t.ctrlMu.Lock()
	defer t.ctrlMu.Unlock()
	if t.stopped {
		return
	}
	if cmd == cmdStop {
		t.stopped = true
	}
	// only the latest command matters
	select {
	case <-t.ctrl:
	default:
	}
	t.ctrl <- cmd
}

func (t *Task) stopRequested() bool {
	t.ctrlMu.Lock()
	defer t.ctrlMu.Unlock()
	return t.stopped
}

func (t *Task) progressLocked() int {
	if t.size <= 0 {
		return 0
	}
	p := t.downloaded * 100 / t.size
	return int(max(0, min(p, 100)))
}

// setStateLocked applies a legal transition and notifies subscribers.
func (t *Task) setStateLocked(next State) bool {
	if !t.state.CanTransition(next) {
		log.Debug().Str("op", "download/task").Msgf("ignored transition %s -> %s for %s", t.state, next, t.url)
		return false
	}
	t.state = next
	ev := Event{Kind: StateChanged, State: next}
	if next == Failed || next == Cancelled {
		ev.Err = t.err
	}
	for sub := range t.subs {
		sub.Push(ev)
	}
	return true
}

func (t *Task) finishLocked() {
	t.finishedAt = time.Now()
	for sub := range t.subs {
		sub.End()
	}
	t.subs = make(map[*Subscription]struct{})
	close(t.done)
}

func (t *Task) setState(next State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setStateLocked(next)
}

func (t *Task) addProgress(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downloaded += int64(n)
	ev := Event{Kind: ProgressChanged, Progress: t.progressLocked(), Downloaded: t.downloaded}
	for sub := range t.subs {
		sub.Push(ev)
	}
}

// terminate moves the task into a terminal state, choosing Cancelled over
// Failed when the error came from a requested stop.
func (t *Task) terminate(err error) {
	next := Finished
	if err != nil {
		next = Failed
		if t.stopRequested() {
			next = Cancelled
			err = ErrCancelled
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
	t.setStateLocked(next)
	t.finishLocked()
	switch next {
	case Finished:
		log.Info().Str("op", "download/task").Str("url", t.url).Str("file", t.path).Msgf("download finished, %d bytes", t.downloaded)
	case Cancelled:
		log.Info().Str("op", "download/task").Str("url", t.url).Str("file", t.path).Msg("download cancelled")
	default:
		log.Error().Str("op", "download/task").Str("url", t.url).Str("file", t.path).Err(err).Msg("download failed")
	}
}

func (t *Task) run() {
	defer t.cancel()
	size, err := t.probe()
	if err != nil {
		t.terminate(err)
		return
	}
	t.mu.Lock()
	t.size = size
	t.mu.Unlock()
	log.Debug().Str("op", "download/task").Str("url", t.url).Msgf("probed size %d", size)
	t.terminate(t.transfer())
}

// probe learns the content length with HEAD. Sources that only sign GET
// (presigned object URLs) reject HEAD, so 403 and 405 fall back to a one-byte
// ranged GET and read the total from Content-Range.
func (t *Task) probe() (int64, error) {
	resp, err := t.probeRequest(http.MethodHead)
	if err != nil {
		return 0, &ProbeError{URL: t.url, Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusMethodNotAllowed {
		log.Debug().Str("op", "download/task").Str("url", t.url).Msgf("HEAD returned %d, trying ranged GET", resp.StatusCode)
		return t.probeRange()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &ProbeError{URL: t.url, StatusCode: resp.StatusCode}
	}
	if resp.ContentLength <= 0 {
		return 0, &ProbeError{URL: t.url, Err: ErrUnknownSize}
	}
	return resp.ContentLength, nil
}

func (t *Task) probeRange() (int64, error) {
	resp, err := t.probeRequest(http.MethodGet)
	if err != nil {
		return 0, &ProbeError{URL: t.url, Err: err}
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		var start, end, total int64
		if _, err := fmt.Sscanf(resp.Header.Get("Content-Range"), "bytes %d-%d/%d", &start, &end, &total); err != nil || total <= 0 {
			return 0, &ProbeError{URL: t.url, Err: ErrUnknownSize}
		}
		return total, nil
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		if resp.ContentLength <= 0 {
			return 0, &ProbeError{URL: t.url, Err: ErrUnknownSize}
		}
		return resp.ContentLength, nil
	default:
		return 0, &ProbeError{URL: t.url, StatusCode: resp.StatusCode}
	}
}

func (t *Task) probeRequest(method string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(t.ctx, method, t.url, nil)
	if err != nil {
		return nil, err
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	return t.client.Do(req)
}

func (t *Task) transfer() error {
	req, err := http.NewRequestWithContext(t.ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("error executing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	t.setState(Downloading)
	outFile, err := t.create(t.path)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	defer outFile.Close()

	buffer := make([]byte, t.chunkSize)
	paused := false
	for {
		if t.applyPending(&paused) {
			return ErrCancelled
		}
		n, readErr := io.ReadFull(resp.Body, buffer)
		if n > 0 {
			if t.applyPending(&paused) {
				return ErrCancelled
			}
			if paused {
				if !t.waitResume() {
					return ErrCancelled
				}
				paused = false
			}
			if _, err := outFile.Write(buffer[:n]); err != nil {
				return &WriteError{Path: t.path, Err: err}
			}
			t.addProgress(n)
		}
		if readErr == io.EOF || (readErr == io.ErrUnexpectedEOF && n > 0) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("error reading response body: %w", readErr)
		}
	}

	// the GET may omit its length (chunked), so the probed size is the reference
	expected := t.Size()
	if resp.ContentLength > expected {
		expected = resp.ContentLength
	}
	if downloaded := t.Downloaded(); expected > 0 && downloaded < expected {
		return fmt.Errorf("transfer ended after %d of %d bytes: %w", downloaded, expected, io.ErrUnexpectedEOF)
	}
	if err := outFile.Sync(); err != nil {
		return &WriteError{Path: t.path, Err: err}
	}
	if err := outFile.Close(); err != nil {
		return &WriteError{Path: t.path, Err: err}
	}
	return nil
}

// applyPending consumes a queued command without blocking and reports whether
// the transfer must stop.
func (t *Task) applyPending(paused *bool) bool {
	select {
	case cmd := <-t.ctrl:
		switch cmd {
		case cmdStop:
			return true
		case cmdPause:
			*paused = true
		case cmdResume:
			*paused = false
		}
	default:
	}
	return false
}

// waitResume parks the transfer in Paused until Resume (true) or Stop (false).
func (t *Task) waitResume() bool {
	t.setState(Paused)
	log.Debug().Str("op", "download/task").Str("url", t.url).Msg("paused")
	for cmd := range t.ctrl {
		switch cmd {
		case cmdStop:
			return false
		case cmdResume:
			t.setState(Downloading)
			log.Debug().Str("op", "download/task").Str("url", t.url).Msg("resumed")
			return true
		}
	}
	return false
}
