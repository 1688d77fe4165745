package output

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// Entry statuses understood by the display.
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusPaused  = "paused"
	StatusSuccess = "success"
	StatusError   = "error"
	StatusWarning = "warning"
)

type taskOutput struct {
	Key         string
	Name        string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
	Index       int
}

type ErrorReport struct {
	Name  string
	Error error
	Time  time.Time
}

// Manager renders a live, redrawn block of per-download status lines.
type Manager struct {
	out         io.Writer
	outputs     map[string]*taskOutput
	mutex       sync.RWMutex
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	pauseCh     chan bool
	displayTick time.Duration
	count       int
	running     bool
	displayWg   sync.WaitGroup
}

func NewManager() *Manager {
	return NewManagerWithWriter(os.Stdout)
}

func NewManagerWithWriter(w io.Writer) *Manager {
	return &Manager{
		out:         w,
		outputs:     make(map[string]*taskOutput),
		doneCh:      make(chan struct{}),
		pauseCh:     make(chan bool),
		displayTick: 300 * time.Millisecond,
	}
}

// Pause stops redrawing so prompts can use the terminal.
func (m *Manager) Pause() {
	m.setPaused(true)
}

func (m *Manager) Resume() {
	m.setPaused(false)
}

func (m *Manager) setPaused(paused bool) {
	m.mutex.RLock()
	running := m.running
	m.mutex.RUnlock()
	if running {
		select {
		case m.pauseCh <- paused:
		case <-m.doneCh:
		}
	}
}

// Register adds a line for key (usually a registry handle). Registering an
// existing key is a no-op.
func (m *Manager) Register(key, name string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.outputs[key]; exists {
		return
	}
	m.count++
	m.outputs[key] = &taskOutput{
		Key:         key,
		Name:        name,
		Status:      StatusPending,
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		Index:       m.count,
	}
}

func (m *Manager) update(key string, fn func(*taskOutput)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[key]; exists {
		fn(info)
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetMessage(key, message string) {
	m.update(key, func(info *taskOutput) { info.Message = message })
}

func (m *Manager) SetStatus(key, status string) {
	m.update(key, func(info *taskOutput) { info.Status = status })
}

func (m *Manager) GetStatus(key string) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if info, exists := m.outputs[key]; exists {
		return info.Status
	}
	return "unknown"
}

// SetProgress replaces the stream lines of key with a progress bar.
func (m *Manager) SetProgress(key string, downloaded, total int64) {
	m.update(key, func(info *taskOutput) {
		bar := PrintProgressBar(downloaded, total, 30)
		elapsed := time.Since(info.StartTime).Seconds()
		text := fmt.Sprintf("%s of %s", FormatBytes(uint64(max(0, downloaded))), FormatBytes(uint64(max(0, total))))
		info.StreamLines = []string{fmt.Sprintf("%s%s %s %s", bar, debugStyle.Render(text), StyleSymbols["bullet"], debugStyle.Render(FormatSpeed(downloaded, elapsed)))}
	})
}

func (m *Manager) AddStreamLine(key, line string) {
	m.update(key, func(info *taskOutput) {
		info.StreamLines = append(info.StreamLines, wrapText(line, 2+4)...)
		if len(info.StreamLines) > 10 {
			info.StreamLines = info.StreamLines[len(info.StreamLines)-10:]
		}
	})
}

func (m *Manager) Complete(key, message string) {
	m.update(key, func(info *taskOutput) {
		info.StreamLines = nil
		info.Message = message
		if message == "" {
			info.Message = fmt.Sprintf("Completed %s", info.Name)
		}
		info.Complete = true
		info.Status = StatusSuccess
	})
}

// Cancel marks key finished without success or failure.
func (m *Manager) Cancel(key, message string) {
	m.update(key, func(info *taskOutput) {
		info.StreamLines = nil
		info.Message = message
		info.Complete = true
		info.Status = StatusWarning
	})
}

func (m *Manager) ReportError(key string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[key]; exists {
		info.StreamLines = nil
		info.Complete = true
		info.Status = StatusError
		info.Error = err
		info.Message = fmt.Sprintf("Failed %s", info.Name)
		info.LastUpdated = time.Now()
		m.errors = append(m.errors, ErrorReport{Name: info.Name, Error: err, Time: time.Now()})
	}
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case StatusSuccess:
		return successStyle.Render(StyleSymbols["pass"])
	case StatusError:
		return errorStyle.Render(StyleSymbols["fail"])
	case StatusWarning:
		return warningStyle.Render(StyleSymbols["warning"])
	case StatusPending:
		return pendingStyle.Render(StyleSymbols["pending"])
	case StatusPaused:
		return warningStyle.Render(StyleSymbols["paused"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status, message string) string {
	switch status {
	case StatusSuccess:
		return successStyle.Render(message)
	case StatusError:
		return errorStyle.Render(message)
	case StatusWarning, StatusPaused:
		return warningStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) sorted() (active, completed []*taskOutput) {
	var all []*taskOutput
	for _, info := range m.outputs {
		all = append(all, info)
	}
	slices.SortFunc(all, func(a, b *taskOutput) int { return a.Index - b.Index })
	for _, info := range all {
		if info.Complete {
			completed = append(completed, info)
		} else {
			active = append(active, info)
		}
	}
	return active, completed
}

// render writes the entries that fit in availableLines and returns how many lines it used.
func (m *Manager) render(availableLines int) int {
	lineCount := 0
	active, completed := m.sorted()

	needed := len(completed)
	for _, f := range active {
		needed += 1 + len(f.StreamLines)
	}
	if needed > availableLines {
		keep := max(0, availableLines-(needed-len(completed)))
		if len(completed) > keep {
			completed = completed[len(completed)-keep:]
		}
	}
	if len(completed) > 10 {
		fmt.Fprintln(m.out, infoStyle.Render(fmt.Sprintf("%s%d downloads completed, showing the last 8 ...", strings.Repeat(" ", 2), len(completed)-8)))
		completed = completed[len(completed)-8:]
		lineCount++
	}

	for _, info := range append(active, completed...) {
		if lineCount >= availableLines {
			break
		}
		elapsed := time.Since(info.StartTime).Round(time.Second)
		if info.Complete {
			elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		}
		message := info.Message
		if message == "" {
			message = info.Name
		}
		fmt.Fprintf(m.out, "%s%s %s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), debugStyle.Render(elapsed.String()), styleMessage(info.Status, message))
		lineCount++
		indent := strings.Repeat(" ", 2+4)
		for _, line := range info.StreamLines {
			if lineCount >= availableLines {
				break
			}
			fmt.Fprintf(m.out, "%s%s\n", indent, streamStyle.Render(line))
			lineCount++
		}
	}
	return lineCount
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	// numLines is only touched by the display goroutine
	clearLines(m.out, m.numLines)
	// leave room for the prompt
	m.numLines = m.render(terminalHeight() - 3)
}

func (m *Manager) StartDisplay() {
	m.mutex.Lock()
	m.running = true
	m.mutex.Unlock()
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		paused := false
		for {
			select {
			case <-ticker.C:
				if !paused {
					m.updateDisplay()
				}
			case paused = <-m.pauseCh:
			case <-m.doneCh:
				m.updateDisplay()
				return
			}
		}
	}()
}

// StopDisplay draws the final state and prints the summary.
func (m *Manager) StopDisplay() {
	m.mutex.Lock()
	wasRunning := m.running
	m.running = false
	m.mutex.Unlock()
	close(m.doneCh)
	if wasRunning {
		m.displayWg.Wait()
	}
	m.ShowSummary()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(err.Name))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

// Counts returns how many entries succeeded, failed and were cancelled.
func (m *Manager) Counts() (success, failed, cancelled, total int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, info := range m.outputs {
		switch info.Status {
		case StatusSuccess:
			success++
		case StatusError:
			failed++
		case StatusWarning:
			cancelled++
		}
	}
	return success, failed, cancelled, len(m.outputs)
}

func (m *Manager) ShowSummary() {
	success, failures, cancelled, total := m.Counts()
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+successStyle.Render(fmt.Sprintf("Completed %d of %d", success, total)))
	if cancelled > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+warningStyle.Render(fmt.Sprintf("Cancelled %d of %d", cancelled, total)))
	}
	if failures > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, total)))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
