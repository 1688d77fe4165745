package scheduler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tanq16/vidgrab/internal/download"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/registry"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/slow":
			w.Header().Set("Content-Length", "1048576")
			if r.Method == http.MethodHead {
				return
			}
			w.Write(make([]byte, 10))
			w.(http.Flusher).Flush()
			<-r.Context().Done()
		default:
			w.Header().Set("Content-Length", "2048")
			if r.Method == http.MethodHead {
				return
			}
			w.Write(make([]byte, 2048))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunCountsOutcomes(t *testing.T) {
	srv := newServer(t)
	reg := registry.New(registry.WithSaveDir(t.TempDir()), registry.WithChunkSize(512))
	defer reg.Close()
	var buf bytes.Buffer
	mgr := output.NewManagerWithWriter(&buf)

	jobs := []Job{
		{URL: srv.URL + "/a", FileName: "a.bin"},
		{URL: srv.URL + "/missing", FileName: "m.bin"},
		{URL: srv.URL + "/b", FileName: "b.bin"},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := Run(ctx, reg, jobs, Options{Output: mgr, Workers: 1})
	if err == nil {
		t.Error("Expected an error when a download fails")
	}
	if diff := cmp.Diff(Result{Finished: 2, Failed: 1}, result); diff != "" {
		t.Errorf("Result mismatch (-want +got):\n%s", diff)
	}
	success, failed, _, total := mgr.Counts()
	if success != 2 || failed != 1 || total != 3 {
		t.Errorf("Expected display 2 ok 1 failed of 3, got %d %d of %d", success, failed, total)
	}
	if reg.Len() != 3 {
		t.Errorf("Expected 3 registry entries, got %d", reg.Len())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := newServer(t)
	// the slow body is smaller than the default chunk, so a small chunk is
	// needed for a progress event to arrive
	reg := registry.New(registry.WithSaveDir(t.TempDir()), registry.WithChunkSize(5))
	defer reg.Close()
	mgr := output.NewManagerWithWriter(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	sub := reg.Subscribe()
	defer sub.Close()
	go func() {
		// cancel once the transfer is underway
		for ev := range sub.Events() {
			if ev.Kind == registry.TaskEvent && ev.Task.Kind == download.ProgressChanged {
				cancel()
				return
			}
		}
	}()

	jobs := []Job{
		{URL: srv.URL + "/slow", FileName: "slow.bin"},
		{URL: srv.URL + "/a", FileName: "queued.bin"},
	}
	done := make(chan struct{})
	var result Result
	var err error
	go func() {
		result, err = Run(ctx, reg, jobs, Options{Output: mgr, Workers: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if diff := cmp.Diff(Result{Cancelled: 2}, result); diff != "" {
		t.Errorf("Result mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		cmd     Command
		wantErr bool
	}{
		{"p", Command{Action: "pause"}, false},
		{"P 2", Command{Action: "pause", Index: 2}, false},
		{"resume 1", Command{Action: "resume", Index: 1}, false},
		{"s", Command{Action: "stop"}, false},
		{"d 3", Command{Action: "remove", Index: 3}, false},
		{"l", Command{Action: "list"}, false},
		{"d", Command{}, true},
		{"p x", Command{}, true},
		{"p 0", Command{}, true},
		{"jump", Command{}, true},
		{"   ", Command{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := ParseCommand(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if cmd != tt.cmd {
				t.Errorf("Expected %+v, got %+v", tt.cmd, cmd)
			}
		})
	}
}

func TestControlAppliesCommands(t *testing.T) {
	srv := newServer(t)
	reg := registry.New(registry.WithSaveDir(t.TempDir()))
	defer reg.Close()
	slow, _ := reg.StartNew(srv.URL+"/slow", "slow.bin")
	fast, _ := reg.StartNew(srv.URL+"/a", "fast.bin")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fastTask, _ := reg.Get(fast)
	fastTask.Wait(ctx)

	var out bytes.Buffer
	in := strings.NewReader("bogus\ns 1\nl\nd 2\n")
	Control(ctx, in, &out, reg, nil)

	slowTask, _ := reg.Get(slow)
	if err := slowTask.Wait(ctx); err != nil {
		t.Fatalf("slow task did not stop: %v", err)
	}
	if slowTask.State() != download.Cancelled {
		t.Errorf("Expected cancelled, got %s", slowTask.State())
	}
	if reg.Len() != 1 {
		t.Errorf("Expected entry 2 to be removed, got %d entries", reg.Len())
	}
	text := out.String()
	for _, want := range []string{"unknown command", "slow.bin", "fast.bin", "finished"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, text)
		}
	}
}
