package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tanq16/vidgrab/internal/download"
)

func newServer(t *testing.T, size int) *httptest.Server {
	t.Helper()
	data := make([]byte, size)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if r.Method == http.MethodHead {
			return
		}
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitAll(t *testing.T, r *Registry) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
}

func TestStartNewAndEntries(t *testing.T) {
	srv := newServer(t, 4096)
	r := New(WithSaveDir(t.TempDir()), WithChunkSize(1024))
	var handles []Handle
	for i := 0; i < 3; i++ {
		h, err := r.StartNew(fmt.Sprintf("%s/f%d", srv.URL, i), fmt.Sprintf("f%d.bin", i))
		if err != nil {
			t.Fatalf("StartNew failed: %v", err)
		}
		handles = append(handles, h)
	}
	waitAll(t, r)

	if r.Len() != 3 {
		t.Errorf("Expected 3 entries, got %d", r.Len())
	}
	if diff := cmp.Diff(handles, r.Handles()); diff != "" {
		t.Errorf("Handles not in insertion order (-want +got):\n%s", diff)
	}
	seen := map[Handle]bool{}
	for i, e := range r.Entries() {
		if seen[e.Handle] {
			t.Errorf("Duplicate handle %s", e.Handle)
		}
		seen[e.Handle] = true
		if e.Task.FileName() != fmt.Sprintf("f%d.bin", i) {
			t.Errorf("Expected f%d.bin at position %d, got %s", i, i, e.Task.FileName())
		}
		if e.Task.State() != download.Finished {
			t.Errorf("Expected finished, got %s", e.Task.State())
		}
	}
}

func TestFailureIsIsolated(t *testing.T) {
	srv := newServer(t, 2048)
	r := New(WithSaveDir(t.TempDir()))
	bad, _ := r.StartNew(srv.URL+"/missing", "bad.bin")
	good, _ := r.StartNew(srv.URL+"/ok", "good.bin")
	waitAll(t, r)

	badTask, _ := r.Get(bad)
	goodTask, _ := r.Get(good)
	if badTask.State() != download.Failed {
		t.Errorf("Expected failed, got %s", badTask.State())
	}
	if goodTask.State() != download.Finished {
		t.Errorf("Expected finished, got %s", goodTask.State())
	}
}

func TestRemove(t *testing.T) {
	srv := newServer(t, 100)
	r := New(WithSaveDir(t.TempDir()))
	h, _ := r.StartNew(srv.URL, "a.bin")
	waitAll(t, r)

	r.Remove(Handle("does-not-exist"))
	if r.Len() != 1 {
		t.Fatalf("Removing an absent handle changed the registry")
	}
	r.Remove(h)
	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Len())
	}
	if _, ok := r.Get(h); ok {
		t.Error("Expected handle to be gone")
	}
	r.Remove(h)
	r.Pause(h)
	r.Resume(h)
	r.Stop(h)
}

func TestConcurrentMutation(t *testing.T) {
	srv := newServer(t, 512)
	r := New(WithSaveDir(t.TempDir()), WithAutoRemove(false))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			h, err := r.StartNew(srv.URL, fmt.Sprintf("c%d.bin", i))
			if err == nil && i%2 == 0 {
				r.Remove(h)
			}
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Entries()
			_ = r.Len()
		}()
	}
	wg.Wait()
	waitAll(t, r)
	if r.Len() != 10 {
		t.Errorf("Expected 10 entries after removing half, got %d", r.Len())
	}
}

func TestSubscribeForwardsTaggedEvents(t *testing.T) {
	srv := newServer(t, 3000)
	r := New(WithSaveDir(t.TempDir()), WithChunkSize(1000))
	sub := r.Subscribe()
	defer sub.Close()
	h, _ := r.StartNew(srv.URL, "x.bin")

	var kinds []EventKind
	var progress []int
	timeout := time.After(10 * time.Second)
	for done := false; !done; {
		select {
		case ev := <-sub.Events():
			if ev.Handle != h {
				t.Fatalf("Expected handle %s, got %s", h, ev.Handle)
			}
			kinds = append(kinds, ev.Kind)
			if ev.Kind == TaskEvent && ev.Task.Kind == download.ProgressChanged {
				progress = append(progress, ev.Task.Progress)
			}
			done = ev.Kind == TaskEvent && ev.Task.State == download.Finished && ev.Task.Kind == download.StateChanged
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
	if kinds[0] != Added {
		t.Errorf("Expected Added first, got %v", kinds[0])
	}
	if diff := cmp.Diff([]int{33, 66, 100}, progress); diff != "" {
		t.Errorf("Progress mismatch (-want +got):\n%s", diff)
	}
}

func TestAutoRemove(t *testing.T) {
	srv := newServer(t, 100)
	r := New(WithSaveDir(t.TempDir()), WithAutoRemove(true))
	sub := r.Subscribe()
	defer sub.Close()
	h, _ := r.StartNew(srv.URL, "a.bin")
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-sub.Events():
			if ev.Kind == Removed && ev.Handle == h {
				if r.Len() != 0 {
					t.Errorf("Expected empty registry, got %d", r.Len())
				}
				return
			}
		case <-timeout:
			t.Fatal("task was not removed automatically")
		}
	}
}

func TestClose(t *testing.T) {
	r := New(WithSaveDir(t.TempDir()))
	sub := r.Subscribe()
	r.Close()
	if _, err := r.StartNew("http://127.0.0.1:1/", "x"); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("Expected no events from an empty closed registry")
		}
	case <-time.After(5 * time.Second):
		t.Error("subscription was not ended by Close")
	}
}

func TestWaitWhileStarting(t *testing.T) {
	srv := newServer(t, 256)
	r := New(WithSaveDir(t.TempDir()))
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			r.Wait(ctx)
			cancel()
		}
	}()
	for i := 0; i < 20; i++ {
		if _, err := r.StartNew(srv.URL, fmt.Sprintf("w%d.bin", i)); err != nil {
			t.Fatalf("StartNew failed: %v", err)
		}
	}
	waitAll(t, r)
	close(stop)
	wg.Wait()
	for _, e := range r.Entries() {
		if e.Task.State() != download.Finished {
			t.Errorf("Expected every task finished after Wait, got %s", e.Task.State())
		}
	}
}
