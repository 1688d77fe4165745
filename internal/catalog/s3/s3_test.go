package s3

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tanq16/vidgrab/internal/download"
	"github.com/tanq16/vidgrab/internal/paging"
)

var objects = []struct {
	key  string
	size int
}{
	{"videos/", 0},
	{"videos/a.mp4", 100},
	{"videos/b.mkv", 200},
	{"videos/c.webm", 300},
}

// fakeS3 answers path-style ListObjectsV2, HeadObject and presigned GETs.
type fakeS3 struct {
	mu     sync.Mutex
	tokens []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if len(parts) == 1 || parts[1] == "" {
		f.list(w, r)
		return
	}
	key := parts[1]
	size := -1
	for _, o := range objects {
		if o.key == key {
			size = o.size
		}
	}
	if size < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	presigned := r.URL.Query().Get("X-Amz-Signature") != ""
	switch {
	case r.Method == http.MethodHead && presigned:
		w.WriteHeader(http.StatusForbidden)
	case r.Method == http.MethodHead:
		w.Header().Set("Content-Length", fmt.Sprint(size))
		w.Header().Set("Last-Modified", "Mon, 01 Jan 2024 00:00:00 GMT")
	case r.Header.Get("Range") == "bytes=0-0":
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-0/%d", size))
		w.Header().Set("Content-Length", "1")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{'x'})
	default:
		w.Header().Set("Content-Length", fmt.Sprint(size))
		w.Write([]byte(strings.Repeat("x", size)))
	}
}

func (f *fakeS3) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	f.tokens = append(f.tokens, q.Get("continuation-token"))
	f.mu.Unlock()
	start := 0
	if tok := q.Get("continuation-token"); tok != "" {
		fmt.Sscanf(tok, "t%d", &start)
	}
	maxKeys := 2
	fmt.Sscanf(q.Get("max-keys"), "%d", &maxKeys)
	var matching []int
	for i, o := range objects {
		if strings.HasPrefix(o.key, q.Get("prefix")) {
			matching = append(matching, i)
		}
	}
	end := min(start+maxKeys, len(matching))
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&b, "<Name>bucket</Name><KeyCount>%d</KeyCount><MaxKeys>%d</MaxKeys>", end-start, maxKeys)
	if end < len(matching) {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>t%d</NextContinuationToken>", end)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	for _, i := range matching[start:end] {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><LastModified>2024-01-01T00:00:00.000Z</LastModified><Size>%d</Size></Contents>", objects[i].key, objects[i].size)
	}
	b.WriteString("</ListBucketResult>")
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(b.String()))
}

func newTestClient(t *testing.T) (*Client, *fakeS3) {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "none"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "none"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := NewClient(context.Background(), Options{
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c, fake
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		key     string
		wantErr bool
	}{
		{"s3://bucket/videos/a.mp4", "bucket", "videos/a.mp4", false},
		{"s3://bucket", "bucket", "", false},
		{"s3://bucket/", "bucket", "", false},
		{"https://bucket/a", "", "", true},
		{"s3:///a", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if bucket != tt.bucket || key != tt.key {
				t.Errorf("Expected %s/%s, got %s/%s", tt.bucket, tt.key, bucket, key)
			}
		})
	}
}

func TestBucketListingPages(t *testing.T) {
	c, fake := newTestClient(t)
	source, _ := paging.New[Object](c.Bucket("bucket"), 2)
	source.CreateCriteria("videos/")
	ctx := context.Background()

	var keys []string
	var sizes []int
	for i := 0; i < 3; i++ {
		batch, err := source.LoadNextPage(ctx)
		if err != nil {
			t.Fatalf("LoadNextPage failed: %v", err)
		}
		sizes = append(sizes, len(batch))
		for _, o := range batch {
			keys = append(keys, o.Key)
		}
	}
	if diff := cmp.Diff([]string{"videos/a.mp4", "videos/b.mkv", "videos/c.webm"}, keys); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
	// first page holds the folder marker, which is skipped
	if diff := cmp.Diff([]int{1, 2, 0}, sizes); diff != "" {
		t.Errorf("Batch sizes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"", "t2"}, fake.tokens); diff != "" {
		t.Errorf("Continuation tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveAndDownloadPresigned(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	ds, err := c.Resolve(ctx, "s3://bucket/videos/b.mkv")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(ds) != 1 {
		t.Fatalf("Expected one descriptor, got %d", len(ds))
	}
	d := ds[0]
	if d.Title != "b" || d.Format != "mkv" || d.Size != 200 || d.FileName() != "b.mkv" {
		t.Errorf("Unexpected descriptor %+v", d)
	}
	if !strings.Contains(d.URL, "X-Amz-Signature=") || !strings.Contains(d.URL, "/bucket/videos/b.mkv") {
		t.Errorf("Expected a presigned path-style URL, got %s", d.URL)
	}

	task := download.New(d.URL, d.FileName(), download.WithSaveDir(t.TempDir()), download.WithChunkSize(64))
	task.Start()
	task.Wait(ctx)
	if task.State() != download.Finished || task.Downloaded() != 200 {
		t.Errorf("Expected finished 200 bytes, got %s %d (%v)", task.State(), task.Downloaded(), task.Err())
	}
}

func TestResolveRejectsPrefix(t *testing.T) {
	c, _ := newTestClient(t)
	if _, err := c.Resolve(context.Background(), "s3://bucket/videos/"); err == nil {
		t.Error("Expected error for a prefix")
	}
	if _, err := c.Resolve(context.Background(), "s3://bucket/missing.mp4"); err == nil {
		t.Error("Expected error for a missing object")
	}
}
