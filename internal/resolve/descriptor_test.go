package resolve

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var sample = []Descriptor{
	{Title: "Clip", Format: "mp4", Resolution: "360p", Height: 360, URL: "u1"},
	{Title: "Clip", Format: "mp4", Resolution: "720p", Height: 720, URL: "u2"},
	{Title: "Clip", Format: "webm", Resolution: "720p", Height: 720, URL: "u3"},
	{Title: "Clip", Format: "mp4", Resolution: "720p", Height: 720, URL: "u4"},
	{Title: "Clip", Format: "m4a", Resolution: "audio", URL: "u5"},
}

func TestDedupe(t *testing.T) {
	var urls []string
	for _, d := range Dedupe(sample) {
		urls = append(urls, d.URL)
	}
	if diff := cmp.Diff([]string{"u1", "u2", "u3", "u5"}, urls); diff != "" {
		t.Errorf("Dedupe mismatch (-want +got):\n%s", diff)
	}
}

func TestSelect(t *testing.T) {
	ds := Dedupe(sample)
	tests := []struct {
		pref    string
		url     string
		wantErr bool
	}{
		{"", "u2", false},
		{"best", "u2", false},
		{"worst", "u5", false},
		{"360p", "u1", false},
		{"webm", "u3", false},
		{"AUDIO", "u5", false},
		{"webm@720p", "u3", false},
		{"mp4@720p", "u2", false},
		{"1", "u1", false},
		{"4", "u5", false},
		{"1080p", "", true},
		{"9", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.pref, func(t *testing.T) {
			d, err := Select(ds, tt.pref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Select(%q) error = %v, wantErr %v", tt.pref, err, tt.wantErr)
			}
			if d.URL != tt.url {
				t.Errorf("Expected %s, got %s", tt.url, d.URL)
			}
		})
	}
	if _, err := Select(nil, "best"); err == nil {
		t.Error("Expected error for empty list")
	}
}

func TestFileName(t *testing.T) {
	if got := (Descriptor{Title: "My Clip", Format: "mp4"}).FileName(); got != "My Clip.mp4" {
		t.Errorf("Expected My Clip.mp4, got %s", got)
	}
	if got := (Descriptor{Title: "raw"}).FileName(); got != "raw" {
		t.Errorf("Expected raw, got %s", got)
	}
}
