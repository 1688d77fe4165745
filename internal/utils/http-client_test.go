package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClientSetsHeaders(t *testing.T) {
	var gotUA, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Test")
	}))
	defer srv.Close()

	tests := []struct {
		name       string
		cfg        HTTPClientConfig
		expectedUA string
	}{
		{"default agent", HTTPClientConfig{}, ToolUserAgent},
		{"custom agent", HTTPClientConfig{UserAgent: "agent/2", Headers: map[string]string{"X-Test": "yes"}}, "agent/2"},
		{"large buffers", HTTPClientConfig{LargeBuffers: true, Timeout: 5 * time.Second}, ToolUserAgent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewHTTPClient(tt.cfg)
			req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("Do failed: %v", err)
			}
			resp.Body.Close()
			if gotUA != tt.expectedUA {
				t.Errorf("Expected User-Agent %q, got %q", tt.expectedUA, gotUA)
			}
			if gotCustom != tt.cfg.Headers["X-Test"] {
				t.Errorf("Expected X-Test %q, got %q", tt.cfg.Headers["X-Test"], gotCustom)
			}
		})
	}
}
