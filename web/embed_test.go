package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
)

func TestSPAHandler(t *testing.T) {
	files := fstest.MapFS{
		"index.html":      {Data: []byte("<html>index</html>")},
		"assets/app-1.js": {Data: []byte("console.log(1)")},
	}
	handler := newSPAHandler(files)

	cases := []struct {
		path  string
		body  string
		cache string
	}{
		{"/", "<html>index</html>", "no-cache"},
		{"/conversations/123", "<html>index</html>", "no-cache"},
		{"/assets/app-1.js", "console.log(1)", "public, max-age=31536000, immutable"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("GET %s status = %d", tc.path, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), tc.body) {
			t.Errorf("GET %s body = %q, want %q", tc.path, rr.Body.String(), tc.body)
		}
		if got := rr.Header().Get("Cache-Control"); got != tc.cache {
			t.Errorf("GET %s cache-control = %q, want %q", tc.path, got, tc.cache)
		}
	}
}

func TestEmbeddedPlaceholder(t *testing.T) {
	rr := httptest.NewRecorder()
	SPAHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "AI Career Advisor") {
		t.Fatalf("status = %d, body = %q", rr.Code, rr.Body.String())
	}
}
