package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
)

func TestSPAHandler(t *testing.T) {
	t.Parallel()
	h := spaHandler(fstest.MapFS{
		"dist/index.html":    {Data: []byte("<html>portfolio</html>")},
		"dist/assets/app.js": {Data: []byte("console.log(1)")},
	})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
		wantCache  string
	}{
		{"root", "/", http.StatusOK, "portfolio", "no-cache"},
		{"asset", "/assets/app.js", http.StatusOK, "console.log", "public, max-age=3600"},
		{"client route", "/projects/foo", http.StatusOK, "portfolio", "no-cache"},
		{"unknown api", "/api/nope", http.StatusNotFound, "404", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.Equal(t, tt.wantCache, rec.Header().Get("Cache-Control"))
		})
	}
}

func TestEmbeddedSiteHasWidget(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	SPAHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/chat")
}
