package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/YaganovValera/feed-bridge/common/logger"
)

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(Config{}, nil, logger.Nop()); err == nil {
		t.Fatal("expected error for empty Addr")
	}
}

func TestServer_Endpoints(t *testing.T) {
	ready := errors.New("warming up")
	extra := Route{Pattern: "/admin/panic", Handler: http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})}
	srv, err := New(Config{Addr: ":0"}, func() error { return ready }, logger.Nop(), extra)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := srv.(*server).httpServer.Handler

	cases := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/healthz", http.StatusOK, "OK"},
		{"/readyz", http.StatusServiceUnavailable, "NOT READY: warming up"},
		{"/admin/panic", http.StatusInternalServerError, "internal server error"},
	}
	for _, c := range cases {
		t.Run(c.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, c.path, nil))
			if rec.Code != c.wantCode {
				t.Errorf("code = %d; want %d", rec.Code, c.wantCode)
			}
			if !strings.Contains(rec.Body.String(), c.wantBody) {
				t.Errorf("body = %q; want contains %q", rec.Body.String(), c.wantBody)
			}
		})
	}

	ready = nil
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz after ready = %d", rec.Code)
	}
}
