package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lost-woods/entropyd/src/rng"
	"github.com/lost-woods/entropyd/src/server"
)

func newServer(t *testing.T, opts server.Options) *server.Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.bin")
	if err := os.WriteFile(path, []byte{0x01, 0x02, 0x03, 0x04}, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	log := zap.NewNop().Sugar()
	specs := []rng.SourceSpec{{Key: "f1", Kind: rng.KindFile, Path: path, Loop: true}}
	gw := rng.NewGateway(rng.NewAggregator(rng.BuildSourceSet("default", specs, log), 0, log), 0, log)
	t.Cleanup(func() { _ = gw.Close() })
	return server.New(opts, gw, rng.NewHealth(), log)
}

func TestServer_Routes(t *testing.T) {
	srv := httptest.NewServer(newServer(t, server.Options{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/bytes?num_bytes=2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("health expected 200 got %d", resp2.StatusCode)
	}
}

func TestServer_RequiresAPIKey(t *testing.T) {
	h := newServer(t, server.Options{APIKey: "secret"}).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bytes?num_bytes=2", nil))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bytes?num_bytes=2", nil)
	req.Header.Set("X-API-KEY", "secret")
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "0 0102" {
		t.Fatalf("expected 200 got %d: %q", w.Code, w.Body.String())
	}
}

func TestServer_RunStopsWithContext(t *testing.T) {
	s := newServer(t, server.Options{Addr: "127.0.0.1:0", HealthInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
