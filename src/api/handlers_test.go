package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lost-woods/entropyd/src/api"
	"github.com/lost-woods/entropyd/src/rng"
)

// trickleSource hands out a fixed prefix and then stalls until the deadline.
type trickleSource struct {
	key    string
	prefix []byte
}

func (s *trickleSource) Key() string    { return s.key }
func (s *trickleSource) Kind() rng.Kind { return rng.KindFile }
func (s *trickleSource) Close() error   { return nil }

func (s *trickleSource) Read(ctx context.Context, n int) ([]byte, error) {
	out := append([]byte(nil), s.prefix[:min(n, len(s.prefix))]...)
	s.prefix = s.prefix[len(out):]
	if len(out) < n {
		<-ctx.Done()
	}
	return out, nil
}

func fileSource(t *testing.T, key string, data []byte, loop bool) rng.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), key)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	src, err := rng.NewFileSource(key, path, loop)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	return src
}

func newHandlers(t *testing.T, maxBytes uint64, sources ...rng.Source) (*api.Handlers, *rng.Gateway) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()
	gw := rng.NewGateway(rng.NewAggregator(rng.NewSourceSet("default", sources...), 0, log), maxBytes, log)
	t.Cleanup(func() { _ = gw.Close() })
	return api.NewHandlers(gw, rng.NewHealth(), log), gw
}

func get(h gin.HandlerFunc, target string, jsonResponse bool) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	if jsonResponse {
		c.Request.Header.Set("Accept", "application/json")
	}
	h(c)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body
}

func TestReadBytes_AcceptHeaderControlsJSON(t *testing.T) {
	h, _ := newHandlers(t, 0, fileSource(t, "f1", []byte{0xde, 0xad, 0xbe, 0xef}, true))

	w := get(h.ReadBytes, "/bytes?num_bytes=4", true)
	if w.Code != http.StatusOK {
		t.Fatalf("json expected 200 got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["status"] != float64(0) || body["result"] != "ok" {
		t.Fatalf("unexpected status in %v", body)
	}
	if body["bytes"] != "deadbeef" || body["length"] != float64(4) {
		t.Fatalf("unexpected bytes in %v", body)
	}

	w = get(h.ReadBytes, "/bytes?num_bytes=2", false)
	if w.Code != http.StatusOK {
		t.Fatalf("text expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != "0 dead" {
		t.Fatalf("text body = %q", got)
	}
}

func TestReadBytes_BadQuery(t *testing.T) {
	h, _ := newHandlers(t, 0, fileSource(t, "f1", []byte{1}, true))

	for _, target := range []string{
		"/bytes",
		"/bytes?num_bytes=-1",
		"/bytes?num_bytes=lots",
		"/bytes?num_bytes=4&timeout_ms=soon",
	} {
		w := get(h.ReadBytes, target, true)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", target, w.Code)
		}
		if _, ok := decode(t, w)["error"]; !ok {
			t.Fatalf("%s: missing error field", target)
		}
	}
}

func TestReadBytes_OversizedRequest(t *testing.T) {
	h, _ := newHandlers(t, 16, fileSource(t, "f1", []byte{1}, true))

	w := get(h.ReadBytes, "/bytes?num_bytes=17", true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["code"] != rng.CodeInvalidRequest || body["status"] != float64(2) {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestReadBytes_NoSourceCanServe(t *testing.T) {
	dead := rng.NewUnavailable("hw", rng.KindSerial, os.ErrNotExist)
	h, _ := newHandlers(t, 0, dead)

	w := get(h.ReadBytes, "/bytes?num_bytes=8", true)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["result"] != "error" || body["bytes"] != "" {
		t.Fatalf("unexpected body %v", body)
	}

	w = get(h.ReadBytes, "/bytes?num_bytes=8", false)
	if !strings.HasPrefix(w.Body.String(), "2 ") {
		t.Fatalf("text body = %q", w.Body.String())
	}
}

func TestReadBytes_PartialBeforeDeadline(t *testing.T) {
	slow := &trickleSource{key: "slow", prefix: []byte{0x0f, 0xf0}}
	h, _ := newHandlers(t, 0, fileSource(t, "f1", []byte{0xff}, true), slow)

	w := get(h.ReadBytes, "/bytes?num_bytes=8&timeout_ms=20", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["result"] != "partial" || body["bytes"] != "f00f" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHealth_ReportsSources(t *testing.T) {
	h, _ := newHandlers(t, 0, fileSource(t, "f1", []byte{1, 2, 3}, true))

	w := get(h.Health, "/health", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	sources, ok := body["sources"].([]any)
	if body["ok"] != true || !ok || len(sources) != 1 {
		t.Fatalf("unexpected body %v", body)
	}

	w = get(h.Health, "/health", false)
	if !strings.HasPrefix(w.Body.String(), "OK") {
		t.Fatalf("text body = %q", w.Body.String())
	}
}

func TestHealth_AllSourcesUnavailable(t *testing.T) {
	h, _ := newHandlers(t, 0, rng.NewUnavailable("hw", rng.KindSerial, os.ErrNotExist))

	w := get(h.Health, "/health", false)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), "UNHEALTHY") {
		t.Fatalf("text body = %q", w.Body.String())
	}
}

func TestCheckHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(api.CheckHeader("X-API-KEY", "secret"))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for _, tc := range []struct {
		key  string
		want int
	}{
		{"", http.StatusForbidden},
		{"wrong", http.StatusForbidden},
		{"secret", http.StatusOK},
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if tc.key != "" {
			req.Header.Set("X-API-KEY", tc.key)
		}
		router.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("key %q: expected %d got %d", tc.key, tc.want, w.Code)
		}
	}
}
