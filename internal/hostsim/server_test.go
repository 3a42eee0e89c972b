package hostsim

import (
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/superkooks/bootcon/internal/qemu"
)

// newTestServer boots cfg and serves it. Boot errors are returned rather
// than fatal so tests can serve a kernel that failed to boot.
func newTestServer(t *testing.T, cfg *Config) (*Simulator, *httptest.Server, error) {
	t.Helper()

	// The serial handler logs from its own goroutine, possibly after the
	// test returns, so logs go to an observer rather than t.Log.
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core).Sugar()
	sim, err := Boot(cfg, nil, logger)
	if logs.FilterMessage("booting hosted kernel").Len() != 1 {
		t.Errorf("boot not logged")
	}

	srv := httptest.NewServer(NewServer(sim.Kernel, sim.Hub, logger))
	t.Cleanup(srv.Close)
	return sim, srv, err
}

func bootServer(t *testing.T) (*Simulator, *httptest.Server) {
	t.Helper()

	sim, srv, err := newTestServer(t, smallConfig())
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	return sim, srv
}

func smallConfig() *Config {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 320, 200
	return cfg
}

func getJSON(t *testing.T, resp *http.Response) *gabs.Container {
	t.Helper()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, b)
	}
	doc, err := gabs.ParseJSONBuffer(resp.Body)
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	return doc
}

func TestCursor(t *testing.T) {
	sim, srv := bootServer(t)

	resp, err := http.Get(srv.URL + "/cursor")
	if err != nil {
		t.Fatalf("GET /cursor: %v", err)
	}
	doc := getJSON(t, resp)

	row, col := sim.Kernel.Console.Cursor()
	if doc.Path("ready").Data() != true ||
		doc.Path("cols").Data() != float64(40) ||
		doc.Path("rows").Data() != float64(12) ||
		doc.Path("row").Data() != float64(row) ||
		doc.Path("col").Data() != float64(col) ||
		doc.Path("scroll").Data() != "clear" ||
		doc.Path("format").Data() != "rgb" ||
		doc.Path("bytesPerPixel").Data() != float64(4) {
		t.Errorf("cursor = %s", doc.String())
	}
	if doc.Exists("halted") {
		t.Errorf("running kernel reported as halted")
	}
}

func TestConsoleWrite(t *testing.T) {
	sim, srv := bootServer(t)
	sim.Kernel.Console.Clear()

	resp, err := http.Post(srv.URL+"/console", "application/json", strings.NewReader(`{"text": "hello\nab"}`))
	if err != nil {
		t.Fatalf("POST /console: %v", err)
	}
	doc := getJSON(t, resp)
	if doc.Path("row").Data() != float64(1) || doc.Path("col").Data() != float64(2) {
		t.Errorf("cursor after write = %s", doc.String())
	}

	resp, err = http.Post(srv.URL+"/console", "application/json", strings.NewReader(`{"text": "xyz", "safe": true}`))
	if err != nil {
		t.Fatalf("POST /console: %v", err)
	}
	doc = getJSON(t, resp)
	if doc.Path("col").Data() != float64(5) {
		t.Errorf("cursor after safe write = %s", doc.String())
	}
}

func TestConsoleWriteBadRequest(t *testing.T) {
	_, srv := bootServer(t)

	for _, body := range []string{`not json`, `{"text": 5}`, `{}`} {
		resp, err := http.Post(srv.URL+"/console", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST /console: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status %d", body, resp.StatusCode)
		}
	}
}

func TestScreen(t *testing.T) {
	sim, srv := bootServer(t)

	tests := []struct {
		query  string
		status int
		width  int
		height int
	}{
		{"", http.StatusOK, 320, 200},
		{"?scale=2", http.StatusOK, 640, 400},
		{"?scale=3&cursor=1", http.StatusOK, 960, 600},
		{"?scale=0", http.StatusBadRequest, 0, 0},
		{"?scale=9", http.StatusBadRequest, 0, 0},
		{"?scale=big", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + "/screen.png" + tt.query)
		if err != nil {
			t.Fatalf("GET /screen.png%s: %v", tt.query, err)
		}
		if resp.StatusCode != tt.status {
			t.Errorf("%s: status %d", tt.query, resp.StatusCode)
			resp.Body.Close()
			continue
		}
		if tt.status != http.StatusOK {
			resp.Body.Close()
			continue
		}

		img, err := png.Decode(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("%s: decode: %v", tt.query, err)
		}
		if b := img.Bounds(); b.Dx() != tt.width || b.Dy() != tt.height {
			t.Errorf("%s: size %v", tt.query, b)
		}
	}

	// Unscaled output is the framebuffer itself.
	resp, err := http.Get(srv.URL + "/screen.png")
	if err != nil {
		t.Fatalf("GET /screen.png: %v", err)
	}
	defer resp.Body.Close()
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	snap := sim.Kernel.Console.Snapshot()
	for _, p := range [][2]int{{0, 0}, {17, 5}, {319, 199}} {
		r1, g1, b1, _ := img.At(p[0], p[1]).RGBA()
		r2, g2, b2, _ := snap.At(p[0], p[1]).RGBA()
		if r1 != r2 || g1 != g2 || b1 != b2 {
			t.Errorf("pixel %v differs from the framebuffer", p)
		}
	}
}

func TestUnavailableFramebuffer(t *testing.T) {
	cfg := smallConfig()
	cfg.Stride = 10
	_, srv, err := newTestServer(t, cfg)
	if err == nil {
		t.Fatalf("Boot succeeded with a stride shorter than a row")
	}

	resp, err := http.Get(srv.URL + "/screen.png")
	if err != nil {
		t.Fatalf("GET /screen.png: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("screen status %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/console", "application/json", strings.NewReader(`{"text": "x"}`))
	if err != nil {
		t.Fatalf("POST /console: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("console status %d", resp.StatusCode)
	}

	// Best-effort writes are dropped silently.
	resp, err = http.Post(srv.URL+"/console", "application/json", strings.NewReader(`{"text": "x", "safe": true}`))
	if err != nil {
		t.Fatalf("POST /console: %v", err)
	}
	doc := getJSON(t, resp)
	if doc.Path("ready").Data() != false || doc.Path("halted").Data() != "failed" {
		t.Errorf("cursor = %s", doc.String())
	}
}

func TestCORS(t *testing.T) {
	_, srv := bootServer(t)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/console", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /console: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" ||
		resp.Header.Get("Access-Control-Allow-Headers") != "Content-Type" {
		t.Errorf("headers %v", resp.Header)
	}
}

func TestMetrics(t *testing.T) {
	_, srv := bootServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	for _, name := range []string{
		"bootcon_console_glyphs_rendered_total",
		"bootcon_console_bytes_written_total",
		"bootcon_serial_bytes_tx_total",
		"bootcon_kernel_boot_seconds_count",
	} {
		if !strings.Contains(string(b), name) {
			t.Errorf("metrics missing %s", name)
		}
	}
}

func TestSerialStreamAndPanic(t *testing.T) {
	sim, srv := bootServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/serial"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, backlog, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read backlog: %v", err)
	}
	if !strings.Contains(string(backlog), "[INFO] All startup messages completed\n") {
		t.Errorf("backlog = %q", backlog)
	}

	resp, err := http.Post(srv.URL+"/panic", "application/json", strings.NewReader(`{"message": "triple fault"}`))
	if err != nil {
		t.Fatalf("POST /panic: %v", err)
	}
	doc := getJSON(t, resp)
	if doc.Path("halted").Data() != "failed" {
		t.Errorf("cursor after panic = %s", doc.String())
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("panic never reached the serial stream: %v", err)
		}
		if string(msg) == "[ERROR] [PANIC] triple fault\n" {
			break
		}
	}

	select {
	case <-sim.Latch.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("exit device never written")
	}
	if code, _ := sim.Latch.Code(); code != qemu.Failed {
		t.Errorf("exit code %v", code)
	}
}
