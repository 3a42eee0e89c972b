package hostsim

import (
	"errors"
	"image"
	"net/http"
	"strconv"

	"github.com/Jeffail/gabs/v2"
	"github.com/fogleman/gg"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/superkooks/bootcon/internal/glyph"
	"github.com/superkooks/bootcon/internal/kernel"
	"github.com/superkooks/bootcon/internal/kerr"
	"github.com/superkooks/bootcon/internal/serial"
)

const maxScale = 8

// Server exposes a hosted kernel over HTTP.
type Server struct {
	kernel   *kernel.Kernel
	hub      *serial.Hub
	logger   *zap.SugaredLogger
	router   *mux.Router
	upgrader websocket.Upgrader
}

// NewServer routes requests to k. hub is the sink k's serial port writes to.
func NewServer(k *kernel.Kernel, hub *serial.Hub, logger *zap.SugaredLogger) *Server {
	s := &Server{
		kernel: k,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.Path("/screen.png").Methods("GET").HandlerFunc(s.screen)
	r.Path("/console").Methods("POST", "OPTIONS").HandlerFunc(s.write)
	r.Path("/cursor").Methods("GET").HandlerFunc(s.cursor)
	r.Path("/panic").Methods("POST", "OPTIONS").HandlerFunc(s.crash)
	r.Path("/serial").HandlerFunc(s.serial)
	r.Path("/metrics").Handler(promhttp.Handler())
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Access-Control-Allow-Origin", "*")
		if r.Method == "OPTIONS" {
			w.Header().Add("Access-Control-Allow-Headers", "Content-Type")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// screen renders the framebuffer as a PNG. ?scale=N enlarges it with
// nearest-neighbour sampling and ?cursor=1 underlines the cursor cell.
func (s *Server) screen(w http.ResponseWriter, r *http.Request) {
	snap := s.kernel.Console.Snapshot()
	if snap == nil {
		http.Error(w, kerr.ErrFrameBufferUnavailable.Error(), http.StatusServiceUnavailable)
		return
	}

	scale := 1
	if v := r.URL.Query().Get("scale"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxScale {
			http.Error(w, "scale must be between 1 and 8", http.StatusBadRequest)
			return
		}
		scale = n
	}

	img := snap
	if scale > 1 {
		b := snap.Bounds()
		img = image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
		draw.NearestNeighbor.Scale(img, img.Bounds(), snap, b, draw.Src, nil)
	}

	dc := gg.NewContextForRGBA(img)
	if r.URL.Query().Get("cursor") == "1" {
		row, col := s.kernel.Console.Cursor()
		dc.Scale(float64(scale), float64(scale))
		dc.DrawRectangle(float64(col*glyph.Width), float64((row+1)*glyph.Height-2), glyph.Width, 2)
		dc.SetRGB(1, 1, 1)
		dc.Fill()
	}

	w.Header().Set("Content-Type", "image/png")
	if err := dc.EncodePNG(w); err != nil {
		s.logger.Warnw("unable to encode screen",
			"err", err)
	}
}

// write prints {"text": "...", "safe": bool} on the console.
func (s *Server) write(w http.ResponseWriter, r *http.Request) {
	body, err := gabs.ParseJSONBuffer(r.Body)
	r.Body.Close()
	if err != nil {
		http.Error(w, "body must be json", http.StatusBadRequest)
		return
	}

	text, ok := body.Path("text").Data().(string)
	if !ok {
		http.Error(w, "text must be a string", http.StatusBadRequest)
		return
	}
	safe, _ := body.Path("safe").Data().(bool)

	if safe {
		s.kernel.Console.WriteStringSafe(text)
	} else if _, err := s.kernel.Console.WriteString(text); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, kerr.ErrFrameBufferUnavailable) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	s.cursor(w, r)
}

func (s *Server) cursor(w http.ResponseWriter, r *http.Request) {
	c := s.kernel.Console
	row, col := c.Cursor()
	cols, rows := c.Size()

	doc := gabs.New()
	doc.Set(c.Ready(), "ready")
	doc.Set(row, "row")
	doc.Set(col, "col")
	doc.Set(cols, "cols")
	doc.Set(rows, "rows")
	doc.Set(c.Scrolls(), "scrolls")
	doc.Set(c.Policy().String(), "scroll")
	format, bpp := c.Framebuffer()
	doc.Set(format.String(), "format")
	doc.Set(bpp, "bytesPerPixel")
	if code, halted := s.kernel.Halted(); halted {
		doc.Set(code.String(), "halted")
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(doc.Bytes())
}

// crash runs the kernel panic handler with {"message": "..."}.
func (s *Server) crash(w http.ResponseWriter, r *http.Request) {
	msg := "panic requested over http"
	if body, err := gabs.ParseJSONBuffer(r.Body); err == nil {
		if m, ok := body.Path("message").Data().(string); ok {
			msg = m
		}
	}
	r.Body.Close()

	s.kernel.Panic(msg)
	s.cursor(w, r)
}

// serial streams the serial port: the backlog first, then every write.
func (s *Server) serial(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugw("unable to upgrade serial client",
			"err", err)
		return
	}
	defer conn.Close()

	backlog, ch, cancel := s.hub.Subscribe()
	defer cancel()

	// Clients never send anything meaningful; reading detects disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.logger.Debugw("serial client disconnected",
					"err", err)
				return
			}
		}
	}()

	if len(backlog) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, backlog); err != nil {
			return
		}
	}
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debugw("unable to write to serial client",
					"err", err)
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
