package origin

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	// maxBytes caps the /bytes payload size.
	maxBytes = 16 << 20
	// maxSlowMS caps the /slow delay.
	maxSlowMS = 60_000
	// maxEchoBody caps how much of an /echo request body is reflected.
	maxEchoBody = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// intQuery parses an integer query parameter, falling back to def when the
// parameter is absent. Returns an error for malformed or out-of-range values.
func intQuery(r *http.Request, name string, def, max int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > max {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "hello from the fetchq origin")
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "fetchq-origin",
		"message": "ok",
	})
}

// handleBytes returns n deterministic bytes (a repeating 0x00..0xFF ramp).
func (s *Server) handleBytes(w http.ResponseWriter, r *http.Request) {
	n, err := intQuery(r, "n", 1024, maxBytes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(n))
	w.Write(buf)
}

// blobMagic is the fixed payload served by /blob. Distinct from /bytes so
// clients can verify both the body and a non-standard content type.
var blobMagic = []byte{0xFE, 0x7C, 'F', 'E', 'T', 'C', 'H', 'Q', 0x00, 0x01}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-fetchq-blob")
	w.Header().Set("Content-Length", strconv.Itoa(len(blobMagic)))
	w.Write(blobMagic)
}

// handleImage returns a 1x1 PNG.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 0x29, G: 0x73, B: 0xB7, A: 0xFF})

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		s.logger.Error("encode png", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprintln(w, http.StatusText(code))
}

// handleSlow responds after ms milliseconds, or stops early when the client
// goes away.
func (s *Server) handleSlow(w http.ResponseWriter, r *http.Request) {
	ms, err := intQuery(r, "ms", 100, maxSlowMS)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-r.Context().Done():
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "slept %dms\n", ms)
}

// handleFlaky fails the first `fails` requests for a key with 503, then
// succeeds. State is per server instance.
func (s *Server) handleFlaky(w http.ResponseWriter, r *http.Request) {
	fails, err := intQuery(r, "fails", 2, 1000)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		key = "default"
	}

	s.mu.Lock()
	n := s.flaky[key]
	s.flaky[key] = n + 1
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if n < fails {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "flaky failure %d of %d\n", n+1, fails)
		return
	}
	fmt.Fprintf(w, "recovered after %d failures\n", fails)
}

type echoResponse struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   string            `json:"query,omitempty"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
}

// handleEcho reflects the request back as JSON. Accepts any method.
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEchoBody))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	writeJSON(w, http.StatusOK, echoResponse{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: headers,
		Body:    string(body),
	})
}
