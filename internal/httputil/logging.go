package httputil

import (
	"fmt"
	"log"
	"net/http"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiPath   = "\033[36m"
	ansiOK     = "\033[1;32m"
	ansiRedir  = "\033[33m"
	ansiFailed = "\033[1;31m"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// RequestLogger logs one line per request: status, method, URI, body size
// and latency. Color wraps the status and URI in ANSI escapes for a
// terminal.
type RequestLogger struct {
	Logger *log.Logger
	Color  bool
}

// Wrap returns next with request logging applied.
func (rl RequestLogger) Wrap(next http.Handler) http.Handler {
	logger := rl.Logger
	if logger == nil {
		logger = log.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Printf("[%s] %s %s %dB %.2fms",
			rl.status(rec.status), r.Method, rl.paint(ansiPath, r.RequestURI),
			rec.bytes, float64(time.Since(start).Microseconds())/1000)
	})
}

func (rl RequestLogger) status(code int) string {
	switch {
	case code >= 400:
		return rl.paint(ansiFailed, fmt.Sprint(code))
	case code >= 300:
		return rl.paint(ansiRedir, fmt.Sprint(code))
	case code >= 200:
		return rl.paint(ansiOK, fmt.Sprint(code))
	}
	return fmt.Sprint(code)
}

func (rl RequestLogger) paint(code, s string) string {
	if !rl.Color {
		return s
	}
	return code + s + ansiReset
}
