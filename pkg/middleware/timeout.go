package middleware

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	apperrors "cardoctor/pkg/errors"
	httputil "cardoctor/pkg/http"
)

// timeoutWriter buffers the handler's response in its own header map and
// body. Nothing reaches the real writer until the handler returns in time.
type timeoutWriter struct {
	mu         sync.Mutex
	h          http.Header
	buf        bytes.Buffer
	timedOut   bool
	written    bool
	statusCode int
}

func newTimeoutWriter() *timeoutWriter {
	return &timeoutWriter{h: make(http.Header), statusCode: http.StatusOK}
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.h
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.timedOut || tw.written {
		return
	}

	tw.statusCode = code
	tw.written = true
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}

	tw.written = true
	return tw.buf.Write(b)
}

// flush copies the buffered response to w. Callers hold tw.mu.
func (tw *timeoutWriter) flush(w http.ResponseWriter) {
	dst := w.Header()
	for key, values := range tw.h {
		dst[key] = values
	}
	w.WriteHeader(tw.statusCode)
	_, _ = w.Write(tw.buf.Bytes())
}

// RequestTimeout bounds handler execution. Panics in the handler goroutine
// are re-raised on the serving goroutine so Recovery still sees them.
func RequestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)
			tw := newTimeoutWriter()

			done := make(chan struct{})
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				next.ServeHTTP(tw, r)
				close(done)
			}()

			select {
			case <-done:
				tw.mu.Lock()
				defer tw.mu.Unlock()
				tw.flush(w)
			case p := <-panicked:
				panic(p)
			case <-ctx.Done():
				tw.mu.Lock()
				defer tw.mu.Unlock()
				tw.timedOut = true
				_ = httputil.WriteError(w, apperrors.Timeout("Request timeout"))
			}
		})
	}
}
