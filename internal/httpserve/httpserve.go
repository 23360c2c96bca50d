// Package httpserve is the HTTP accept-loop collaborator behind the
// `serve` builtin. It binds a listener, feeds each request through the
// engine-supplied rtcore.Dispatcher, and writes the JSON wire shape. The
// loop blocks until maxRequests responses have been written (the test
// hook behind FUSE_MAX_REQUESTS) or the listener fails; no keep-alive
// policy or chunked transfer semantics beyond what net/http itself does.
package httpserve

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/fuselang/fuse/internal/rtcore"
	"github.com/fuselang/fuse/internal/rtlog"
)

// Server implements rtcore.HTTPServer on net/http.
type Server struct{}

func New() *Server { return &Server{} }

// Serve blocks serving dispatch on port. maxRequests <= 0 means unbounded.
func (s *Server) Serve(port int, maxRequests int, dispatch rtcore.Dispatcher) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return err
	}
	return s.serve(ln, maxRequests, dispatch)
}

func (s *Server) serve(ln net.Listener, maxRequests int, dispatch rtcore.Dispatcher) error {

	var (
		mu     sync.Mutex
		served int
		done   = make(chan struct{})
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The dispatcher runs engine code; requests are handled one at a
		// time to honor the single-threaded scheduling model.
		mu.Lock()
		defer mu.Unlock()

		var body []byte
		hasBody := false
		if r.Body != nil {
			b, err := io.ReadAll(r.Body)
			if err == nil && len(b) > 0 {
				body = b
				hasBody = true
			}
		}
		result := dispatch(r.Method, r.URL.Path, rtcore.RouteRequest{
			PathParams: nil,
			Body:       body,
			HasBody:    hasBody,
		})
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(result.Status)
		if _, err := w.Write(result.Body); err != nil {
			rtlog.L().Warnw("response write failed", "err", err)
		}

		served++
		if maxRequests > 0 && served >= maxRequests {
			close(done)
		}
	})

	srv := &http.Server{Handler: handler}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-done:
		_ = srv.Close()
		<-errCh
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
