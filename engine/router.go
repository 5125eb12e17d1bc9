package engine

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Handler is an http handler that returns its response instead of writing it,
// which keeps control flow in module code linear: return early with an error
// response, or fall through to the success response.
type Handler func(*http.Request) Response

// Authenticator is implemented by the auth module and injected into the router
// so that other modules can protect their routes without importing auth.
type Authenticator interface {
	WithAuthn(Handler) Handler
}

type noopAuthenticator struct{}

func (noopAuthenticator) WithAuthn(fn Handler) Handler { return fn }

type Router struct {
	mux *http.ServeMux

	// Authenticator is replaced by the auth module at startup.
	Authenticator
}

// NewRouter returns a router that serves fallback (if any) for unmatched routes.
func NewRouter(fallback http.Handler) *Router {
	mux := http.NewServeMux()
	if fallback != nil {
		mux.Handle("/", fallback)
	}
	return &Router{mux: mux, Authenticator: noopAuthenticator{}}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, rr *http.Request) { r.mux.ServeHTTP(w, rr) }

// Handle registers a handler for the given method and path.
// Path patterns support Go 1.22 ServeMux wildcards.
func (r *Router) Handle(method, path string, fn Handler) {
	r.mux.HandleFunc(method+" "+path, func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()

		ww := &responseWrapper{ResponseWriter: w, status: 200}
		resp := fn(req)
		if resp == nil {
			ww.WriteHeader(http.StatusNoContent)
		} else {
			resp.ServeHTTP(ww, req)
		}
		slog.Info("http request", "url", req.URL.Path, "method", req.Method, "userAgent", req.UserAgent(), "latencyMS", time.Since(start).Milliseconds(), "status", ww.status)
	})
}

// Serve wires up the stdlib http server to the engine.
func (r *Router) Serve(addr string) Proc {
	return func(ctx context.Context) error {
		svr := &http.Server{Handler: r, Addr: addr}
		go func() {
			<-ctx.Done()
			slog.Warn("gracefully shutting down http server...")
			svr.Shutdown(context.Background())
		}()
		if err := svr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		slog.Info("the http server has shut down")
		return nil
	}
}

type responseWrapper struct {
	http.ResponseWriter
	status int
}

func (w *responseWrapper) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
