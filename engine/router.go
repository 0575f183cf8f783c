package engine

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Handler is an http handler that returns its response instead of writing it.
// This keeps status/error mapping in one place and lets middleware compose cleanly.
type Handler func(*http.Request, httprouter.Params) Response

// Authenticator can be used to pass an authenticator implementation to other handlers.
type Authenticator interface {
	WithAuthn(Handler) Handler
	WithSuperAdmin(Handler) Handler
}

type noopAuthenticator struct{}

func (noopAuthenticator) WithAuthn(fn Handler) Handler      { return fn }
func (noopAuthenticator) WithSuperAdmin(fn Handler) Handler { return fn }

type Router struct {
	router *httprouter.Router

	Authenticator
}

func NewRouter() *Router {
	return &Router{router: httprouter.New(), Authenticator: noopAuthenticator{}}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, rr *http.Request) { r.router.ServeHTTP(w, rr) }

func (r *Router) Handle(method, path string, fn Handler) {
	r.router.Handle(method, path, func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		start := time.Now()

		ww := &responseWrapper{ResponseWriter: w, status: 200}
		resp := fn(req, ps)
		if resp != nil {
			resp(ww, req)
		}
		slog.Info("http request", "url", req.URL.Path, "method", req.Method, "userAgent", req.UserAgent(), "latencyMS", time.Since(start).Milliseconds(), "status", ww.status)
	})
}

// HandleFunc registers a plain stdlib handler without response mapping, e.g. health probes.
func (r *Router) HandleFunc(method, path string, fn http.HandlerFunc) {
	r.router.HandlerFunc(method, path, fn)
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
		if err := svr.ListenAndServe(); err != nil {
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
