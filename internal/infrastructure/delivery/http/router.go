// Package httprouter wires the HTTP API routes and middlewares.
package httprouter

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"vidfetch/internal/config"
	"vidfetch/internal/infrastructure/delivery/http/middleware"
	"vidfetch/internal/observability"
	"vidfetch/internal/service"
)

type chain []func(http.Handler) http.Handler

func (c chain) then(h http.Handler) http.Handler {
	for _, mw := range slices.Backward(c) {
		h = mw(h)
	}

	return h
}

type Router struct {
	*http.ServeMux

	log         *slog.Logger
	cfg         *config.Config
	globalChain []func(http.Handler) http.Handler
	routeChain  []func(http.Handler) http.Handler
	isSubRouter bool
	svc         service.Video
	metrics     *observability.Metrics
}

// New builds the router with all routes registered. metrics may be nil.
func New(log *slog.Logger, cfg *config.Config, svc service.Video, metrics *observability.Metrics) *Router {
	r := &Router{
		ServeMux: http.NewServeMux(),
		log:      log.With(slog.String("package", "httprouter")),
		cfg:      cfg,
		svc:      svc,
		metrics:  metrics,
	}

	r.SetGlobalMiddlewares()
	r.SetRoutes()

	return r
}

func (r *Router) Use(middleware ...func(http.Handler) http.Handler) {
	if r.isSubRouter {
		r.routeChain = append(r.routeChain, middleware...)
	} else {
		r.globalChain = append(r.globalChain, middleware...)
	}
}

func (r *Router) Group(fn func(r *Router)) {
	subRouter := &Router{
		isSubRouter: true,
		routeChain:  slices.Clone(r.routeChain),
		ServeMux:    r.ServeMux,
	}

	fn(subRouter)
}

func (r *Router) HandleFunc(pattern string, h http.HandlerFunc) {
	r.Handle(pattern, h)
}

func (r *Router) Handle(pattern string, h http.Handler) {
	for _, middleware := range slices.Backward(r.routeChain) {
		h = middleware(h)
	}

	r.ServeMux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	chain(r.globalChain).then(r.ServeMux).ServeHTTP(w, req)
}

// SetGlobalMiddlewares installs the middlewares every request passes through.
// CORS runs last so preflight requests are still logged and counted.
func (r *Router) SetGlobalMiddlewares() {
	r.Use(
		middleware.Recoverer,
		middleware.RequestID,
		middleware.Logger,
		middleware.Metrics(r.metrics, r.routeLabel),
		middleware.CORS(r.cfg.CORS),
	)
}

func (r *Router) SetRoutes() {
	r.SetRoutesHealthcheck()
	r.SetRoutesMetrics()
	r.SetRoutesVideo()
}

func (r *Router) SetRoutesHealthcheck() {
	r.HandleFunc("GET /health", r.Health)
}

func (r *Router) SetRoutesMetrics() {
	r.Handle("GET /metrics", r.metrics.Handler())
}

func (ro *Router) SetRoutesVideo() {
	videoRouter := &Router{
		ServeMux: http.NewServeMux(),
	}

	videoRouter.Group(func(g *Router) {
		g.Use(func(next http.Handler) http.Handler {
			return http.MaxBytesHandler(next, maxBodyBytes)
		})

		g.HandleFunc("POST /process-video", ro.ProcessVideo)
	})

	videoRouter.HandleFunc("GET /download/{download_id}", ro.Download)
	videoRouter.HandleFunc("GET /thumbnail/{download_id}", ro.Thumbnail)

	prefix := ro.cfg.HTTP.APIPrefix
	if prefix == "" {
		ro.Handle("/", videoRouter)

		return
	}

	ro.Handle(prefix+"/", http.StripPrefix(prefix, videoRouter))
}

// routeLabel maps a request path onto its route pattern so metric labels stay bounded.
func (r *Router) routeLabel(req *http.Request) string {
	path := req.URL.Path
	prefix := r.cfg.HTTP.APIPrefix

	switch {
	case path == "/health", path == "/metrics":
		return path
	case path == prefix+"/process-video":
		return path
	case strings.HasPrefix(path, prefix+"/download/"):
		return prefix + "/download/{download_id}"
	case strings.HasPrefix(path, prefix+"/thumbnail/"):
		return prefix + "/thumbnail/{download_id}"
	default:
		return "other"
	}
}
