package httpserver

import (
	"log"
	"net/http"

	"github.com/hearthdocs/thumbnail-service/internal/http/handlers"
	"github.com/hearthdocs/thumbnail-service/internal/http/middleware"
)

type RouterDependencies struct {
	API         *handlers.API
	Logger      *log.Logger
	AuthToken   string
	CORSOrigins []string

	// Objects serves signed download links when the filesystem object
	// store backs the service; nil with an external provider.
	Objects http.Handler

	// Metrics exposes the Prometheus registry; nil disables the endpoint.
	Metrics http.Handler
}

func NewRouter(deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.API.Health)
	mux.HandleFunc("/documents/", deps.API.DocumentThumbnail)
	mux.HandleFunc("/thumbnails", deps.API.RegenerateThumbnails)
	mux.HandleFunc("/thumbnails/job/", deps.API.JobStatus)
	if deps.Objects != nil {
		mux.Handle("/objects/", deps.Objects)
	}
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}

	handler := http.Handler(mux)
	handler = middleware.Auth(deps.AuthToken)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
