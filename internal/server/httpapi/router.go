package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/server/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Router builds the route tree. Middleware order per request: security
// headers, request id and logging, then per route the rate limiter and the
// authenticator.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(chimiddleware.RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", common.AuthorizationHeaderName},
		MaxAge:         86400,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, NewAPIError(KindNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Response{Error: &ErrorBody{
			Code: "METHOD_NOT_ALLOWED", Message: "Method not allowed",
		}})
	})

	r.Handle("/metrics", metrics.Handler())

	r.Route(common.APIPrefix, func(r chi.Router) {
		r.Get("/health", s.health)

		r.Route("/auth", func(r chi.Router) {
			r.With(s.registerLimiter.Handler).Post("/register", s.register)
			r.With(s.loginLimiter.Handler).Post("/login", s.login)
			r.With(s.authenticator.Handler).Post("/logout", s.logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticator.Handler)

			r.Route("/folders", func(r chi.Router) {
				r.Get("/", s.listFolders)
				r.Post("/", s.createFolder)
				r.Patch("/{folderID}", s.renameFolder)
				r.Delete("/{folderID}", s.deleteFolder)
				r.Get("/{folderID}/images", s.listImages)
				r.Post("/{folderID}/images", s.uploadImage)
				r.Post("/{folderID}/images/request-upload", s.requestUpload)
				r.Post("/{folderID}/images/confirm-upload", s.confirmUpload)
			})

			r.Route("/images/{imageID}", func(r chi.Router) {
				r.Get("/", s.getImage)
				r.Patch("/", s.renameImage)
				r.Delete("/", s.deleteImage)
				r.Get("/file", s.imageFile)
				r.Get("/download-url", s.downloadURL)
				r.Post("/analyze", s.analyze)
				r.Get("/analysis-history", s.analysisHistory)
			})

			r.Route("/jobs/{jobID}", func(r chi.Router) {
				r.Get("/", s.jobStatus)
				r.Get("/result", s.jobResult)
			})
		})
	})

	return r
}
