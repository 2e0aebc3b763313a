package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-registry/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	profilesHandler := handlers.NewProfilesHandler(s.registry)
	recognizeHandler := handlers.NewRecognizeHandler(s.registry)
	facesHandler := handlers.NewFacesHandler(s.registry)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Profiles
		r.Get("/profiles", profilesHandler.List)
		r.Post("/profiles", profilesHandler.Create)
		r.Get("/profiles/{id}", profilesHandler.Get)
		r.Put("/profiles/{id}", profilesHandler.Update)
		r.Delete("/profiles/{id}", profilesHandler.Delete)

		// Recognition
		r.Post("/recognize", recognizeHandler.Recognize)

		// Face assets (read-only)
		r.Get("/faces/{ref}", facesHandler.Get)
	})
}
