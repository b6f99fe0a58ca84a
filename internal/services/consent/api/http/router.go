package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the consent API route tree.
func NewRouter(handler *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/drafts", handler.saveDraft)

		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", handler.listContracts)
			r.Route("/{contractID}", func(r chi.Router) {
				r.Get("/", handler.getContract)
				r.Post("/finalize", handler.finalizeContract)
				r.Post("/share", handler.shareContract)
				r.Post("/revoke", handler.revokeContract)
				r.Get("/amendments", handler.listAmendments)
				r.Post("/amendments", handler.proposeAmendment)
			})
		})

		r.Post("/invitations/{code}/accept", handler.acceptInvitation)

		r.Route("/collaborators/{collaboratorID}", func(r chi.Router) {
			r.Post("/review", handler.reviewCollaborator)
			r.Post("/approve", handler.approveCollaborator)
			r.Post("/reject", handler.rejectCollaborator)
		})

		r.Route("/amendments/{amendmentID}", func(r chi.Router) {
			r.Post("/approve", handler.approveAmendment)
			r.Post("/reject", handler.rejectAmendment)
		})

		r.Route("/users/{userID}/preferences", func(r chi.Router) {
			r.Get("/", handler.getPreferences)
			r.Put("/", handler.putPreferences)
		})
	})

	return r
}
