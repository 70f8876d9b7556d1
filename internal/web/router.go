package web

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ormea-systems/maildesk/internal/auth"
	"github.com/ormea-systems/maildesk/internal/ratelimit"
	"github.com/ormea-systems/maildesk/internal/web/handlers"
	"github.com/ormea-systems/maildesk/internal/web/middleware"
)

// RouterDeps holds all dependencies needed to build the router.
type RouterDeps struct {
	AuthHandler          *handlers.AuthHandler
	UserHandler          *handlers.UserHandler
	ServiceHandler       *handlers.ServiceHandler
	CorrespondentHandler *handlers.CorrespondentHandler
	MailHandler          *handlers.MailHandler
	StatsHandler         *handlers.StatsHandler
	ImportHandler        *handlers.ImportHandler
	AuthService          *auth.Service
	Limiter              *ratelimit.Limiter
}

// NewRouter wires all routes into a Chi router.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RateLimit(deps.Limiter))

	r.Route("/api/v1", func(r chi.Router) {
		// Public.
		r.Post("/auth/login", deps.AuthHandler.HandleLogin)
		r.Post("/auth/logout", deps.AuthHandler.HandleLogout)

		// Authenticated.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(deps.AuthService))

			r.Get("/auth/me", deps.AuthHandler.HandleMe)

			r.Route("/mails", func(r chi.Router) {
				r.Get("/", deps.MailHandler.HandleList)
				r.Post("/", deps.MailHandler.HandleCreate)
				r.Get("/{id}", deps.MailHandler.HandleGet)
				r.Put("/{id}", deps.MailHandler.HandleUpdate)
				r.Post("/{id}/reply", deps.MailHandler.HandleReply)
				r.Post("/{id}/open", deps.MailHandler.HandleMarkOpened)
				r.Post("/{id}/attachments", deps.MailHandler.HandleAddAttachment)
				r.Get("/{id}/attachments/{attachmentID}", deps.MailHandler.HandleGetAttachment)
				r.Delete("/{id}/attachments/{attachmentID}", deps.MailHandler.HandleRemoveAttachment)
			})

			r.Route("/correspondents", func(r chi.Router) {
				r.Get("/", deps.CorrespondentHandler.HandleSearch)
				r.Post("/", deps.CorrespondentHandler.HandleCreate)
				r.Get("/{id}", deps.CorrespondentHandler.HandleGet)
				r.Put("/{id}", deps.CorrespondentHandler.HandleUpdate)
				r.Delete("/{id}", deps.CorrespondentHandler.HandleDelete)
			})

			r.Route("/services", func(r chi.Router) {
				r.Get("/", deps.ServiceHandler.HandleList)
				r.Get("/{id}", deps.ServiceHandler.HandleGet)
			})

			r.Get("/stats", deps.StatsHandler.HandleDashboard)
			r.Get("/stats/advanced", deps.StatsHandler.HandleAdvanced)
		})

		// Admin.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(deps.AuthService))
			r.Use(middleware.RequireAdmin)

			r.Delete("/mails/{id}", deps.MailHandler.HandleDelete)

			r.Post("/services", deps.ServiceHandler.HandleCreate)
			r.Put("/services/{id}", deps.ServiceHandler.HandleUpdate)
			r.Delete("/services/{id}", deps.ServiceHandler.HandleArchive)
			r.Post("/services/{id}/restore", deps.ServiceHandler.HandleRestore)

			r.Post("/auth/register", deps.UserHandler.HandleRegister)
			r.Get("/users", deps.UserHandler.HandleList)
			r.Put("/users/{id}", deps.UserHandler.HandleUpdateRole)
			r.Delete("/users/{id}", deps.UserHandler.HandleDelete)

			r.Post("/import/csv", deps.ImportHandler.HandleImportCSV)
		})

		// Password changes are self-or-admin; the service enforces it.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(deps.AuthService))
			r.Put("/users/{id}/password", deps.UserHandler.HandleUpdatePassword)
		})
	})

	return r
}
