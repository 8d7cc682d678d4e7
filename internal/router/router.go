package router

import (
	"net/http"

	"propscan-api/internal/handler"
	"propscan-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router. Nil handlers
// leave their routes unmounted.
type Config struct {
	Handler         *handler.Handler
	AuthHandler     *handler.AuthHandler
	ScanHandler     *handler.ScanHandler
	RecordsHandler  *handler.RecordsHandler
	PropertyHandler *handler.PropertyHandler
	OfflineHandler  *handler.OfflineHandler
	AdminHandler    *handler.AdminHandler
	AuthMiddleware  func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-Token", "X-Device-Features", "X-Device-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			if cfg.AuthHandler != nil {
				r.Route("/auth", func(r chi.Router) {
					r.Post("/token", cfg.AuthHandler.GenerateToken)
					r.Post("/revoke", cfg.AuthHandler.RevokeToken)
					r.Post("/refresh", cfg.AuthHandler.RefreshToken)
				})
			}

			r.Get("/device/capabilities", handler.Capabilities)

			if cfg.ScanHandler != nil {
				r.Route("/scan", func(r chi.Router) {
					r.Post("/qr", cfg.ScanHandler.ScanQR)
					r.Post("/nfc", cfg.ScanHandler.ScanNFC)
					r.Get("/history", cfg.ScanHandler.History)
					r.Delete("/history", cfg.ScanHandler.ClearHistory)
					r.Get("/statistics", cfg.ScanHandler.Statistics)
					r.Get("/trends", cfg.ScanHandler.Trends)
					r.Get("/export", cfg.ScanHandler.Export)
					if cfg.RecordsHandler != nil {
						r.Get("/records", cfg.RecordsHandler.List)
					}
				})
				r.Get("/handoff", cfg.ScanHandler.Handoff)
			}

			if cfg.PropertyHandler != nil {
				r.Route("/properties", func(r chi.Router) {
					r.Get("/", cfg.PropertyHandler.List)
					r.Post("/", cfg.PropertyHandler.Create)
					r.Get("/next-serial", cfg.PropertyHandler.NextSerial)
					r.Get("/{serial}", cfg.PropertyHandler.Get)
					r.Get("/{serial}/qrcode", cfg.PropertyHandler.QRCode)
					r.Patch("/{id}", cfg.PropertyHandler.Update)
					r.Delete("/{id}", cfg.PropertyHandler.Delete)
				})
			}

			if cfg.OfflineHandler != nil {
				r.Route("/offline", func(r chi.Router) {
					r.Post("/", cfg.OfflineHandler.Enqueue)
					r.Post("/sync", cfg.OfflineHandler.Sync)
					r.Get("/pending", cfg.OfflineHandler.Pending)
				})
			}

			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Get("/health", cfg.AdminHandler.GetHealth)
				})
			}
		})
	})

	return r
}
