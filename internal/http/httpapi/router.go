package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storyflow/internal/http/handlers"
	"storyflow/internal/infra"
	"storyflow/internal/middleware"
)

// NewRouter wires the route surface: health, balance, and the video
// generation endpoints backed by the status poller.
func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(logger),
		chimw.Recoverer,
		middleware.CORS([]string{cfg.CORSOrigin}),
		middleware.RateLimit(cfg.RateLimitPerMin, time.Minute),
	)

	r.Get("/health", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(cfg.JWTSecret))

		r.Route("/api/balance", func(r chi.Router) {
			r.Get("/", app.Balance)
			r.Get("/records", app.BalanceRecords)
			r.Post("/recharge", app.BalanceRecharge)
		})

		r.Route("/api/videos", func(r chi.Router) {
			r.Post("/storyboard-to-video", app.StoryboardToVideo)
			r.Post("/character-video", app.CharacterVideo)
			r.Get("/generations/{taskId}", app.GenerationStatus)
			r.Get("/variants/{id}", app.VariantStatus)
			r.Get("/characters/{id}", app.CharacterVideoStatus)
			r.Get("/polling", app.PollingStatus)
		})
	})

	return r
}
