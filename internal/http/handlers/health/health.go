// Package health отвечает на проверки живости и готовности сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/membership-reconciler/internal/http/response"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
)

// Check — именованная проверка зависимости.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Handler обрабатывает GET /healthz.
type Handler struct {
	log     *slog.Logger
	checks  []Check
	timeout time.Duration
}

// New создаёт Handler с набором проверок.
func New(log *slog.Logger, checks ...Check) *Handler {
	return &Handler{
		log:     log,
		checks:  checks,
		timeout: 2 * time.Second,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result := make(map[string]string, len(h.checks)+1)
	result["status"] = "ok"
	for _, c := range h.checks {
		if err := c.Fn(ctx); err != nil {
			h.log.Warn("health check failed", slog.String("op", op), slog.String("check", c.Name), sl.Err(err))
			result[c.Name] = err.Error()
			result["status"] = "degraded"
			continue
		}
		result[c.Name] = "ok"
	}

	if result["status"] != "ok" {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Response{Status: response.StatusError, Error: "dependency unavailable", Data: result})
		return
	}
	render.JSON(w, r, response.StatusOKWithData(result))
}
