// Package members отдаёт администратору страницу пользователей из реляционной таблицы.
package members

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/membership-reconciler/internal/http/response"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Service читает пользователей постранично.
type Service interface {
	ListMembers(ctx context.Context, limit, offset int) ([]models.User, error)
}

// Handler обрабатывает GET /api/v1/admin/members.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP разбирает limit и offset и возвращает страницу пользователей.
// @Summary Список пользователей
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param limit query int false "Размер страницы (до 500)"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Неверные параметры"
// @Router /admin/members [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.membership.members"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	limit, err := intParam(r, "limit", defaultLimit)
	if err != nil || limit <= 0 || limit > maxLimit {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("limit must be between 1 and 500"))
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("offset must be a non-negative integer"))
		return
	}

	users, err := h.service.ListMembers(r.Context(), limit, offset)
	if err != nil {
		log.Error("failed to list members", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list members"))
		return
	}

	log.Debug("members listed", slog.Int("count", len(users)))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"members": users,
		"limit":   limit,
		"offset":  offset,
	}))
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
