// Package status отдаёт вызывающему его текущее членство.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/membership-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/response"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

// Store читает пользователя из хранилища идентичностей.
type Store interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// Cache хранит снимок пользователя.
type Cache interface {
	GetMembership(ctx context.Context, userID string) (*models.User, bool, error)
	FillMembership(ctx context.Context, u *models.User) error
}

// Snapshot — ответ обработчика.
type Snapshot struct {
	UserID    string      `json:"user_id"`
	Tier      models.Tier `json:"membership_type"`
	ExpiresAt *time.Time  `json:"subscription_expires_at"`
	Lapsed    bool        `json:"lapsed"`
	IsAdmin   bool        `json:"is_admin"`
}

// Handler обрабатывает GET /api/v1/membership.
type Handler struct {
	log   *slog.Logger
	store Store
	cache Cache
	now   func() time.Time
}

// New создаёт Handler. cache может быть nil.
func New(log *slog.Logger, store Store, cache Cache) *Handler {
	return &Handler{
		log:   log,
		store: store,
		cache: cache,
		now:   time.Now,
	}
}

// ServeHTTP возвращает членство с учётом истечения: истёкшая подписка
// отдаётся как free с lapsed=true, даже если очистка ещё не прошла.
// @Summary Текущее членство
// @Tags Membership
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} status.Snapshot
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Router /membership [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.membership.status"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	principal, ok := middlewarectx.PrincipalFrom(r.Context())
	if !ok {
		log.Warn("user identification missing")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}
	log = log.With(sl.UserID(principal.UserID))

	user, err := h.load(r.Context(), log, principal.UserID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to read membership", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read membership"))
		return
	}

	now := h.now().UTC()
	effective := user.Membership.Effective(now)
	render.JSON(w, r, response.StatusOKWithData(Snapshot{
		UserID:    user.ID,
		Tier:      effective.Tier,
		ExpiresAt: effective.ExpiresAt,
		Lapsed:    user.Membership.Lapsed(now),
		IsAdmin:   principal.IsAdmin || user.IsAdmin,
	}))
}

func (h *Handler) load(ctx context.Context, log *slog.Logger, userID string) (*models.User, error) {
	if h.cache != nil {
		u, found, err := h.cache.GetMembership(ctx, userID)
		if err != nil {
			log.Warn("membership cache read failed", sl.Err(err))
		}
		if found {
			return u, nil
		}
	}

	u, err := h.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if h.cache != nil {
		if err := h.cache.FillMembership(ctx, u); err != nil {
			log.Warn("membership cache write failed", sl.Err(err))
		}
	}
	return u, nil
}
