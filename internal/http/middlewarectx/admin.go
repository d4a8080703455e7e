package middlewarectx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/membership-reconciler/internal/http/response"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

// Authorizer решает, является ли вызывающий администратором.
type Authorizer interface {
	IsAdmin(p models.Principal) bool
}

// AllowList — Authorizer по списку адресов из конфига и явному флагу токена.
type AllowList struct {
	emails map[string]struct{}
}

// NewAllowList создаёт AllowList. Адреса ожидаются в нижнем регистре.
func NewAllowList(emails map[string]struct{}) *AllowList {
	if emails == nil {
		emails = map[string]struct{}{}
	}
	return &AllowList{emails: emails}
}

// IsAdmin реализует Authorizer.
func (a *AllowList) IsAdmin(p models.Principal) bool {
	if p.IsAdmin {
		return true
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		return false
	}
	_, ok := a.emails[email]
	return ok
}

// RequireAdmin пропускает только администраторов. Ставится после JWTMiddleware:
// без вызывающего в контексте отвечает 401, не администратору 403.
func RequireAdmin(authz Authorizer, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.RequireAdmin"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			p, ok := PrincipalFrom(r.Context())
			if !ok {
				log.Warn("user identification missing")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}
			if !authz.IsAdmin(p) {
				log.Warn("non-admin caller on admin route", sl.UserID(p.UserID))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
