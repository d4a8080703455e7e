package identity

import (
	"encoding/json"
	"time"

	"github.com/supabase-community/auth-go/types"

	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

const (
	metaMembershipType = "membership_type"
	metaExpiresAt      = "subscription_expires_at"
	metaUpdatedAt      = "updated_at"
)

// userMetadata — поля членства в user_metadata пользователя Supabase.
type userMetadata struct {
	MembershipType        string     `json:"membership_type"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at"`
}

type appMetadata struct {
	IsAdmin bool   `json:"is_admin"`
	Role    string `json:"role"`
}

// decodeMetadata переносит нетипизированную карту метаданных в структуру.
func decodeMetadata(raw map[string]interface{}, out any) error {
	if len(raw) == 0 {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func toModel(u types.User) (*models.User, error) {
	var meta userMetadata
	if err := decodeMetadata(u.UserMetadata, &meta); err != nil {
		return nil, err
	}
	var app appMetadata
	if err := decodeMetadata(u.AppMetadata, &app); err != nil {
		return nil, err
	}

	// неизвестное значение в метаданных трактуется как free
	tier, err := models.ParseTier(meta.MembershipType)
	if err != nil {
		tier = models.TierFree
	}
	m := models.Membership{Tier: tier, ExpiresAt: meta.SubscriptionExpiresAt}.Normalize()
	return &models.User{
		ID:         u.ID.String(),
		Email:      u.Email,
		IsAdmin:    app.IsAdmin || app.Role == "admin",
		UpdatedAt:  u.UpdatedAt,
		Membership: m,
	}, nil
}

func membershipMetadata(m models.Membership, updatedAt time.Time) map[string]interface{} {
	m = m.Normalize()
	var expiresAt interface{}
	if m.ExpiresAt != nil {
		expiresAt = m.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return map[string]interface{}{
		metaMembershipType: m.Tier.String(),
		metaExpiresAt:      expiresAt,
		metaUpdatedAt:      updatedAt.UTC().Format(time.RFC3339),
	}
}
