// Package entitlement вычисляет и применяет уровень членства пользователя.
//
// Все входы (вебхук платёжного провайдера, плановая очистка, проверка сессии
// оплаты, ручная корректировка администратором) переводятся в Event и проходят
// через одну функцию ComputeTarget и один метод Reconciler.Reconcile.
package entitlement

import (
	"time"

	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

// Kind — вид события реконсиляции. Используется в логах, метриках и ответах.
type Kind string

const (
	KindCheckoutCompleted    Kind = "checkout_completed"
	KindSubscriptionRenewed  Kind = "subscription_renewed"
	KindSubscriptionCanceled Kind = "subscription_canceled"
	KindExpirySweep          Kind = "expiry_sweep"
	KindManualOverride       Kind = "manual_override"
)

// Event — вход реконсилятора.
type Event interface {
	Kind() Kind
	// Subject возвращает идентификатор пользователя; пустой для пакетной очистки.
	Subject() string
}

// CheckoutCompleted — оплата завершена, уровень берётся из метаданных платежа.
type CheckoutCompleted struct {
	UserID string
	Tier   models.Tier
	Proof  string // id checkout‑сессии или payment intent
}

// SubscriptionRenewed — провайдер сообщил о продлении подписки.
type SubscriptionRenewed struct {
	UserID    string
	PeriodEnd *time.Time
}

// SubscriptionCanceled — подписка отменена, доступ сохраняется до конца периода.
type SubscriptionCanceled struct {
	UserID    string
	PeriodEnd *time.Time
}

// ExpirySweep — пакетный перевод истёкших подписок на free.
type ExpirySweep struct {
	Now time.Time
}

// ManualOverride — корректировка, запрошенная администратором.
type ManualOverride struct {
	UserID    string
	Tier      models.Tier
	ExpiresAt *time.Time
	Proof     string
}

func (CheckoutCompleted) Kind() Kind    { return KindCheckoutCompleted }
func (SubscriptionRenewed) Kind() Kind  { return KindSubscriptionRenewed }
func (SubscriptionCanceled) Kind() Kind { return KindSubscriptionCanceled }
func (ExpirySweep) Kind() Kind          { return KindExpirySweep }
func (ManualOverride) Kind() Kind       { return KindManualOverride }

func (e CheckoutCompleted) Subject() string    { return e.UserID }
func (e SubscriptionRenewed) Subject() string  { return e.UserID }
func (e SubscriptionCanceled) Subject() string { return e.UserID }
func (ExpirySweep) Subject() string            { return "" }
func (e ManualOverride) Subject() string       { return e.UserID }
