package entitlement

import (
	"time"

	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

// Status — итог одной реконсиляции.
type Status string

const (
	StatusApplied          Status = "applied"
	StatusPartiallyApplied Status = "partially_applied"
	StatusDowngradeRefused Status = "downgrade_refused"
	StatusInvalidInput     Status = "invalid_input"
	StatusFailed           Status = "failed"
)

// Store — хранилище, в которое записывается членство.
type Store string

const (
	StoreIdentity   Store = "identity"
	StoreRelational Store = "relational"
)

// Result описывает исход Reconcile для одного пользователя.
type Result struct {
	UserID      string      `json:"user_id,omitempty"`
	Event       Kind        `json:"event"`
	Status      Status      `json:"status"`
	Tier        models.Tier `json:"membership_type,omitempty"`
	ExpiresAt   *time.Time  `json:"subscription_expires_at"`
	FailedStore Store       `json:"failed_store,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Err         error       `json:"-"`
}

// OK сообщает, записано ли членство хотя бы в одно хранилище.
func (r Result) OK() bool {
	return r.Status == StatusApplied || r.Status == StatusPartiallyApplied
}

// Membership возвращает записанное (или текущее при отказе) членство.
func (r Result) Membership() models.Membership {
	return models.Membership{Tier: r.Tier, ExpiresAt: r.ExpiresAt}
}

// SweepReport — сводка одного прохода ExpirySweep.
type SweepReport struct {
	Now        time.Time     `json:"now"`
	Candidates int           `json:"candidates"`
	Applied    int           `json:"applied"`
	Partial    int           `json:"partially_applied"`
	Refused    int           `json:"downgrade_refused"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration_ns"`
	Results    []Result      `json:"results"`
	Err        error         `json:"-"`
}

func (r *SweepReport) add(res Result) {
	switch res.Status {
	case StatusApplied:
		r.Applied++
	case StatusPartiallyApplied:
		r.Partial++
	case StatusDowngradeRefused:
		r.Refused++
	default:
		r.Failed++
	}
}

// Result сворачивает отчёт в один Result для вызова через Reconcile.
func (r SweepReport) Result() Result {
	res := Result{Event: KindExpirySweep, Status: StatusApplied}
	switch {
	case r.Err != nil:
		res.Status, res.Err, res.Reason = StatusFailed, r.Err, "candidate listing failed"
	case r.Candidates > 0 && r.Failed == r.Candidates:
		res.Status, res.Reason = StatusFailed, "every candidate failed"
	case r.Failed > 0 || r.Partial > 0:
		res.Status, res.Reason = StatusPartiallyApplied, "some candidates were not fully applied"
	}
	return res
}
