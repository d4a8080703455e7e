package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

// IdentityStore — авторитетное хранилище (метаданные пользователя Supabase Auth).
type IdentityStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateMembership(ctx context.Context, userID string, m models.Membership, updatedAt time.Time) error
}

// UserRepository — зеркало членства в реляционной таблице users.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpsertMembership(ctx context.Context, userID, email string, m models.Membership, updatedAt time.Time) error
	ListLapsedSubscriptions(ctx context.Context, now time.Time) ([]models.User, error)
}

// Cache хранит снимки членства для чтения. После успешной записи в хранилище
// идентичностей снимок перезаписывается, иначе сбрасывается.
type Cache interface {
	SetMembership(ctx context.Context, u *models.User) error
	InvalidateMembership(ctx context.Context, userID string) error
}

// Publisher публикует событие изменения членства.
type Publisher interface {
	MembershipChanged(ctx context.Context, ev models.MembershipChanged) error
}

// Metrics учитывает исходы реконсиляции.
type Metrics interface {
	ObserveReconcile(event, status string)
	ObserveStoreFailure(store string)
	ObserveSweep(candidates int, d time.Duration)
}

// Option настраивает Reconciler.
type Option func(*Reconciler)

// WithCache подключает кэш снимков членства.
func WithCache(c Cache) Option { return func(r *Reconciler) { r.cache = c } }

// WithPublisher подключает публикацию событий изменения членства.
func WithPublisher(p Publisher) Option { return func(r *Reconciler) { r.publisher = p } }

// WithMetrics подключает метрики.
func WithMetrics(m Metrics) Option { return func(r *Reconciler) { r.metrics = m } }

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

// WithSweepConcurrency задаёт число пользователей, обрабатываемых очисткой одновременно.
func WithSweepConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.sweepConcurrency = n
		}
	}
}

// Reconciler применяет вычисленное членство к обоим хранилищам.
type Reconciler struct {
	log              *slog.Logger
	identity         IdentityStore
	users            UserRepository
	policy           Policy
	cache            Cache
	publisher        Publisher
	metrics          Metrics
	now              func() time.Time
	sweepConcurrency int
}

// New создает Reconciler.
func New(log *slog.Logger, identity IdentityStore, users UserRepository, policy Policy, opts ...Option) *Reconciler {
	r := &Reconciler{
		log:              log,
		identity:         identity,
		users:            users,
		policy:           policy,
		now:              time.Now,
		sweepConcurrency: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile обрабатывает одно событие. ExpirySweep выполняется как Sweep.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) Result {
	const op = "entitlement.Reconcile"

	if sweep, ok := ev.(ExpirySweep); ok {
		now := sweep.Now
		if now.IsZero() {
			now = r.now()
		}
		return r.Sweep(ctx, now).Result()
	}
	if ev == nil {
		return r.finish(Result{Status: StatusInvalidInput, Reason: "event is required", Err: ErrInvalidInput})
	}

	userID := ev.Subject()
	log := r.log.With(slog.String("op", op), sl.UserID(userID), slog.String("event", string(ev.Kind())))
	res := Result{UserID: userID, Event: ev.Kind()}

	if userID == "" {
		res.Status, res.Reason, res.Err = StatusInvalidInput, "user id is required", ErrInvalidInput
		log.Warn("reconciliation refused", slog.String("reason", res.Reason))
		return r.finish(res)
	}

	current, err := r.current(ctx, log, userID, nil)
	if err != nil {
		res.Err = err
		if errors.Is(err, ErrUserNotFound) {
			res.Status, res.Reason = StatusInvalidInput, "user not found"
			log.Warn("reconciliation refused", slog.String("reason", res.Reason))
		} else {
			res.Status, res.Reason = StatusFailed, "current membership unavailable"
			log.Error("failed to read current membership", sl.Err(err))
		}
		return r.finish(res)
	}

	return r.apply(ctx, log, current, ev, r.now())
}

// Sweep переводит все истёкшие подписки на free. Ошибка по одному пользователю
// не прерывает обработку остальных.
func (r *Reconciler) Sweep(ctx context.Context, now time.Time) SweepReport {
	const op = "entitlement.Sweep"
	log := r.log.With(slog.String("op", op), slog.Time("now", now))
	start := time.Now()
	report := SweepReport{Now: now.UTC()}

	candidates, err := r.users.ListLapsedSubscriptions(ctx, now)
	if err != nil {
		report.Err = fmt.Errorf("%s: %w", op, err)
		log.Error("failed to list lapsed subscriptions", sl.Err(err))
		return report
	}
	report.Candidates = len(candidates)
	report.Results = make([]Result, len(candidates))

	var g errgroup.Group
	g.SetLimit(r.sweepConcurrency)
	for i := range candidates {
		g.Go(func() error {
			report.Results[i] = r.sweepOne(ctx, log, candidates[i], now)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range report.Results {
		report.add(res)
	}
	report.Duration = time.Since(start)
	if r.metrics != nil {
		r.metrics.ObserveSweep(report.Candidates, report.Duration)
	}
	log.Info("expiry sweep finished",
		slog.Int("candidates", report.Candidates),
		slog.Int("applied", report.Applied),
		slog.Int("partially_applied", report.Partial),
		slog.Int("downgrade_refused", report.Refused),
		slog.Int("failed", report.Failed),
	)
	return report
}

func (r *Reconciler) sweepOne(ctx context.Context, log *slog.Logger, candidate models.User, now time.Time) Result {
	log = log.With(sl.UserID(candidate.ID))
	if err := ctx.Err(); err != nil {
		return r.finish(Result{UserID: candidate.ID, Event: KindExpirySweep, Status: StatusFailed, Reason: "sweep canceled", Err: err})
	}
	current, err := r.current(ctx, log, candidate.ID, &candidate)
	if err != nil {
		log.Error("failed to read current membership", sl.Err(err))
		return r.finish(Result{UserID: candidate.ID, Event: KindExpirySweep, Status: StatusFailed, Reason: "current membership unavailable", Err: err})
	}
	if current.Tier == models.TierLifetime && candidate.Tier != models.TierLifetime {
		log = log.With(slog.Bool("mirror_divergent", true), slog.String("mirror_tier", candidate.Tier.String()))
	}
	return r.apply(ctx, log, current, ExpirySweep{Now: now}, now)
}

// current читает членство из хранилища идентичностей. При сбое чтения уровень
// из зеркала не подставляется и запись не выполняется. Кандидат очистки,
// которого нет в хранилище идентичностей, сверяется по строке зеркала mirrored.
func (r *Reconciler) current(ctx context.Context, log *slog.Logger, userID string, mirrored *models.User) (*models.User, error) {
	const op = "entitlement.current"
	u, err := r.identity.GetUser(ctx, userID)
	switch {
	case err == nil:
		return u, nil
	case errors.Is(err, ErrUserNotFound) && mirrored != nil:
		log.Warn("user missing from identity store, reconciling relational mirror only")
		return mirrored, nil
	case errors.Is(err, ErrUserNotFound):
		return nil, err
	}
	return nil, fmt.Errorf("%s: %w", op, err)
}

func (r *Reconciler) apply(ctx context.Context, log *slog.Logger, user *models.User, ev Event, now time.Time) Result {
	prev := user.Membership.Normalize()
	res := Result{UserID: user.ID, Event: ev.Kind()}

	target, err := ComputeTarget(prev, ev, now, r.policy)
	switch {
	case errors.Is(err, ErrDowngradeRefused):
		res.Status, res.Tier, res.ExpiresAt = StatusDowngradeRefused, prev.Tier, prev.ExpiresAt
		res.Reason, res.Err = err.Error(), err
		log.Warn("reconciliation refused", slog.String("reason", res.Reason))
		return r.finish(res)
	case err != nil:
		res.Status, res.Reason, res.Err = StatusInvalidInput, err.Error(), err
		log.Warn("reconciliation refused", slog.String("reason", res.Reason))
		return r.finish(res)
	}

	res.Tier, res.ExpiresAt = target.Tier, target.ExpiresAt
	at := now.UTC()

	idErr := r.identity.UpdateMembership(ctx, user.ID, target, at)
	relErr := r.users.UpsertMembership(ctx, user.ID, user.Email, target, at)

	switch {
	case idErr == nil && relErr == nil:
		res.Status = StatusApplied
	case idErr != nil && relErr != nil:
		res.Status, res.Reason, res.Err = StatusFailed, "both stores rejected the write", errors.Join(idErr, relErr)
		log.Error("membership write failed in both stores",
			slog.String("tier", target.Tier.String()), sl.Err(res.Err))
		r.storeFailure(StoreIdentity)
		r.storeFailure(StoreRelational)
		return r.finish(res)
	case idErr != nil:
		res.Status, res.FailedStore, res.Err = StatusPartiallyApplied, StoreIdentity, idErr
	default:
		res.Status, res.FailedStore, res.Err = StatusPartiallyApplied, StoreRelational, relErr
	}
	if res.Status == StatusPartiallyApplied {
		res.Reason = string(res.FailedStore) + " store write failed"
		log.Warn("membership partially applied",
			slog.String("failed_store", string(res.FailedStore)),
			slog.String("tier", target.Tier.String()), sl.Err(res.Err))
		r.storeFailure(res.FailedStore)
	} else {
		log.Info("membership applied", slog.String("tier", target.Tier.String()))
	}

	r.refreshCache(ctx, log, user, target, at, idErr == nil)
	if r.publisher != nil && !prev.Equal(target) {
		msg := models.MembershipChanged{
			UserID:       user.ID,
			Email:        user.Email,
			PreviousTier: prev.Tier,
			Tier:         target.Tier,
			ExpiresAt:    target.ExpiresAt,
			Event:        string(ev.Kind()),
			OccurredAt:   at,
		}
		if err := r.publisher.MembershipChanged(ctx, msg); err != nil {
			log.Warn("failed to publish membership change", sl.Err(err))
		}
	}
	return r.finish(res)
}

// refreshCache перезаписывает снимок новым членством. Чтение статуса заполняет
// кэш только при отсутствии ключа, поэтому устаревший снимок не перекрывает новый.
func (r *Reconciler) refreshCache(ctx context.Context, log *slog.Logger, user *models.User, target models.Membership, at time.Time, identityWritten bool) {
	if r.cache == nil {
		return
	}
	if identityWritten {
		snapshot := *user
		snapshot.Membership, snapshot.UpdatedAt = target, at
		err := r.cache.SetMembership(ctx, &snapshot)
		if err == nil {
			return
		}
		log.Warn("failed to refresh membership cache", sl.Err(err))
	}
	if err := r.cache.InvalidateMembership(ctx, user.ID); err != nil {
		log.Warn("failed to invalidate membership cache", sl.Err(err))
	}
}

func (r *Reconciler) storeFailure(s Store) {
	if r.metrics != nil {
		r.metrics.ObserveStoreFailure(string(s))
	}
}

func (r *Reconciler) finish(res Result) Result {
	if r.metrics != nil {
		r.metrics.ObserveReconcile(string(res.Event), string(res.Status))
	}
	return res
}
