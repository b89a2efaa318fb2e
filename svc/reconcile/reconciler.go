package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/prokit/pkg/billing"
	"github.com/dmitrymomot/prokit/pkg/logger"
)

// Result describes how an event was handled.
type Result struct {
	EventID  string
	Status   string
	Outcome  Outcome
	TenantID uuid.UUID
}

// Activation is passed to the Notifier after a checkout is applied.
type Activation struct {
	TenantID uuid.UUID
	OwnerID  uuid.UUID
	Email    string
	PlanID   string
}

type Notifier interface {
	NotifyActivated(ctx context.Context, a Activation) error
}

type Reconciler struct {
	store    Store
	locker   Locker
	notifier Notifier
	log      *slog.Logger

	notifyTimeout time.Duration
	wg            sync.WaitGroup
}

type Option func(*Reconciler)

// WithLocker enables the per-event in-flight lock.
func WithLocker(l Locker) Option {
	return func(r *Reconciler) { r.locker = l }
}

// WithNotifier sends activation notices after checkout events.
func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notifier = n }
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.notifyTimeout = d }
}

func New(store Store, log *slog.Logger, opts ...Option) *Reconciler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := &Reconciler{
		store:         store,
		log:           log.With(logger.Component("reconcile")),
		notifyTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle applies evt exactly once. The ledger insert, the tenant update and
// the profile update share one transaction, so a failure leaves nothing
// recorded and the provider's retry is processed from scratch.
func (r *Reconciler) Handle(ctx context.Context, evt *billing.Event) (*Result, error) {
	log := r.log.With(logger.EventID(evt.ID), logger.EventType(evt.ProviderType), logger.Provider(evt.Provider))

	if r.locker != nil {
		release, ok, err := r.locker.Acquire(ctx, evt.Provider+":"+evt.ID)
		switch {
		case err != nil:
			log.WarnContext(ctx, "in-flight lock unavailable, relying on ledger", logger.Error(err))
		case !ok:
			return nil, ErrInFlight
		default:
			defer release(context.WithoutCancel(ctx))
		}
	}

	res := &Result{EventID: evt.ID}
	var (
		activation *Activation
		patch      Patch
	)

	err := r.store.InTx(ctx, func(l Ledger) error {
		inserted, err := l.InsertEvent(ctx, EventRecord{
			EventID:    evt.ID,
			Provider:   evt.Provider,
			EventType:  evt.ProviderType,
			OccurredAt: evt.OccurredAt,
			Outcome:    OutcomeIgnored,
		})
		if err != nil {
			return err
		}
		if !inserted {
			res.Status = StatusDuplicate
			return nil
		}

		t, ok := TransitionFor(evt.Kind)
		if !ok || (t.RequiresPayment && !evt.PaymentConfirmed) {
			res.Outcome = OutcomeIgnored
			return nil
		}

		state, err := resolve(ctx, l, evt)
		if errors.Is(err, ErrTenantNotFound) {
			res.Outcome = OutcomeUnresolved
			return l.SetEventOutcome(ctx, evt.ID, nil, OutcomeUnresolved)
		}
		if err != nil {
			return err
		}
		res.TenantID = state.ID

		var outcome Outcome
		patch, outcome = Apply(*state, *evt)
		res.Outcome = outcome

		if patch.TenantChanged() {
			err := l.UpdateTenant(ctx, state.ID, patch)
			if errors.Is(err, ErrCustomerConflict) {
				patch = Patch{}
				res.Outcome = OutcomeConflict
				return l.SetEventOutcome(ctx, evt.ID, &state.ID, OutcomeConflict)
			}
			if err != nil {
				return err
			}
		}
		if patch.CompleteOnboarding {
			if err := l.CompleteOnboarding(ctx, state.OwnerID); err != nil {
				return err
			}
		}
		if err := l.SetEventOutcome(ctx, evt.ID, &state.ID, outcome); err != nil {
			return err
		}

		if evt.Kind == billing.KindCheckoutCompleted && outcome == OutcomeApplied {
			plan := evt.Metadata.PlanID
			if patch.Plan != nil {
				plan = *patch.Plan
			}
			activation = &Activation{TenantID: state.ID, OwnerID: state.OwnerID, Email: state.Email, PlanID: plan}
		}
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to reconcile billing event",
			logger.TenantID(res.TenantID), logger.UserID(evt.Metadata.UserID), logger.Error(err))
		return nil, errors.Join(ErrStorage, err)
	}

	if res.Status == "" {
		res.Status = StatusIgnored
		if res.Outcome == OutcomeApplied {
			res.Status = StatusProcessed
		}
	}

	switch res.Outcome {
	case OutcomeUnresolved:
		log.WarnContext(ctx, "billing event matches no tenant",
			slog.String("customer_id", evt.CustomerID),
			logger.UserID(evt.Metadata.UserID),
			logger.TenantID(evt.Metadata.TenantID))
	case OutcomeConflict:
		log.WarnContext(ctx, "billing event customer already belongs to another tenant",
			slog.String("customer_id", evt.CustomerID),
			logger.TenantID(res.TenantID))
	case OutcomeStale:
		log.InfoContext(ctx, "billing event older than tenant state", logger.TenantID(res.TenantID))
	case OutcomeApplied:
		log.InfoContext(ctx, "billing event applied", logger.TenantID(res.TenantID), slog.String("status", derefOr(patch.Status, "")))
	}
	if res.Status == StatusDuplicate {
		log.InfoContext(ctx, "duplicate billing event acknowledged")
	}

	if activation != nil && r.notifier != nil {
		r.notify(ctx, *activation)
	}
	return res, nil
}

// Wait blocks until pending notifications finish.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

func (r *Reconciler) notify(ctx context.Context, a Activation) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.notifyTimeout)
		defer cancel()
		if err := r.notifier.NotifyActivated(ctx, a); err != nil {
			r.log.ErrorContext(ctx, "failed to send activation notice",
				logger.TenantID(a.TenantID), logger.Error(err))
		}
	}()
}

// resolve finds the tenant by metadata tenant id, then owner id, then the
// stored customer reference.
func resolve(ctx context.Context, l Ledger, evt *billing.Event) (*TenantState, error) {
	if id, err := uuid.Parse(evt.Metadata.TenantID); err == nil {
		state, err := l.LockTenantByID(ctx, id)
		if !errors.Is(err, ErrTenantNotFound) {
			return state, err
		}
	}
	if id, err := uuid.Parse(evt.Metadata.UserID); err == nil {
		state, err := l.LockTenantByOwner(ctx, id)
		if !errors.Is(err, ErrTenantNotFound) {
			return state, err
		}
	}
	if evt.CustomerID != "" {
		return l.LockTenantByCustomer(ctx, evt.CustomerID)
	}
	return nil, ErrTenantNotFound
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
