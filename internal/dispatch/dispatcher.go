// Package dispatch executes a distribution plan: one sequential, paced loop
// per sender account, all accounts running concurrently.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/outreach-dispatch/internal/errors"
	"github.com/unclebandit/outreach-dispatch/internal/logger"
	"github.com/unclebandit/outreach-dispatch/internal/metrics"
	"github.com/unclebandit/outreach-dispatch/internal/model"
	"github.com/unclebandit/outreach-dispatch/internal/planner"
	"github.com/unclebandit/outreach-dispatch/internal/transport"
)

// GenericFailure is recorded for sends where the transport call itself failed.
const GenericFailure = "transport error"

// Ledger records the terminal state of delivery records.
type Ledger interface {
	MarkSent(ctx context.Context, key model.RecordKey, at time.Time) error
	MarkFailed(ctx context.Context, key model.RecordKey, errorMessage string) error
}

// Canceller reports an out-of-process cancel request for a campaign.
type Canceller interface {
	Cancelled(ctx context.Context, campaignID string) (bool, error)
}

type Dispatcher struct {
	transport   transport.Transport
	ledger      Ledger
	log         logger.Logger
	clock       Clock
	delays      Delays
	canceller   Canceller
	sendTimeout time.Duration
}

type Option func(*Dispatcher)

func WithClock(c Clock) Option { return func(d *Dispatcher) { d.clock = c } }

func WithDelays(dl Delays) Option { return func(d *Dispatcher) { d.delays = dl } }

func WithCanceller(c Canceller) Option { return func(d *Dispatcher) { d.canceller = c } }

func WithSendTimeout(t time.Duration) Option { return func(d *Dispatcher) { d.sendTimeout = t } }

func New(tr transport.Transport, ledger Ledger, log logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: tr,
		ledger:    ledger,
		log:       log,
		clock:     RealClock(),
		delays:    NewRandomDelays(DefaultTiming(), time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.NewNoOpLogger()
	}
	return d
}

// Dispatch runs every account loop of the plan and returns the reduced
// tallies once all of them have finished. Send failures never surface as an
// error; they are counted and written to the ledger.
//
// Cancelling ctx stops each loop before its next send. Recipients not yet
// attempted keep their pending records and the result is marked Cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID string, plan planner.Plan, text string) model.RunStats {
	type outcome struct {
		tally     model.AccountTally
		cancelled bool
	}
	results := make([]outcome, len(plan.Accounts))

	var g errgroup.Group
	for i, acc := range plan.Accounts {
		i, acc := i, acc
		contacts := plan.Assignments[acc.ID]
		results[i].tally = model.AccountTally{Assigned: len(contacts), Capacity: plan.Capacity[acc.ID]}
		if len(contacts) == 0 {
			continue
		}
		g.Go(func() error {
			tally, cancelled := d.runAccount(ctx, campaignID, acc, contacts, plan.Capacity[acc.ID], text)
			results[i].tally.Sent = tally.Sent
			results[i].tally.Delivered = tally.Delivered
			results[i].tally.Failed = tally.Failed
			results[i].cancelled = cancelled
			return nil
		})
	}
	_ = g.Wait()

	stats := model.RunStats{
		TotalPlanned: plan.TotalPlanned(),
		PerAccount:   make(map[string]model.AccountTally, len(plan.Accounts)),
	}
	for i, acc := range plan.Accounts {
		r := results[i]
		stats.PerAccount[acc.ID] = r.tally
		stats.TotalSent += r.tally.Sent
		stats.TotalDelivered += r.tally.Delivered
		stats.TotalFailed += r.tally.Failed
		stats.Cancelled = stats.Cancelled || r.cancelled
	}
	return stats
}

func (d *Dispatcher) runAccount(ctx context.Context, campaignID string, acc model.SenderAccount, contacts []model.Contact, capacity int, text string) (model.AccountTally, bool) {
	var tally model.AccountTally
	log := d.log.WithFields(map[string]interface{}{
		"campaign_id": campaignID,
		"account_id":  acc.ID,
	})

	limit := len(contacts)
	if capacity < limit {
		limit = capacity
	}
	log.Info("account loop started", map[string]interface{}{"recipients": limit})

	for i := 0; i < limit; i++ {
		contact := contacts[i]
		if d.cancelled(ctx, campaignID, log) {
			log.Info("account loop cancelled", map[string]interface{}{"attempted": i, "remaining": limit - i})
			return tally, true
		}
		if err := d.clock.Sleep(ctx, d.delays.Typing()); err != nil {
			log.Info("account loop cancelled", map[string]interface{}{"attempted": i, "remaining": limit - i})
			return tally, true
		}

		key := model.RecordKey{CampaignID: campaignID, ContactID: contact.ID, AccountID: acc.ID}
		res, err := d.send(ctx, acc, contact, RenderTemplate(text, contact.Placeholders()))
		if err != nil {
			tally.Failed++
			metrics.RecordMessage(false)
			terr := &appErrors.TransportError{AccountID: acc.ID, ContactID: contact.ID, Err: err}
			log.WithError(terr).Warn("send failed, cooling down", map[string]interface{}{"contact_id": contact.ID})
			d.markFailed(ctx, key, GenericFailure, log)

			// The cooldown stands in for pacing after a failed call.
			if err := d.clock.Sleep(ctx, d.delays.Cooldown()); err != nil {
				log.Info("account loop cancelled", map[string]interface{}{"attempted": i + 1, "remaining": limit - i - 1})
				return tally, true
			}
			continue
		}

		if res.OK() {
			tally.Sent++
			tally.Delivered++
			metrics.RecordMessage(true)
			d.markSent(ctx, key, log)
			log.Debug("message sent", map[string]interface{}{"contact_id": contact.ID})
		} else {
			tally.Failed++
			metrics.RecordMessage(false)
			d.markFailed(ctx, key, res.Reason(), log)
			log.Warn("message rejected", map[string]interface{}{"contact_id": contact.ID, "reason": res.Reason()})
		}

		if i < limit-1 {
			if err := d.clock.Sleep(ctx, d.delays.Pacing()); err != nil {
				log.Info("account loop cancelled", map[string]interface{}{"attempted": i + 1, "remaining": limit - i - 1})
				return tally, true
			}
		}
	}

	log.Info("account loop finished", map[string]interface{}{
		"sent":   tally.Sent,
		"failed": tally.Failed,
	})
	return tally, false
}

// send is not interrupted by cancellation of ctx; it is bounded only by the
// send timeout.
func (d *Dispatcher) send(ctx context.Context, acc model.SenderAccount, contact model.Contact, text string) (res transport.Result, err error) {
	sendCtx := context.WithoutCancel(ctx)
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(sendCtx, d.sendTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return d.transport.Send(sendCtx, acc, contact, text)
}

func (d *Dispatcher) cancelled(ctx context.Context, campaignID string, log logger.Logger) bool {
	if ctx.Err() != nil {
		return true
	}
	if d.canceller == nil {
		return false
	}
	stop, err := d.canceller.Cancelled(ctx, campaignID)
	if err != nil {
		log.WithError(err).Warn("cancel flag lookup failed", nil)
		return false
	}
	return stop
}

func (d *Dispatcher) markSent(ctx context.Context, key model.RecordKey, log logger.Logger) {
	if err := d.ledger.MarkSent(context.WithoutCancel(ctx), key, d.clock.Now()); err != nil {
		log.WithError(err).Error("failed to mark delivery sent", map[string]interface{}{"contact_id": key.ContactID})
	}
}

func (d *Dispatcher) markFailed(ctx context.Context, key model.RecordKey, msg string, log logger.Logger) {
	if err := d.ledger.MarkFailed(context.WithoutCancel(ctx), key, msg); err != nil {
		log.WithError(err).Error("failed to mark delivery failed", map[string]interface{}{"contact_id": key.ContactID})
	}
}
