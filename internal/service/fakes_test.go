package service

import (
	"context"
	"sync"
	"time"

	appErrors "github.com/unclebandit/outreach-dispatch/internal/errors"
	"github.com/unclebandit/outreach-dispatch/internal/model"
)

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	writes    int
	onClaim   func()
}

func newFakeCampaignRepo(cs ...model.Campaign) *fakeCampaignRepo {
	r := &fakeCampaignRepo{campaigns: map[string]*model.Campaign{}}
	for i := range cs {
		c := cs[i]
		r.campaigns[c.ID] = &c
	}
	return r
}

func (r *fakeCampaignRepo) GetForOwner(_ context.Context, id, userID string) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.UserID != userID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) Update(_ context.Context, id string, upd model.CampaignUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	if upd.TotalRecipients != nil {
		c.TotalRecipients = *upd.TotalRecipients
	}
	if upd.SentCount != nil {
		c.SentCount = *upd.SentCount
	}
	if upd.DeliveredCount != nil {
		c.DeliveredCount = *upd.DeliveredCount
	}
	if upd.FailedCount != nil {
		c.FailedCount = *upd.FailedCount
	}
	if upd.StartedAt != nil {
		c.StartedAt = upd.StartedAt
	}
	if upd.CompletedAt != nil {
		c.CompletedAt = upd.CompletedAt
	}
	return nil
}

func (r *fakeCampaignRepo) ClaimForRun(_ context.Context, id string, total int, at time.Time) error {
	r.mu.Lock()
	r.writes++
	c := r.campaigns[id]
	if !c.Runnable() {
		r.mu.Unlock()
		return appErrors.NewInvalidState(id, c.Status)
	}
	c.Status = model.CampaignRunning
	c.TotalRecipients = total
	c.StartedAt = &at
	hook := r.onClaim
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (r *fakeCampaignRepo) get(id string) model.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.campaigns[id]
}

func (r *fakeCampaignRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

type fakeContactRepo struct {
	contacts []model.Contact
	calls    int
}

func (r *fakeContactRepo) ListActive(context.Context, string) ([]model.Contact, error) {
	r.calls++
	return append([]model.Contact(nil), r.contacts...), nil
}

type fakeAccountRepo struct {
	mu        sync.Mutex
	accounts  []model.SenderAccount
	listCalls int
	touched   map[string]time.Time
}

func (r *fakeAccountRepo) ListActive(context.Context, string) ([]model.SenderAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	return append([]model.SenderAccount(nil), r.accounts...), nil
}

func (r *fakeAccountRepo) TouchLastActivity(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.touched == nil {
		r.touched = map[string]time.Time{}
	}
	r.touched[id] = at
	return nil
}

// fakeDeliveryRepo doubles as the dispatcher ledger.
type fakeDeliveryRepo struct {
	mu          sync.Mutex
	records     map[model.RecordKey]string
	createCalls int
	duplicates  int
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{records: map[model.RecordKey]string{}}
}

func (r *fakeDeliveryRepo) CreatePending(_ context.Context, _ string, keys []model.RecordKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	for _, k := range keys {
		if _, ok := r.records[k]; ok {
			r.duplicates++
			continue
		}
		r.records[k] = model.DeliveryPending
	}
	return nil
}

func (r *fakeDeliveryRepo) MarkSent(_ context.Context, key model.RecordKey, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records[key] == model.DeliveryPending {
		r.records[key] = model.DeliverySent
	}
	return nil
}

func (r *fakeDeliveryRepo) MarkFailed(_ context.Context, key model.RecordKey, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records[key] == model.DeliveryPending {
		r.records[key] = model.DeliveryFailed
	}
	return nil
}

func (r *fakeDeliveryRepo) Stats(_ context.Context, campaignID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{model.DeliveryPending: 0, model.DeliverySent: 0, model.DeliveryFailed: 0, "total": 0}
	for k, status := range r.records {
		if k.CampaignID != campaignID {
			continue
		}
		stats[status]++
		stats["total"]++
	}
	return stats, nil
}

func (r *fakeDeliveryRepo) countByStatus() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int{}
	for _, s := range r.records {
		out[s]++
	}
	return out
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*model.AuditEntry
}

func (r *fakeAuditRepo) Insert(_ context.Context, e *model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

type fakeCancels struct {
	mu      sync.Mutex
	set     map[string]bool
	cleared []string
	err     error
}

func (f *fakeCancels) Set(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.set == nil {
		f.set = map[string]bool{}
	}
	f.set[id] = true
	return nil
}

func (f *fakeCancels) Clear(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.set, id)
	f.cleared = append(f.cleared, id)
	return nil
}

// instantClock never waits; a cancelled context still interrupts Sleep.
type instantClock struct{ now time.Time }

func (c instantClock) Now() time.Time { return c.now }

func (c instantClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }
