// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/unclebandit/outreach-dispatch/internal/dispatch"
	appErrors "github.com/unclebandit/outreach-dispatch/internal/errors"
	"github.com/unclebandit/outreach-dispatch/internal/logger"
	"github.com/unclebandit/outreach-dispatch/internal/metrics"
	"github.com/unclebandit/outreach-dispatch/internal/model"
	"github.com/unclebandit/outreach-dispatch/internal/planner"
	"github.com/unclebandit/outreach-dispatch/internal/queue"
	"github.com/unclebandit/outreach-dispatch/internal/repository"
)

// Dispatcher executes a plan; *dispatch.Dispatcher is the production one.
type Dispatcher interface {
	Dispatch(ctx context.Context, campaignID string, plan planner.Plan, text string) model.RunStats
}

// CancelStore shares cancel requests between processes.
type CancelStore interface {
	Set(ctx context.Context, campaignID string) error
	Clear(ctx context.Context, campaignID string) error
}

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	AccountRepo  repository.AccountRepositoryInterface
	DeliveryRepo repository.DeliveryRepositoryInterface
	AuditRepo    repository.AuditRepositoryInterface // optional
	Dispatcher   Dispatcher
	Policy       planner.Policy
	Clock        dispatch.Clock // defaults to the wall clock
	Cancels      CancelStore    // optional
	Queue        queue.Queue    // needed by EnqueueRun only
	RunTopic     string
	Log          logger.Logger

	mu   sync.Mutex
	runs map[string]context.CancelFunc
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

func (s *CampaignService) clock() dispatch.Clock {
	if s.Clock == nil {
		return dispatch.RealClock()
	}
	return s.Clock
}

func (s *CampaignService) log() logger.Logger {
	if s.Log == nil {
		return logger.NewNoOpLogger()
	}
	return s.Log
}

func (s *CampaignService) policy() planner.Policy {
	if s.Policy == (planner.Policy{}) {
		return planner.DefaultPolicy()
	}
	return s.Policy
}

// RunCampaign executes a draft or scheduled campaign end to end and returns
// its tallies. Only the precondition errors (not found, invalid state, no
// recipients, no senders) are expected; individual send failures are
// counted, never returned. Store errors are returned wrapped.
func (s *CampaignService) RunCampaign(ctx context.Context, campaignID, userID string) (*model.RunStats, error) {
	log := s.log().WithFields(map[string]interface{}{"campaign_id": campaignID, "user_id": userID})

	campaign, contacts, accounts, err := s.load(ctx, campaignID, userID, true)
	if err != nil {
		if appErrors.IsPrecondition(err) {
			metrics.RecordRun(metrics.OutcomeRejected, -1)
		}
		return nil, err
	}

	// Registered before the claim so a cancel arriving as soon as the
	// campaign shows running always finds the run.
	runCtx, cancel := context.WithCancel(ctx)
	s.register(campaignID, cancel)
	defer s.unregister(campaignID)

	started := s.clock().Now()
	if err := s.CampaignRepo.ClaimForRun(ctx, campaignID, len(contacts), started); err != nil {
		return nil, err
	}
	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	plan := s.policy().Distribute(contacts, accounts, started)
	for _, acc := range plan.Accounts {
		log.Info("distribution planned", map[string]interface{}{
			"account_id": acc.ID,
			"assigned":   len(plan.Assignments[acc.ID]),
			"capacity":   plan.Capacity[acc.ID],
		})
	}
	log.Info("campaign run started", map[string]interface{}{
		"recipients": len(contacts),
		"accounts":   len(accounts),
		"planned":    plan.TotalPlanned(),
		"unassigned": len(plan.Unassigned),
	})

	if err := s.DeliveryRepo.CreatePending(ctx, campaignID, pendingKeys(campaignID, plan)); err != nil {
		return nil, fmt.Errorf("create pending records: %w", err)
	}

	stats := s.Dispatcher.Dispatch(runCtx, campaignID, plan, campaign.MessageContent)

	// Finalization must complete even when the run was cancelled.
	fctx := context.WithoutCancel(ctx)
	if err := s.finalize(fctx, campaign, accounts, plan, stats, log); err != nil {
		return &stats, err
	}

	outcome := metrics.OutcomeCompleted
	if stats.Cancelled {
		outcome = metrics.OutcomeCancelled
	}
	metrics.RecordRun(outcome, s.clock().Now().Sub(started).Seconds())

	fields := map[string]interface{}{
		"planned":   stats.TotalPlanned,
		"sent":      stats.TotalSent,
		"delivered": stats.TotalDelivered,
		"failed":    stats.TotalFailed,
		"cancelled": stats.Cancelled,
	}
	if stats.TotalFailed > 0 {
		log.Warn("campaign run finished with failures", fields)
	} else {
		log.Info("campaign run finished", fields)
	}
	return &stats, nil
}

// load runs the precondition checks in order. Recipients are checked before
// the sender store is read.
func (s *CampaignService) load(ctx context.Context, campaignID, userID string, forRun bool) (*model.Campaign, []model.Contact, []model.SenderAccount, error) {
	campaign, err := s.CampaignRepo.GetForOwner(ctx, campaignID, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	if forRun {
		if !campaign.Runnable() {
			return nil, nil, nil, appErrors.NewInvalidState(campaignID, campaign.Status)
		}
		if campaign.MessageContent == "" {
			return nil, nil, nil, fmt.Errorf("campaign has no message template: %w",
				appErrors.NewInvalidState(campaignID, campaign.Status))
		}
	}

	contacts, err := s.ContactRepo.ListActive(ctx, userID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load recipients: %w", err)
	}
	if len(contacts) == 0 {
		return nil, nil, nil, fmt.Errorf("campaign %s: %w", campaignID, appErrors.ErrNoRecipients)
	}

	accounts, err := s.AccountRepo.ListActive(ctx, userID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load sender accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, nil, nil, fmt.Errorf("campaign %s: %w", campaignID, appErrors.ErrNoSenders)
	}
	SortByLastActivity(accounts)
	return campaign, contacts, accounts, nil
}

func (s *CampaignService) finalize(ctx context.Context, campaign *model.Campaign, accounts []model.SenderAccount, plan planner.Plan, stats model.RunStats, log logger.Logger) error {
	now := s.clock().Now()
	for _, acc := range accounts {
		if err := s.AccountRepo.TouchLastActivity(ctx, acc.ID, now); err != nil {
			log.WithError(err).Warn("failed to update account activity", map[string]interface{}{"account_id": acc.ID})
		}
	}

	status := model.CampaignCompleted
	upd := model.CampaignUpdate{
		Status:         &status,
		SentCount:      &stats.TotalSent,
		DeliveredCount: &stats.TotalDelivered,
		FailedCount:    &stats.TotalFailed,
	}
	if stats.Cancelled {
		status = model.CampaignPaused
	} else {
		upd.CompletedAt = &now
	}
	if err := s.CampaignRepo.Update(ctx, campaign.ID, upd); err != nil {
		return fmt.Errorf("finalize campaign: %w", err)
	}

	if stats.Cancelled && s.Cancels != nil {
		if err := s.Cancels.Clear(ctx, campaign.ID); err != nil {
			log.WithError(err).Warn("failed to clear cancel flag", nil)
		}
	}
	s.audit(ctx, campaign, len(accounts), plan, stats, log)
	return nil
}

func (s *CampaignService) audit(ctx context.Context, campaign *model.Campaign, accountsUsed int, plan planner.Plan, stats model.RunStats, log logger.Logger) {
	if s.AuditRepo == nil {
		return
	}
	distribution := make(map[string]interface{}, len(plan.Accounts))
	for _, acc := range plan.Accounts {
		name := acc.Name
		if name == "" {
			name = acc.ID
		}
		distribution[name] = fmt.Sprintf("%d/%d", len(plan.Assignments[acc.ID]), plan.Capacity[acc.ID])
	}
	entry := &model.AuditEntry{
		UserID:    campaign.UserID,
		Action:    model.AuditCampaignProcessed,
		TableName: "campaigns",
		NewData: map[string]interface{}{
			"campaign_id":      campaign.ID,
			"total_recipients": plan.TotalPlanned() + len(plan.Unassigned),
			"planned_to_send":  stats.TotalPlanned,
			"sent_count":       stats.TotalSent,
			"delivered_count":  stats.TotalDelivered,
			"failed_count":     stats.TotalFailed,
			"accounts_used":    accountsUsed,
			"cancelled":        stats.Cancelled,
			"distribution":     distribution,
		},
	}
	if err := s.AuditRepo.Insert(ctx, entry); err != nil {
		log.WithError(err).Warn("failed to write audit log", nil)
	}
}

// PreviewPlan distributes the current recipients without writing anything.
func (s *CampaignService) PreviewPlan(ctx context.Context, campaignID, userID string) (*model.PlanPreview, error) {
	_, contacts, accounts, err := s.load(ctx, campaignID, userID, false)
	if err != nil {
		return nil, err
	}
	plan := s.policy().Distribute(contacts, accounts, s.clock().Now())
	return &model.PlanPreview{
		CampaignID:   campaignID,
		Recipients:   len(contacts),
		TotalPlanned: plan.TotalPlanned(),
		Unassigned:   len(plan.Unassigned),
		PerAccount:   plan.Tallies(),
	}, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID, userID string) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetForOwner(ctx, campaignID, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.DeliveryRepo.Stats(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

// CancelCampaign stops future sends of a running campaign, here or in
// whichever process is running it.
func (s *CampaignService) CancelCampaign(ctx context.Context, campaignID, userID string) error {
	campaign, err := s.CampaignRepo.GetForOwner(ctx, campaignID, userID)
	if err != nil {
		return err
	}
	if campaign.Status != model.CampaignRunning {
		return appErrors.NewInvalidState(campaignID, campaign.Status)
	}
	local := s.cancelLocal(campaignID)
	if local {
		s.log().Info("cancelled in-process run", map[string]interface{}{"campaign_id": campaignID})
	}
	if s.Cancels != nil {
		if err := s.Cancels.Set(ctx, campaignID); err != nil {
			if !local {
				return err
			}
			s.log().WithError(err).Warn("failed to set cancel flag", map[string]interface{}{"campaign_id": campaignID})
		}
	}
	return nil
}

// EnqueueRun checks that the campaign can run and publishes a run job.
// Recipient and sender checks happen when the job runs.
func (s *CampaignService) EnqueueRun(ctx context.Context, campaignID, userID string) (*model.RunJob, error) {
	campaign, err := s.CampaignRepo.GetForOwner(ctx, campaignID, userID)
	if err != nil {
		return nil, err
	}
	if !campaign.Runnable() {
		return nil, appErrors.NewInvalidState(campaignID, campaign.Status)
	}
	job := &model.RunJob{
		JobID:       uuid.NewString(),
		CampaignID:  campaignID,
		UserID:      userID,
		RequestedAt: s.clock().Now(),
	}
	if err := s.Queue.Publish(s.RunTopic, *job); err != nil {
		return nil, fmt.Errorf("enqueue run: %w", err)
	}
	s.log().Info("campaign run enqueued", map[string]interface{}{"campaign_id": campaignID, "job_id": job.JobID})
	return job, nil
}

func (s *CampaignService) register(campaignID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		s.runs = map[string]context.CancelFunc{}
	}
	s.runs[campaignID] = cancel
}

func (s *CampaignService) unregister(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.runs[campaignID]; ok {
		cancel()
		delete(s.runs, campaignID)
	}
}

func (s *CampaignService) cancelLocal(campaignID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.runs[campaignID]
	if ok {
		cancel()
	}
	return ok
}

// SortByLastActivity orders accounts least recently active first, never
// used accounts before all others. The sort is stable.
func SortByLastActivity(accounts []model.SenderAccount) {
	sort.SliceStable(accounts, func(i, j int) bool {
		a, b := accounts[i].LastActivity, accounts[j].LastActivity
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
}

func pendingKeys(campaignID string, plan planner.Plan) []model.RecordKey {
	keys := make([]model.RecordKey, 0, plan.TotalPlanned())
	for _, acc := range plan.Accounts {
		for _, c := range plan.Assignments[acc.ID] {
			keys = append(keys, model.RecordKey{CampaignID: campaignID, ContactID: c.ID, AccountID: acc.ID})
		}
	}
	return keys
}

var _ Dispatcher = (*dispatch.Dispatcher)(nil)
