// internal/model/plan_preview.go
package model

// PlanPreview is the distribution a run would use right now.
type PlanPreview struct {
	CampaignID   string                  `json:"campaignId"`
	Recipients   int                     `json:"recipients"`
	TotalPlanned int                     `json:"totalPlanned"`
	Unassigned   int                     `json:"unassigned"`
	PerAccount   map[string]AccountTally `json:"perAccount"`
}
