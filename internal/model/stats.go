// internal/model/stats.go
package model

// AccountTally is the per-sender breakdown of one run.
type AccountTally struct {
	Assigned  int `json:"assigned"`
	Capacity  int `json:"capacity"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// RunStats is the payload returned for a campaign run.
type RunStats struct {
	TotalPlanned   int                     `json:"totalPlanned"`
	TotalSent      int                     `json:"totalSent"`
	TotalDelivered int                     `json:"totalDelivered"`
	TotalFailed    int                     `json:"totalFailed"`
	PerAccount     map[string]AccountTally `json:"perAccount"`
	Cancelled      bool                    `json:"cancelled,omitempty"`
}
