// Package planner assigns campaign recipients to sender accounts.
//
// Distribution is round-robin over the accounts in the order given, skipping
// accounts whose capacity is used up. Capacity depends on how recently an
// account was active: accounts idle for longer than the warm window (or never
// used) are throttled to a lower capacity.
package planner

import (
	"time"

	"github.com/unclebandit/outreach-dispatch/internal/model"
)

const (
	DefaultColdCapacity = 10
	DefaultWarmCapacity = 50
	DefaultWarmWindow   = 7 * 24 * time.Hour
)

type Policy struct {
	ColdCapacity int
	WarmCapacity int
	WarmWindow   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		ColdCapacity: DefaultColdCapacity,
		WarmCapacity: DefaultWarmCapacity,
		WarmWindow:   DefaultWarmWindow,
	}
}

// Cold reports whether the account has no activity inside the warm window.
func (p Policy) Cold(acc model.SenderAccount, now time.Time) bool {
	if acc.LastActivity == nil {
		return true
	}
	return acc.LastActivity.Before(now.Add(-p.WarmWindow))
}

func (p Policy) CapacityFor(acc model.SenderAccount, now time.Time) int {
	if p.Cold(acc, now) {
		return p.ColdCapacity
	}
	return p.WarmCapacity
}

// CapacityFor applies the default policy.
func CapacityFor(acc model.SenderAccount, now time.Time) int {
	return DefaultPolicy().CapacityFor(acc, now)
}

// Plan is the outcome of one distribution. Accounts keeps the input order.
type Plan struct {
	Accounts    []model.SenderAccount
	Assignments map[string][]model.Contact
	Capacity    map[string]int
	Unassigned  []model.Contact
}

func (p Plan) TotalPlanned() int {
	n := 0
	for _, contacts := range p.Assignments {
		n += len(contacts)
	}
	return n
}

// Tallies returns the assigned/capacity table with zero send counters.
func (p Plan) Tallies() map[string]model.AccountTally {
	out := make(map[string]model.AccountTally, len(p.Accounts))
	for _, acc := range p.Accounts {
		out[acc.ID] = model.AccountTally{
			Assigned: len(p.Assignments[acc.ID]),
			Capacity: p.Capacity[acc.ID],
		}
	}
	return out
}

// Distribute builds a Plan. It stops at the first contact no account can
// take; that contact and every later one end up in Unassigned.
func (p Policy) Distribute(contacts []model.Contact, accounts []model.SenderAccount, now time.Time) Plan {
	plan := Plan{
		Accounts:    accounts,
		Assignments: make(map[string][]model.Contact, len(accounts)),
		Capacity:    make(map[string]int, len(accounts)),
	}
	for _, acc := range accounts {
		plan.Capacity[acc.ID] = p.CapacityFor(acc, now)
	}
	if len(accounts) == 0 {
		plan.Unassigned = contacts
		return plan
	}

	cursor := 0
	for i, contact := range contacts {
		assigned := false
		for attempts := 0; attempts < len(accounts); attempts++ {
			acc := accounts[cursor]
			cursor = (cursor + 1) % len(accounts)
			if len(plan.Assignments[acc.ID]) < plan.Capacity[acc.ID] {
				plan.Assignments[acc.ID] = append(plan.Assignments[acc.ID], contact)
				assigned = true
				break
			}
		}
		if !assigned {
			plan.Unassigned = contacts[i:]
			break
		}
	}
	return plan
}

// Distribute applies the default policy.
func Distribute(contacts []model.Contact, accounts []model.SenderAccount, now time.Time) Plan {
	return DefaultPolicy().Distribute(contacts, accounts, now)
}
