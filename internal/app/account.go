package app

import (
	"fmt"
	"time"

	"go.aimuz.me/voxtype/config"
	"go.aimuz.me/voxtype/entitlement"
)

// accountGate is the part of the entitlement manager an account refresh updates.
type accountGate interface {
	SetPlan(p entitlement.Plan) error
	MarkValidated(t time.Time) error
	SyncFreeUsage(server int) error
}

func parsePlan(plan string) entitlement.Plan {
	if entitlement.Plan(plan) == entitlement.PlanPro {
		return entitlement.PlanPro
	}
	return entitlement.PlanFree
}

// refreshAccount applies what the account service reported: the plan, the
// time it validated the account and its free usage count. serverFree < 0
// skips the usage sync.
func refreshAccount(cfg *config.Config, gate accountGate, plan string, serverFree int, validatedAt time.Time) error {
	p := parsePlan(plan)
	if err := gate.SetPlan(p); err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	if err := gate.MarkValidated(validatedAt); err != nil {
		return fmt.Errorf("mark validated: %w", err)
	}
	if serverFree >= 0 {
		if err := gate.SyncFreeUsage(serverFree); err != nil {
			return fmt.Errorf("sync free usage: %w", err)
		}
	}
	cfg.Account.Plan = string(p)
	cfg.Account.LastValidatedAt = validatedAt
	return cfg.Save()
}
