package models_test

import (
	"testing"

	"bitbucket.org/evmotors/fulfillment_backend/models"
)

func TestAllocationStatusTransitions(t *testing.T) {
	cases := []struct {
		from    models.AllocationStatus
		to      models.AllocationStatus
		allowed bool
	}{
		{models.AllocationStatusPending, models.AllocationStatusInTransit, true},
		{models.AllocationStatusPending, models.AllocationStatusDelivered, true},
		{models.AllocationStatusInTransit, models.AllocationStatusDelivered, true},
		{models.AllocationStatusInTransit, models.AllocationStatusPending, false},
		{models.AllocationStatusDelivered, models.AllocationStatusPending, false},
		{models.AllocationStatusDelivered, models.AllocationStatusInTransit, false},
		{models.AllocationStatusDelivered, models.AllocationStatusDelivered, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", c.from, c.to, c.allowed, got)
		}
	}
}

func TestAllocationStatusTerminal(t *testing.T) {
	if models.AllocationStatusPending.IsTerminal() || models.AllocationStatusInTransit.IsTerminal() {
		t.Fatal("only DELIVERED is terminal")
	}
	if !models.AllocationStatusDelivered.IsTerminal() {
		t.Fatal("DELIVERED must be terminal")
	}
}

func TestParseAllocationStatus(t *testing.T) {
	status, err := models.ParseAllocationStatus("IN_TRANSIT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.AllocationStatusInTransit {
		t.Fatalf("expected IN_TRANSIT, got %s", status)
	}

	if _, err := models.ParseAllocationStatus("SHIPPED"); err == nil {
		t.Fatal("unknown status must be rejected")
	}
	if _, err := models.ParseAllocationStatus("delivered"); err == nil {
		t.Fatal("status values are case sensitive")
	}
}
