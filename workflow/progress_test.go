package workflow

import (
	"math"
	"testing"

	"bitbucket.org/evmotors/fulfillment_backend/models"
)

func deliver(a *models.Allocation) *models.Allocation {
	a.Status = models.AllocationStatusDelivered
	return a
}

func TestComputeProgress_Empty(t *testing.T) {
	progress := ComputeProgress(1, nil)

	if progress.TotalBatches != 0 || progress.DeliveredBatches != 0 {
		t.Fatalf("unexpected batch counts: %+v", progress)
	}
	if progress.Percent != 0 {
		t.Fatalf("no batches should read 0%%, got %v", progress.Percent)
	}
}

func TestComputeProgress_BatchBasisPercent(t *testing.T) {
	allocations := []*models.Allocation{
		deliver(buildAllocation(1, 1, map[int]int{10: 6})),
		buildAllocation(2, 2, map[int]int{10: 1}),
		buildAllocation(3, 3, map[int]int{10: 1}),
	}

	progress := ComputeProgress(1, allocations)

	if progress.TotalBatches != 3 || progress.DeliveredBatches != 1 {
		t.Fatalf("unexpected batch counts: %+v", progress)
	}
	// percent follows batch count, not quantity, even when batch sizes
	// are lopsided
	if math.Abs(progress.Percent-100.0/3.0) > 1e-9 {
		t.Fatalf("expected one third, got %v", progress.Percent)
	}
	if progress.TotalQuantity != 8 || progress.DeliveredQuantity != 6 {
		t.Fatalf("unexpected quantity totals: %+v", progress)
	}
}

func TestComputeProgress_AllDelivered(t *testing.T) {
	allocations := []*models.Allocation{
		deliver(buildAllocation(1, 1, map[int]int{10: 2})),
		deliver(buildAllocation(2, 2, map[int]int{10: 3})),
	}

	progress := ComputeProgress(1, allocations)

	if progress.Percent != 100 {
		t.Fatalf("expected 100%%, got %v", progress.Percent)
	}
	if progress.DeliveredQuantity != 5 {
		t.Fatalf("expected 5 delivered units, got %d", progress.DeliveredQuantity)
	}
}

func TestComputeProgress_InTransitNotCounted(t *testing.T) {
	inTransit := buildAllocation(1, 1, map[int]int{10: 2})
	inTransit.Status = models.AllocationStatusInTransit

	progress := ComputeProgress(1, []*models.Allocation{inTransit})

	if progress.DeliveredBatches != 0 || progress.DeliveredQuantity != 0 {
		t.Fatalf("in transit batches must not count as delivered: %+v", progress)
	}
}
