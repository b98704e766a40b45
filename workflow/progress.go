package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/evmotors/fulfillment_backend/config"
	"bitbucket.org/evmotors/fulfillment_backend/models"
)

// RequestProgress aggregates delivery progress for one request. Percent
// is on the batch-count basis; quantity totals are exposed alongside it
// because the two ratios diverge when batch sizes are uneven.
type RequestProgress struct {
	RequestId         int     `json:"request_id"`
	TotalBatches      int     `json:"total_batches"`
	DeliveredBatches  int     `json:"delivered_batches"`
	TotalQuantity     int     `json:"total_quantity"`
	DeliveredQuantity int     `json:"delivered_quantity"`
	Percent           float64 `json:"percent"`
}

// ComputeProgress is pure; it derives the aggregate from whatever
// allocation set the caller hands it.
func ComputeProgress(requestId int, allocations []*models.Allocation) RequestProgress {
	progress := RequestProgress{RequestId: requestId}
	for _, allocation := range allocations {
		progress.TotalBatches++
		progress.TotalQuantity += allocation.TotalQuantity()
		if allocation.Status == models.AllocationStatusDelivered {
			progress.DeliveredBatches++
			progress.DeliveredQuantity += allocation.TotalQuantity()
		}
	}
	if progress.TotalBatches > 0 {
		progress.Percent = float64(progress.DeliveredBatches) / float64(progress.TotalBatches) * 100
	}
	return progress
}

// GetRequestProgress serves the aggregate from a short-lived Redis
// snapshot when available. Staleness is fine for display; mutating
// operations never read this cache and invalidate it on commit.
func GetRequestProgress(ctx context.Context, requestId int) (*RequestProgress, error) {

	cacheKey := fmt.Sprintf("RequestProgress:%d", requestId)

	if !config.ProgressCacheDisabled() {
		var cached RequestProgress
		exists, err := config.GetRedisObject(cacheKey, &cached)
		if err == nil && exists {
			return &cached, nil
		}
	}

	if _, err := models.GetVehicleRequest(ctx, requestId); err != nil {
		return nil, err
	}

	allocations, err := models.ListAllocationsByRequest(ctx, requestId)
	if err != nil {
		return nil, err
	}

	progress := ComputeProgress(requestId, allocations)
	_ = config.SetRedisObject(cacheKey, progress, 5*time.Minute)

	return &progress, nil
}

// GetRemainingByVariant is the read-side per-variant view; like progress
// it may be stale for display and is re-derived authoritatively inside
// the lock at write time.
func GetRemainingByVariant(ctx context.Context, requestId int) ([]VariantRemaining, error) {

	request, err := models.GetVehicleRequest(ctx, requestId)
	if err != nil {
		return nil, err
	}

	allocations, err := models.ListAllocationsByRequest(ctx, requestId)
	if err != nil {
		return nil, err
	}

	return RemainingByVariant(request, allocations), nil
}
