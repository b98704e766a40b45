package workflow

import (
	"bitbucket.org/evmotors/fulfillment_backend/models"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
)

// Remaining computes the open quantity of a variant on a request:
// requested quantity minus everything already committed across the
// request's allocations. When an allocation is being edited its own prior
// contribution is excluded, otherwise the check defeats itself.
//
// Pure: no side effects, never returns a negative value from valid state.
func Remaining(request *models.VehicleRequest, allocations []*models.Allocation, variantId int, excludeAllocationId int) int {
	remaining := request.RequestedQuantityOf(variantId)
	for _, allocation := range allocations {
		if allocation.ID == excludeAllocationId {
			continue
		}
		remaining -= allocation.QuantityOf(variantId)
	}
	if remaining < 0 {
		// allocations written before a requested quantity shrank; clamp
		// so a stale row cannot turn the ceiling negative
		remaining = 0
	}
	return remaining
}

// NextBatchNumber assigns the next delivery batch for a request scope:
// max of the existing batch numbers plus one, 1 when no batch exists yet.
// Contiguity is not required, only strict increase.
func NextBatchNumber(allocations []*models.Allocation) int {
	max := 0
	for _, allocation := range allocations {
		if allocation.DeliveryBatch > max {
			max = allocation.DeliveryBatch
		}
	}
	return max + 1
}

// batchNumberInUse reports a collision of a client-submitted batch number
// within the request scope, ignoring the allocation under edit.
func batchNumberInUse(allocations []*models.Allocation, deliveryBatch int, excludeAllocationId int) bool {
	for _, allocation := range allocations {
		if allocation.ID == excludeAllocationId {
			continue
		}
		if allocation.DeliveryBatch == deliveryBatch {
			return true
		}
	}
	return false
}

// validateAllocationItems runs the over-allocation check for every
// submitted item against the authoritative allocation set. Must be called
// inside the per-request lock before any write.
func validateAllocationItems(request *models.VehicleRequest, allocations []*models.Allocation, items []models.NewAllocationItem, excludeAllocationId int) error {

	seen := make(map[int]struct{}, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return utils.NewValidationError("quantity must be positive for variant %d", item.VariantId)
		}
		if _, dup := seen[item.VariantId]; dup {
			return utils.NewValidationError("variant %d appears more than once", item.VariantId)
		}
		seen[item.VariantId] = struct{}{}

		remaining := Remaining(request, allocations, item.VariantId, excludeAllocationId)
		if item.Quantity > remaining {
			return &utils.OverAllocationError{
				VariantId: item.VariantId,
				Requested: item.Quantity,
				Remaining: remaining,
			}
		}
	}
	return nil
}

// VariantRemaining is the per-variant open quantity view driving the
// allocation creation form.
type VariantRemaining struct {
	VariantId         int `json:"variant_id"`
	RequestedQuantity int `json:"requested_quantity"`
	AllocatedQuantity int `json:"allocated_quantity"`
	Remaining         int `json:"remaining"`
}

func RemainingByVariant(request *models.VehicleRequest, allocations []*models.Allocation) []VariantRemaining {
	results := make([]VariantRemaining, 0, len(request.Items))
	for _, item := range request.Items {
		remaining := Remaining(request, allocations, item.VariantId, 0)
		results = append(results, VariantRemaining{
			VariantId:         item.VariantId,
			RequestedQuantity: item.RequestedQuantity,
			AllocatedQuantity: item.RequestedQuantity - remaining,
			Remaining:         remaining,
		})
	}
	return results
}
