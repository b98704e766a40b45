package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/evmotors/fulfillment_backend/config"
	"bitbucket.org/evmotors/fulfillment_backend/models"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func validateNewAllocation(input *models.NewAllocation) error {
	if input.DeliveryDate == nil || input.DeliveryDate.IsZero() {
		return utils.NewValidationError("delivery date is required")
	}
	if len(input.Items) == 0 {
		return utils.NewValidationError("at least one item is required")
	}
	if input.DeliveryBatch < 0 {
		return utils.NewValidationError("delivery batch must be positive")
	}
	return nil
}

// fetchRequestTx loads the request and its items on the locking transaction.
func fetchRequestTx(tx *gorm.DB, requestId int) (*models.VehicleRequest, error) {
	var request models.VehicleRequest
	err := tx.Preload("Items").First(&request, requestId).Error
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "vehicle request", Id: requestId}
	}
	return &request, nil
}

func fetchAllocationTx(tx *gorm.DB, allocationId int) (*models.Allocation, error) {
	var allocation models.Allocation
	err := tx.Preload("Items").First(&allocation, allocationId).Error
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "allocation", Id: allocationId}
	}
	return &allocation, nil
}

func invalidateProgressCache(requestId int) {
	_ = config.RemoveRedisKey(fmt.Sprintf("RequestProgress:%d", requestId))
}

// CreateAllocation creates a new delivery batch against a request.
// The over-allocation and batch-number checks run against the
// authoritative allocation rows inside the per-request lock, so two
// writers racing for the last units cannot both win.
func CreateAllocation(ctx context.Context, input *models.NewAllocation) (*models.Allocation, error) {

	logger := config.GetLogger()

	if input.RequestId <= 0 {
		return nil, utils.NewValidationError("request id is required")
	}
	if err := validateNewAllocation(input); err != nil {
		return nil, err
	}

	// Redis lock is a best-effort optimization; the MySQL advisory lock
	// below stays authoritative even when Redis is down.
	redisLock := obtainRedisRequestLock(ctx, input.RequestId)
	defer releaseRedisRequestLock(ctx, redisLock)

	var allocation models.Allocation

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireRequestFulfillmentLock(tx, input.RequestId); err != nil {
			return err
		}
		defer ReleaseRequestFulfillmentLock(tx, input.RequestId)

		request, err := fetchRequestTx(tx, input.RequestId)
		if err != nil {
			return err
		}

		allocations, err := models.ListAllocationsByRequestTx(tx, input.RequestId)
		if err != nil {
			return err
		}

		deliveryBatch := input.DeliveryBatch
		if deliveryBatch == 0 {
			deliveryBatch = NextBatchNumber(allocations)
		} else if batchNumberInUse(allocations, deliveryBatch, 0) {
			return &utils.DuplicateBatchError{RequestId: input.RequestId, DeliveryBatch: deliveryBatch}
		}

		if err := validateAllocationItems(request, allocations, input.Items, 0); err != nil {
			return err
		}

		dealerId := input.DealerId
		if dealerId == 0 {
			dealerId = request.DealerId
		}

		allocation = models.Allocation{
			RequestId:     input.RequestId,
			DealerId:      dealerId,
			DeliveryBatch: deliveryBatch,
			DeliveryDate:  *input.DeliveryDate,
			Status:        models.AllocationStatusPending,
			PaidAmount:    decimal.Zero,
			Notes:         input.Notes,
		}
		for _, item := range input.Items {
			allocation.Items = append(allocation.Items, models.AllocationItem{
				VariantId: item.VariantId,
				Quantity:  item.Quantity,
			})
		}

		if err := tx.Create(&allocation).Error; err != nil {
			// unique (request_id, delivery_batch) backs the in-memory check
			if isDuplicateKeyErr(err) {
				return &utils.DuplicateBatchError{RequestId: input.RequestId, DeliveryBatch: deliveryBatch}
			}
			config.LogError(logger, "allocation.go", "CreateAllocation", "tx.Create", input, err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidateProgressCache(input.RequestId)
	return &allocation, nil
}

// UpdateAllocation edits a batch's number, date, notes and items while it
// is not yet delivered. Remaining is recomputed with the target
// allocation's own prior contribution excluded from the ceiling sum.
func UpdateAllocation(ctx context.Context, allocationId int, input *models.NewAllocation) (*models.Allocation, error) {

	logger := config.GetLogger()

	if err := validateNewAllocation(input); err != nil {
		return nil, err
	}

	existing, err := models.GetAllocation(ctx, allocationId)
	if err != nil {
		return nil, err
	}
	requestId := existing.RequestId

	redisLock := obtainRedisRequestLock(ctx, requestId)
	defer releaseRedisRequestLock(ctx, redisLock)

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireRequestFulfillmentLock(tx, requestId); err != nil {
			return err
		}
		defer ReleaseRequestFulfillmentLock(tx, requestId)

		// re-fetch inside the lock; another writer may have confirmed it
		allocation, err := fetchAllocationTx(tx, allocationId)
		if err != nil {
			return err
		}
		if allocation.Status.IsTerminal() {
			return &utils.InvalidStateError{Message: "delivered allocation is read-only"}
		}

		request, err := fetchRequestTx(tx, requestId)
		if err != nil {
			return err
		}

		allocations, err := models.ListAllocationsByRequestTx(tx, requestId)
		if err != nil {
			return err
		}

		deliveryBatch := input.DeliveryBatch
		if deliveryBatch == 0 {
			deliveryBatch = allocation.DeliveryBatch
		} else if batchNumberInUse(allocations, deliveryBatch, allocationId) {
			return &utils.DuplicateBatchError{RequestId: requestId, DeliveryBatch: deliveryBatch}
		}

		if err := validateAllocationItems(request, allocations, input.Items, allocationId); err != nil {
			return err
		}

		// replace items wholesale; partial item edits are not a thing
		if err := tx.Where("allocation_id = ?", allocationId).Delete(&models.AllocationItem{}).Error; err != nil {
			return err
		}
		newItems := make([]models.AllocationItem, 0, len(input.Items))
		for _, item := range input.Items {
			newItems = append(newItems, models.AllocationItem{
				AllocationId: allocationId,
				VariantId:    item.VariantId,
				Quantity:     item.Quantity,
			})
		}
		if err := tx.Create(&newItems).Error; err != nil {
			return err
		}

		allocation.DeliveryBatch = deliveryBatch
		allocation.DeliveryDate = *input.DeliveryDate
		allocation.Notes = input.Notes
		allocation.Items = nil
		if err := tx.Save(allocation).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return &utils.DuplicateBatchError{RequestId: requestId, DeliveryBatch: deliveryBatch}
			}
			config.LogError(logger, "allocation.go", "UpdateAllocation", "tx.Save", input, err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidateProgressCache(requestId)
	return models.GetAllocation(ctx, allocationId)
}

// DeleteAllocation removes a not-yet-delivered batch. Its quantity flows
// back into remaining implicitly: the next calculation simply no longer
// sees the deleted rows.
func DeleteAllocation(ctx context.Context, allocationId int) error {

	existing, err := models.GetAllocation(ctx, allocationId)
	if err != nil {
		return err
	}
	requestId := existing.RequestId

	redisLock := obtainRedisRequestLock(ctx, requestId)
	defer releaseRedisRequestLock(ctx, redisLock)

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireRequestFulfillmentLock(tx, requestId); err != nil {
			return err
		}
		defer ReleaseRequestFulfillmentLock(tx, requestId)

		allocation, err := fetchAllocationTx(tx, allocationId)
		if err != nil {
			return err
		}
		if allocation.Status.IsTerminal() {
			return &utils.InvalidStateError{Message: "delivered allocation cannot be deleted"}
		}

		if err := tx.Where("allocation_id = ?", allocationId).Delete(&models.AllocationItem{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Allocation{}, allocationId).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	invalidateProgressCache(requestId)
	return nil
}

// MarkAllocationInTransit records an externally-observed logistics fact.
// Nothing in this service triggers the transition on its own; the
// logistics subsystem asserts it through this call.
func MarkAllocationInTransit(ctx context.Context, allocationId int) (*models.Allocation, error) {

	existing, err := models.GetAllocation(ctx, allocationId)
	if err != nil {
		return nil, err
	}
	requestId := existing.RequestId

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireRequestFulfillmentLock(tx, requestId); err != nil {
			return err
		}
		defer ReleaseRequestFulfillmentLock(tx, requestId)

		allocation, err := fetchAllocationTx(tx, allocationId)
		if err != nil {
			return err
		}
		if !allocation.Status.CanTransitionTo(models.AllocationStatusInTransit) {
			return &utils.InvalidStateError{
				Message: fmt.Sprintf("cannot mark %s allocation in transit", allocation.Status),
			}
		}

		return tx.Model(&models.Allocation{}).
			Where("id = ?", allocationId).
			Update("status", models.AllocationStatusInTransit).Error
	})
	if err != nil {
		return nil, err
	}

	invalidateProgressCache(requestId)
	return models.GetAllocation(ctx, allocationId)
}
