package workflow

import (
	"context"
	"time"

	"bitbucket.org/evmotors/fulfillment_backend/config"
	"bitbucket.org/evmotors/fulfillment_backend/models"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
	"gorm.io/gorm"
)

const recordPaymentHandler = "RecordDealerPayment"

// RecordDealerPayment consumes the result of an externally-initiated
// deposit payment: it appends a ledger row and raises the attributed
// allocation's paid_amount. The gateway retries its callback, so the
// operation is idempotent on the payment reference.
func RecordDealerPayment(ctx context.Context, input *models.NewDealerPayment) (*models.DealerPayment, error) {

	logger := config.GetLogger()

	if !input.Amount.IsPositive() {
		return nil, utils.NewValidationError("payment amount must be positive")
	}
	if input.Reference == "" {
		return nil, utils.NewValidationError("payment reference is required")
	}

	allocation, err := models.GetAllocation(ctx, input.AllocationId)
	if err != nil {
		return nil, err
	}
	if allocation.RequestId != input.RequestId {
		return nil, utils.NewValidationError("allocation %d does not belong to request %d", input.AllocationId, input.RequestId)
	}

	paymentDate := time.Now().UTC()
	if input.PaymentDate != nil {
		paymentDate = *input.PaymentDate
	}

	var payment models.DealerPayment
	var skipped bool

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireRequestFulfillmentLock(tx, input.RequestId); err != nil {
			return err
		}
		defer ReleaseRequestFulfillmentLock(tx, input.RequestId)

		skip, err := BeginIdempotency(tx, recordPaymentHandler, input.Reference)
		if err != nil {
			return err
		}
		if skip {
			skipped = true
			return nil
		}

		payment = models.DealerPayment{
			RequestId:    input.RequestId,
			AllocationId: input.AllocationId,
			Amount:       input.Amount,
			PaymentDate:  paymentDate,
			Reference:    input.Reference,
			Notes:        input.Notes,
		}
		if err := tx.Create(&payment).Error; err != nil {
			config.LogError(logger, "payment.go", "RecordDealerPayment", "tx.Create", input, err)
			return err
		}

		err = tx.Model(&models.Allocation{}).
			Where("id = ?", input.AllocationId).
			Update("paid_amount", gorm.Expr("paid_amount + ?", input.Amount)).Error
		if err != nil {
			return err
		}

		return MarkIdempotencySucceeded(tx, recordPaymentHandler, input.Reference)
	})
	if err != nil {
		return nil, err
	}

	if skipped {
		return models.GetDealerPaymentByReference(ctx, input.Reference)
	}
	return &payment, nil
}
