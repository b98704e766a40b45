package workflow

import (
	"context"
	"time"

	"bitbucket.org/evmotors/fulfillment_backend/config"
	"bitbucket.org/evmotors/fulfillment_backend/models"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// The deposit threshold is half of the owning request's total contract
// value. The basis is per-request, not per-batch: dealers pay the
// deposit on the order as a whole, and any of its batches may be
// received once the order-level deposit clears.
var depositRate = decimal.NewFromFloat(0.5)

type ReceiptDecision struct {
	Allowed        bool            `json:"allowed"`
	RequiredAmount decimal.Decimal `json:"required_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
}

func evaluateReceiptGate(tx *gorm.DB, ctx context.Context, requestId int) (*ReceiptDecision, error) {

	request, err := fetchRequestTx(tx, requestId)
	if err != nil {
		return nil, err
	}

	prices, err := models.GetVariantPrices(ctx, request.VariantIds())
	if err != nil {
		return nil, err
	}

	required := request.TotalContractValue(prices).Mul(depositRate)

	paid, err := models.TotalPaidForRequest(tx, requestId)
	if err != nil {
		return nil, err
	}

	return &ReceiptDecision{
		Allowed:        paid.GreaterThanOrEqual(required),
		RequiredAmount: required,
		PaidAmount:     paid,
	}, nil
}

// CanConfirmReceipt reports whether receipt of the request's batches may
// be confirmed, with the amounts behind the decision so the caller can
// show the shortfall. Read-only; the confirm path re-evaluates on its own
// transaction and never trusts this result.
func CanConfirmReceipt(ctx context.Context, requestId int) (*ReceiptDecision, error) {
	db := config.GetDB()
	return evaluateReceiptGate(db.WithContext(ctx), ctx, requestId)
}

// ConfirmReceipt transitions an allocation to DELIVERED once the deposit
// gate passes, stamping the actual delivery date. Confirming an already
// delivered allocation is an idempotent no-op: a network retry after a
// timeout must not double-stamp or fail.
func ConfirmReceipt(ctx context.Context, allocationId int) (*models.Allocation, error) {

	existing, err := models.GetAllocation(ctx, allocationId)
	if err != nil {
		return nil, err
	}
	if existing.Status.IsTerminal() {
		return existing, nil
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
		// lost the race with another confirm; nothing left to do
		if allocation.Status.IsTerminal() {
			return nil
		}

		decision, err := evaluateReceiptGate(tx, ctx, requestId)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return &utils.DepositNotMetError{
				RequestId:      requestId,
				RequiredAmount: decision.RequiredAmount,
				PaidAmount:     decision.PaidAmount,
			}
		}

		now := time.Now().UTC()
		return tx.Model(&models.Allocation{}).
			Where("id = ?", allocationId).
			Updates(map[string]interface{}{
				"status":               models.AllocationStatusDelivered,
				"actual_delivery_date": &now,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	invalidateProgressCache(requestId)
	return models.GetAllocation(ctx, allocationId)
}
