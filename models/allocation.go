package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/evmotors/fulfillment_backend/config"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Allocation is one delivery batch issued against a vehicle request.
// Many allocations may exist per request; together their item quantities
// never exceed the request's requested quantities per variant.
type Allocation struct {
	ID                 int              `gorm:"primary_key" json:"id"`
	RequestId          int              `gorm:"not null;index:uniq_request_batch,unique" json:"request_id"`
	DealerId           int              `gorm:"index;not null" json:"dealer_id"`
	DeliveryBatch      int              `gorm:"not null;index:uniq_request_batch,unique" json:"delivery_batch"`
	DeliveryDate       time.Time        `gorm:"not null" json:"delivery_date"`
	ActualDeliveryDate *time.Time       `json:"actual_delivery_date"`
	Status             AllocationStatus `gorm:"size:20;not null;default:PENDING" json:"status"`
	PaidAmount         decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	Notes              string           `gorm:"type:text" json:"notes"`
	Items              []AllocationItem `json:"items"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type AllocationItem struct {
	ID           int       `gorm:"primary_key" json:"id"`
	AllocationId int       `gorm:"index;not null" json:"allocation_id"`
	VariantId    int       `gorm:"index;not null" json:"variant_id" binding:"required"`
	Quantity     int       `gorm:"not null" json:"quantity" binding:"required"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAllocation struct {
	RequestId     int                 `json:"request_id"`
	DealerId      int                 `json:"dealer_id"`
	DeliveryBatch int                 `json:"delivery_batch"`
	DeliveryDate  *time.Time          `json:"delivery_date" binding:"required"`
	Notes         string              `json:"notes"`
	Items         []NewAllocationItem `json:"items" binding:"required,dive"`
}

type NewAllocationItem struct {
	VariantId int `json:"variant_id" binding:"required"`
	Quantity  int `json:"quantity" binding:"required"`
}

func GetAllocation(ctx context.Context, id int) (*Allocation, error) {
	allocation, err := utils.FetchSingleModel[Allocation](ctx, id, "Items")
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, &utils.NotFoundError{Resource: "allocation", Id: id}
		}
		return nil, err
	}
	return allocation, nil
}

// ListAllocationsByRequest returns the request's batches ordered by batch number.
func ListAllocationsByRequest(ctx context.Context, requestId int) ([]*Allocation, error) {

	db := config.GetDB()
	var allocations []*Allocation
	err := db.WithContext(ctx).
		Preload("Items").
		Where("request_id = ?", requestId).
		Order("delivery_batch ASC").
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	return allocations, nil
}

// ListAllocationsByRequestTx is the authoritative read used inside the
// per-request lock; it must run on the locking transaction, never on a
// cached snapshot.
func ListAllocationsByRequestTx(tx *gorm.DB, requestId int) ([]*Allocation, error) {
	var allocations []*Allocation
	err := tx.
		Preload("Items").
		Where("request_id = ?", requestId).
		Order("delivery_batch ASC").
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	return allocations, nil
}

// QuantityOf returns the batch's quantity for a variant, zero when the
// batch does not ship that variant.
func (a *Allocation) QuantityOf(variantId int) int {
	for _, item := range a.Items {
		if item.VariantId == variantId {
			return item.Quantity
		}
	}
	return 0
}

func (a *Allocation) TotalQuantity() int {
	total := 0
	for _, item := range a.Items {
		total += item.Quantity
	}
	return total
}

// TotalPaidForRequest sums paid_amount across all allocations attributed
// to the request. The deposit gate compares it against 50% of the
// request's contract value.
func TotalPaidForRequest(tx *gorm.DB, requestId int) (decimal.Decimal, error) {
	var totalPaid decimal.NullDecimal
	err := tx.Model(&Allocation{}).
		Where("request_id = ?", requestId).
		Select("SUM(paid_amount)").
		Scan(&totalPaid).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !totalPaid.Valid {
		return decimal.Zero, nil
	}
	return totalPaid.Decimal, nil
}
