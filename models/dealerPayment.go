package models

import (
	"context"
	"time"

	"bitbucket.org/evmotors/fulfillment_backend/config"
	"github.com/shopspring/decimal"
)

// DealerPayment is a deposit recorded against a request, attributed to one
// of its allocation batches. The payment itself is initiated through the
// external payment gateway; this ledger only consumes the resulting total.
type DealerPayment struct {
	ID           int             `gorm:"primary_key" json:"id"`
	RequestId    int             `gorm:"index;not null" json:"request_id" binding:"required"`
	AllocationId int             `gorm:"index;not null" json:"allocation_id" binding:"required"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount" binding:"required"`
	PaymentDate  time.Time       `gorm:"not null" json:"payment_date"`
	Reference    string          `gorm:"size:255;not null;unique" json:"reference"`
	Notes        string          `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDealerPayment struct {
	RequestId    int             `json:"request_id" binding:"required"`
	AllocationId int             `json:"allocation_id" binding:"required"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	PaymentDate  *time.Time      `json:"payment_date"`
	Reference    string          `json:"reference" binding:"required"`
	Notes        string          `json:"notes"`
}

func ListDealerPaymentsByRequest(ctx context.Context, requestId int) ([]*DealerPayment, error) {

	db := config.GetDB()
	var payments []*DealerPayment
	err := db.WithContext(ctx).
		Where("request_id = ?", requestId).
		Order("payment_date ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func GetDealerPaymentByReference(ctx context.Context, reference string) (*DealerPayment, error) {

	db := config.GetDB()
	var payment DealerPayment
	err := db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
