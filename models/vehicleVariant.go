package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/evmotors/fulfillment_backend/config"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
	"github.com/shopspring/decimal"
)

// VehicleVariant is catalog reference data. The fulfillment core reads it
// for display names and for the retail price feeding the deposit gate;
// catalog management itself lives in another service.
type VehicleVariant struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ModelName   string          `gorm:"size:255;not null" json:"model_name" binding:"required"`
	VariantName string          `gorm:"size:255;not null" json:"variant_name" binding:"required"`
	Color       string          `gorm:"size:100" json:"color"`
	RetailPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"retail_price"`
	IsActive    *bool           `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVehicleVariant struct {
	ModelName   string          `json:"model_name" binding:"required"`
	VariantName string          `json:"variant_name" binding:"required"`
	Color       string          `json:"color"`
	RetailPrice decimal.Decimal `json:"retail_price"`
}

func CreateVehicleVariant(ctx context.Context, input *NewVehicleVariant) (*VehicleVariant, error) {

	if input.RetailPrice.IsNegative() {
		return nil, utils.NewValidationError("retail price must not be negative")
	}

	variant := VehicleVariant{
		ModelName:   input.ModelName,
		VariantName: input.VariantName,
		Color:       input.Color,
		RetailPrice: input.RetailPrice,
		IsActive:    utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&variant).Error; err != nil {
		return nil, err
	}

	return &variant, nil
}

func GetVehicleVariant(ctx context.Context, id int) (*VehicleVariant, error) {
	variant, err := utils.FetchSingleModel[VehicleVariant](ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, &utils.NotFoundError{Resource: "vehicle variant", Id: id}
		}
		return nil, err
	}
	return variant, nil
}

// GetVariantPrices returns the retail price per variant id for the given ids.
func GetVariantPrices(ctx context.Context, variantIds []int) (map[int]decimal.Decimal, error) {

	db := config.GetDB()
	var variants []VehicleVariant
	err := db.WithContext(ctx).
		Where("id IN ?", utils.UniqueSlice(variantIds)).
		Find(&variants).Error
	if err != nil {
		return nil, err
	}

	prices := make(map[int]decimal.Decimal, len(variants))
	for _, v := range variants {
		prices[v.ID] = v.RetailPrice
	}
	return prices, nil
}
