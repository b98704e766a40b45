package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/evmotors/fulfillment_backend/config"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
	"github.com/shopspring/decimal"
)

// VehicleRequest is a dealer's order for quantities of vehicle variants.
// Requests are raised and approved outside this service; the fulfillment
// core treats the requested quantities as an immutable ceiling.
type VehicleRequest struct {
	ID        int                  `gorm:"primary_key" json:"id"`
	DealerId  int                  `gorm:"index;not null" json:"dealer_id" binding:"required"`
	Status    VehicleRequestStatus `gorm:"size:20;not null;default:Draft" json:"status"`
	Notes     string               `gorm:"type:text" json:"notes"`
	Items     []VehicleRequestItem `json:"items"`
	CreatedAt time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

// VehicleRequestItem carries the requested quantity of one variant.
// A variant appears at most once per request.
type VehicleRequestItem struct {
	ID                int       `gorm:"primary_key" json:"id"`
	RequestId         int       `gorm:"not null;index:uniq_request_variant,unique" json:"request_id"`
	VariantId         int       `gorm:"not null;index:uniq_request_variant,unique" json:"variant_id" binding:"required"`
	RequestedQuantity int       `gorm:"not null" json:"requested_quantity"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVehicleRequest struct {
	DealerId int                     `json:"dealer_id" binding:"required"`
	Notes    string                  `json:"notes"`
	Items    []NewVehicleRequestItem `json:"items" binding:"required,dive"`
}

type NewVehicleRequestItem struct {
	VariantId         int `json:"variant_id" binding:"required"`
	RequestedQuantity int `json:"requested_quantity"`
}

func (input NewVehicleRequest) validate(ctx context.Context) error {

	if len(input.Items) == 0 {
		return utils.NewValidationError("at least one item is required")
	}

	seen := make(map[int]struct{}, len(input.Items))
	variantIds := make([]int, 0, len(input.Items))
	for _, item := range input.Items {
		if item.RequestedQuantity < 0 {
			return utils.NewValidationError("requested quantity must not be negative")
		}
		if _, dup := seen[item.VariantId]; dup {
			return utils.NewValidationError("variant %d appears more than once", item.VariantId)
		}
		seen[item.VariantId] = struct{}{}
		variantIds = append(variantIds, item.VariantId)
	}

	if err := utils.ValidateResourceId[Dealer](ctx, input.DealerId); err != nil {
		return &utils.NotFoundError{Resource: "dealer", Id: input.DealerId}
	}
	if err := utils.ValidateResourcesId[VehicleVariant](ctx, variantIds); err != nil {
		return utils.NewValidationError("unknown vehicle variant in items")
	}

	return nil
}

// CreateVehicleRequest exists for seeding and for the request-intake service;
// the fulfillment core itself never mutates a request once created.
func CreateVehicleRequest(ctx context.Context, input *NewVehicleRequest) (*VehicleRequest, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	request := VehicleRequest{
		DealerId: input.DealerId,
		Status:   VehicleRequestStatusApproved,
		Notes:    input.Notes,
	}
	for _, item := range input.Items {
		request.Items = append(request.Items, VehicleRequestItem{
			VariantId:         item.VariantId,
			RequestedQuantity: item.RequestedQuantity,
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&request).Error; err != nil {
		return nil, err
	}

	return &request, nil
}

func GetVehicleRequest(ctx context.Context, id int) (*VehicleRequest, error) {
	request, err := utils.FetchSingleModel[VehicleRequest](ctx, id, "Items")
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, &utils.NotFoundError{Resource: "vehicle request", Id: id}
		}
		return nil, err
	}
	return request, nil
}

// RequestedQuantityOf returns the ceiling for a variant, zero when the
// request does not carry that variant at all.
func (r *VehicleRequest) RequestedQuantityOf(variantId int) int {
	for _, item := range r.Items {
		if item.VariantId == variantId {
			return item.RequestedQuantity
		}
	}
	return 0
}

func (r *VehicleRequest) VariantIds() []int {
	ids := make([]int, 0, len(r.Items))
	for _, item := range r.Items {
		ids = append(ids, item.VariantId)
	}
	return ids
}

// TotalContractValue is the sum of requested quantity times unit retail
// price over the request's items. The deposit gate takes 50% of it.
func (r *VehicleRequest) TotalContractValue(prices map[int]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		price, ok := prices[item.VariantId]
		if !ok {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(item.RequestedQuantity))))
	}
	return total
}
