package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/evmotors/fulfillment_backend/config"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
)

type Dealer struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100" json:"email"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Address   string    `gorm:"type:text" json:"address"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDealer struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (input NewDealer) validate() error {
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return utils.NewValidationError("invalid email")
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return utils.NewValidationError("invalid phone number")
		}
	}
	return nil
}

func CreateDealer(ctx context.Context, input *NewDealer) (*Dealer, error) {

	if err := input.validate(); err != nil {
		return nil, err
	}

	dealer := Dealer{
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		Address:  input.Address,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&dealer).Error; err != nil {
		return nil, err
	}

	return &dealer, nil
}

func GetDealer(ctx context.Context, id int) (*Dealer, error) {
	dealer, err := utils.FetchSingleModel[Dealer](ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, &utils.NotFoundError{Resource: "dealer", Id: id}
		}
		return nil, err
	}
	return dealer, nil
}

func ListDealers(ctx context.Context) ([]*Dealer, error) {
	return utils.FetchModelsWhere[Dealer](ctx, "is_active = ?", true)
}
