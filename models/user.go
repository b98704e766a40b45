package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/evmotors/fulfillment_backend/config"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Password  string    `gorm:"size:255;not null" json:"password"`
	Role      UserRole  `gorm:"size:20;not null;default:Staff" json:"role"`
	DealerId  int       `gorm:"index;default:0" json:"dealer_id"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string   `json:"username" binding:"required"`
	Name     string   `json:"name" binding:"required"`
	Password string   `json:"password" binding:"required"`
	Role     UserRole `json:"role"`
	DealerId int      `json:"dealer_id"`
}

type LoginInfo struct {
	Token    string   `json:"token"`
	Name     string   `json:"name"`
	Role     UserRole `json:"role"`
	DealerId int      `json:"dealer_id"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = UserRoleStaff
	}

	user := User{
		Username: input.Username,
		Name:     input.Name,
		Password: string(hashed),
		Role:     role,
		DealerId: input.DealerId,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}

	return &user, nil
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {

	db := config.GetDB()
	user := User{}

	// get User info, redis first
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if !exists {
		err = db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error
		if err != nil {
			return nil, errors.New("invalid username or password")
		}
	}

	// check login credentials
	err = utils.ComparePassword(user.Password, password)
	if err != nil && err == bcrypt.ErrMismatchedHashAndPassword {
		return nil, errors.New("invalid username or password")
	}

	if user.IsActive != nil && !*user.IsActive {
		return nil, errors.New("user is disabled")
	}

	token, err := utils.JwtGenerate(user.ID, string(user.Role), user.DealerId)
	if err != nil {
		return nil, err
	}

	if err := config.SetRedisObject("User:"+username, user, 30*time.Minute); err != nil {
		return nil, err
	}

	return &LoginInfo{
		Token:    token,
		Name:     user.Name,
		Role:     user.Role,
		DealerId: user.DealerId,
	}, nil
}
