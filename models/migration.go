package models

import (
	"log"

	"bitbucket.org/evmotors/fulfillment_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Dealer{}, &VehicleVariant{},
		&VehicleRequest{}, &VehicleRequestItem{},
		&Allocation{}, &AllocationItem{},
		&DealerPayment{},
		&User{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
