// seed-dev loads a small development dataset: a dealer, a few vehicle
// variants and an approved request, so the allocation endpoints have
// something to work against right after a fresh migration.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/evmotors/fulfillment_backend/config"
	"bitbucket.org/evmotors/fulfillment_backend/models"
	"github.com/shopspring/decimal"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	dealer, err := models.CreateDealer(ctx, &models.NewDealer{
		Name:  "Saigon EV Motors",
		Email: "sales@saigonev.example",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create dealer: %v\n", err)
		os.Exit(1)
	}

	variants := []models.NewVehicleVariant{
		{ModelName: "Volt S", VariantName: "Standard Range", Color: "White", RetailPrice: decimal.NewFromInt(1_000_000)},
		{ModelName: "Volt S", VariantName: "Long Range", Color: "Black", RetailPrice: decimal.NewFromInt(1_250_000)},
		{ModelName: "Volt X", VariantName: "Performance", Color: "Red", RetailPrice: decimal.NewFromInt(1_600_000)},
	}
	variantIds := make([]int, 0, len(variants))
	for i := range variants {
		v, err := models.CreateVehicleVariant(ctx, &variants[i])
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create variant: %v\n", err)
			os.Exit(1)
		}
		variantIds = append(variantIds, v.ID)
	}

	request, err := models.CreateVehicleRequest(ctx, &models.NewVehicleRequest{
		DealerId: dealer.ID,
		Notes:    "dev seed",
		Items: []models.NewVehicleRequestItem{
			{VariantId: variantIds[0], RequestedQuantity: 10},
			{VariantId: variantIds[1], RequestedQuantity: 6},
			{VariantId: variantIds[2], RequestedQuantity: 2},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create request: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("seeded dealer %d, variants %v, request %d\n", dealer.ID, variantIds, request.ID)
}
