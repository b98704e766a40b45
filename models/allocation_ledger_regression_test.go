package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/evmotors/fulfillment_backend/config"
	"bitbucket.org/evmotors/fulfillment_backend/models"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
	"bitbucket.org/evmotors/fulfillment_backend/workflow"
	"github.com/shopspring/decimal"
)

// End-to-end ledger walk against real MySQL + Redis: split a request into
// batches, hit the over-allocation and duplicate-batch guards, record the
// deposit, and watch the receipt gate flip from blocked to allowed.
func TestAllocationLedgerLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "fulfillment_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	dealer, err := models.CreateDealer(ctx, &models.NewDealer{
		Name:  "Hanoi EV Motors",
		Email: "orders@hanoiev.test",
	})
	if err != nil {
		t.Fatalf("CreateDealer: %v", err)
	}

	variantA, err := models.CreateVehicleVariant(ctx, &models.NewVehicleVariant{
		ModelName:   "Volt S",
		VariantName: "Standard",
		RetailPrice: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateVehicleVariant A: %v", err)
	}
	variantB, err := models.CreateVehicleVariant(ctx, &models.NewVehicleVariant{
		ModelName:   "Volt S",
		VariantName: "Long Range",
		RetailPrice: decimal.NewFromInt(1250),
	})
	if err != nil {
		t.Fatalf("CreateVehicleVariant B: %v", err)
	}

	// Contract value: 8*1000 + 4*1250 = 13000; deposit gate at 6500.
	request, err := models.CreateVehicleRequest(ctx, &models.NewVehicleRequest{
		DealerId: dealer.ID,
		Items: []models.NewVehicleRequestItem{
			{VariantId: variantA.ID, RequestedQuantity: 8},
			{VariantId: variantB.ID, RequestedQuantity: 4},
		},
	})
	if err != nil {
		t.Fatalf("CreateVehicleRequest: %v", err)
	}

	deliveryDate := time.Now().UTC().AddDate(0, 0, 14)

	// 1) First batch takes part of the pool and gets batch number 1.
	first, err := workflow.CreateAllocation(ctx, &models.NewAllocation{
		RequestId:    request.ID,
		DeliveryDate: &deliveryDate,
		Items: []models.NewAllocationItem{
			{VariantId: variantA.ID, Quantity: 5},
			{VariantId: variantB.ID, Quantity: 4},
		},
	})
	if err != nil {
		t.Fatalf("CreateAllocation first: %v", err)
	}
	if first.DeliveryBatch != 1 {
		t.Fatalf("expected batch 1, got %d", first.DeliveryBatch)
	}
	if first.Status != models.AllocationStatusPending {
		t.Fatalf("new allocation should be PENDING, got %s", first.Status)
	}

	// 2) Over-allocation: only 3 of variant A remain.
	_, err = workflow.CreateAllocation(ctx, &models.NewAllocation{
		RequestId:    request.ID,
		DeliveryDate: &deliveryDate,
		Items: []models.NewAllocationItem{
			{VariantId: variantA.ID, Quantity: 4},
		},
	})
	var overErr *utils.OverAllocationError
	if !errors.As(err, &overErr) {
		t.Fatalf("expected OverAllocationError, got %v", err)
	}
	if overErr.Remaining != 3 {
		t.Fatalf("expected remaining 3 in rejection, got %d", overErr.Remaining)
	}

	// 3) Explicit duplicate batch number.
	_, err = workflow.CreateAllocation(ctx, &models.NewAllocation{
		RequestId:     request.ID,
		DeliveryBatch: 1,
		DeliveryDate:  &deliveryDate,
		Items: []models.NewAllocationItem{
			{VariantId: variantA.ID, Quantity: 1},
		},
	})
	var dupErr *utils.DuplicateBatchError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateBatchError, got %v", err)
	}

	// 4) Second batch drains the rest; numbering advances.
	second, err := workflow.CreateAllocation(ctx, &models.NewAllocation{
		RequestId:    request.ID,
		DeliveryDate: &deliveryDate,
		Items: []models.NewAllocationItem{
			{VariantId: variantA.ID, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("CreateAllocation second: %v", err)
	}
	if second.DeliveryBatch != 2 {
		t.Fatalf("expected batch 2, got %d", second.DeliveryBatch)
	}

	remaining, err := workflow.GetRemainingByVariant(ctx, request.ID)
	if err != nil {
		t.Fatalf("GetRemainingByVariant: %v", err)
	}
	for _, row := range remaining {
		if row.Remaining != 0 {
			t.Fatalf("pool should be drained, variant %d still has %d", row.VariantId, row.Remaining)
		}
	}

	// 5) Receipt is blocked before the deposit clears.
	_, err = workflow.ConfirmReceipt(ctx, first.ID)
	var depositErr *utils.DepositNotMetError
	if !errors.As(err, &depositErr) {
		t.Fatalf("expected DepositNotMetError, got %v", err)
	}
	if !depositErr.RequiredAmount.Equal(decimal.NewFromInt(6500)) {
		t.Fatalf("expected required 6500, got %s", depositErr.RequiredAmount)
	}
	if !depositErr.Shortfall().Equal(decimal.NewFromInt(6500)) {
		t.Fatalf("expected shortfall 6500 with nothing paid, got %s", depositErr.Shortfall())
	}

	// 6) Record the deposit; the gateway retries its callback, so fire
	// the same reference twice and expect one ledger row.
	payment, err := workflow.RecordDealerPayment(ctx, &models.NewDealerPayment{
		RequestId:    request.ID,
		AllocationId: first.ID,
		Amount:       decimal.NewFromInt(6500),
		Reference:    "GW-REF-0001",
	})
	if err != nil {
		t.Fatalf("RecordDealerPayment: %v", err)
	}
	duplicate, err := workflow.RecordDealerPayment(ctx, &models.NewDealerPayment{
		RequestId:    request.ID,
		AllocationId: first.ID,
		Amount:       decimal.NewFromInt(6500),
		Reference:    "GW-REF-0001",
	})
	if err != nil {
		t.Fatalf("RecordDealerPayment duplicate: %v", err)
	}
	if duplicate.ID != payment.ID {
		t.Fatalf("duplicate callback created a second payment: %d vs %d", duplicate.ID, payment.ID)
	}
	payments, err := models.ListDealerPaymentsByRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("ListDealerPaymentsByRequest: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected 1 payment row, got %d", len(payments))
	}

	// 7) Gate now passes and confirm-receipt is idempotent.
	decision, err := workflow.CanConfirmReceipt(ctx, request.ID)
	if err != nil {
		t.Fatalf("CanConfirmReceipt: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("gate should allow after deposit, decision %+v", decision)
	}

	delivered, err := workflow.ConfirmReceipt(ctx, first.ID)
	if err != nil {
		t.Fatalf("ConfirmReceipt: %v", err)
	}
	if delivered.Status != models.AllocationStatusDelivered {
		t.Fatalf("expected DELIVERED, got %s", delivered.Status)
	}
	if delivered.ActualDeliveryDate == nil {
		t.Fatal("actual delivery date must be stamped")
	}
	again, err := workflow.ConfirmReceipt(ctx, first.ID)
	if err != nil {
		t.Fatalf("ConfirmReceipt retry: %v", err)
	}
	if !again.ActualDeliveryDate.Equal(*delivered.ActualDeliveryDate) {
		t.Fatal("retry must not re-stamp the delivery date")
	}

	// 8) Delivered rows are frozen.
	if err := workflow.DeleteAllocation(ctx, first.ID); err == nil {
		t.Fatal("deleting a delivered allocation must fail")
	}
	_, err = workflow.UpdateAllocation(ctx, first.ID, &models.NewAllocation{
		RequestId:    request.ID,
		DeliveryDate: &deliveryDate,
		Items: []models.NewAllocationItem{
			{VariantId: variantA.ID, Quantity: 1},
		},
	})
	var stateErr *utils.InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError editing a delivered allocation, got %v", err)
	}

	// 9) Progress: one of two batches delivered.
	progress, err := workflow.GetRequestProgress(ctx, request.ID)
	if err != nil {
		t.Fatalf("GetRequestProgress: %v", err)
	}
	if progress.TotalBatches != 2 || progress.DeliveredBatches != 1 {
		t.Fatalf("unexpected progress %+v", progress)
	}
	if progress.Percent != 50 {
		t.Fatalf("expected 50 percent, got %v", progress.Percent)
	}

	// 10) Deleting the pending batch frees its quantity for reuse, but
	// the batch number is not reissued.
	if err := workflow.DeleteAllocation(ctx, second.ID); err != nil {
		t.Fatalf("DeleteAllocation second: %v", err)
	}
	third, err := workflow.CreateAllocation(ctx, &models.NewAllocation{
		RequestId:    request.ID,
		DeliveryDate: &deliveryDate,
		Items: []models.NewAllocationItem{
			{VariantId: variantA.ID, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("CreateAllocation third: %v", err)
	}
	// batch 2 was the tip and was deleted, so max-plus-one reissues the
	// slot; uniqueness among live rows is what the index enforces
	if third.DeliveryBatch != 2 {
		t.Fatalf("expected batch 2 after the tip was deleted, got %d", third.DeliveryBatch)
	}
}

func TestMarkInTransitTransition(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "fulfillment_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	dealer, err := models.CreateDealer(ctx, &models.NewDealer{Name: "Danang EV"})
	if err != nil {
		t.Fatalf("CreateDealer: %v", err)
	}
	variant, err := models.CreateVehicleVariant(ctx, &models.NewVehicleVariant{
		ModelName:   "Volt X",
		VariantName: "Performance",
		RetailPrice: decimal.Zero,
	})
	if err != nil {
		t.Fatalf("CreateVehicleVariant: %v", err)
	}
	request, err := models.CreateVehicleRequest(ctx, &models.NewVehicleRequest{
		DealerId: dealer.ID,
		Items: []models.NewVehicleRequestItem{
			{VariantId: variant.ID, RequestedQuantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("CreateVehicleRequest: %v", err)
	}

	deliveryDate := time.Now().UTC().AddDate(0, 0, 7)
	allocation, err := workflow.CreateAllocation(ctx, &models.NewAllocation{
		RequestId:    request.ID,
		DeliveryDate: &deliveryDate,
		Items: []models.NewAllocationItem{
			{VariantId: variant.ID, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("CreateAllocation: %v", err)
	}

	inTransit, err := workflow.MarkAllocationInTransit(ctx, allocation.ID)
	if err != nil {
		t.Fatalf("MarkAllocationInTransit: %v", err)
	}
	if inTransit.Status != models.AllocationStatusInTransit {
		t.Fatalf("expected IN_TRANSIT, got %s", inTransit.Status)
	}
	if _, err := workflow.MarkAllocationInTransit(ctx, allocation.ID); err == nil {
		t.Fatal("marking an IN_TRANSIT allocation in transit again must fail")
	}

	// zero-value contract: the gate requires nothing, receipt goes through
	delivered, err := workflow.ConfirmReceipt(ctx, allocation.ID)
	if err != nil {
		t.Fatalf("ConfirmReceipt: %v", err)
	}
	if delivered.Status != models.AllocationStatusDelivered {
		t.Fatalf("expected DELIVERED, got %s", delivered.Status)
	}
	if _, err := workflow.MarkAllocationInTransit(ctx, allocation.ID); err == nil {
		t.Fatal("DELIVERED is terminal; no transition back to IN_TRANSIT")
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("fulfillment-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("fulfillment-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=fulfillment_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
