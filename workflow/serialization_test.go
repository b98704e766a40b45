package workflow

import (
	"errors"
	"sync"
	"testing"

	"bitbucket.org/evmotors/fulfillment_backend/models"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
)

// NOTE: These tests are intentionally DB-free. They validate the intended
// concurrency semantics without MySQL:
// - per-request serialization makes the over-allocation check race-free
// - duplicate payment callbacks are recorded once via durable idempotency
//
// The real paths take a GET_LOCK advisory lock on the transaction
// connection; here a per-request mutex stands in for it.

type fakeLedger struct {
	mu          sync.Mutex
	muByRequest map[int]*sync.Mutex
	request     *models.VehicleRequest
	allocations []*models.Allocation
	nextId      int
}

func newFakeLedger(request *models.VehicleRequest) *fakeLedger {
	return &fakeLedger{
		muByRequest: map[int]*sync.Mutex{},
		request:     request,
		nextId:      1,
	}
}

func (l *fakeLedger) requestLock(requestId int) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	rm := l.muByRequest[requestId]
	if rm == nil {
		rm = &sync.Mutex{}
		l.muByRequest[requestId] = rm
	}
	return rm
}

// createAllocation runs the same validate-then-write sequence as the
// transactional path, serialized the way AcquireRequestFulfillmentLock
// serializes it.
func (l *fakeLedger) createAllocation(items []models.NewAllocationItem) error {
	rm := l.requestLock(l.request.ID)
	rm.Lock()
	defer rm.Unlock()

	if err := validateAllocationItems(l.request, l.allocations, items, 0); err != nil {
		return err
	}

	allocation := &models.Allocation{
		ID:            l.nextId,
		RequestId:     l.request.ID,
		DeliveryBatch: NextBatchNumber(l.allocations),
		Status:        models.AllocationStatusPending,
	}
	for _, item := range items {
		allocation.Items = append(allocation.Items, models.AllocationItem{
			AllocationId: allocation.ID,
			VariantId:    item.VariantId,
			Quantity:     item.Quantity,
		})
	}
	l.nextId++
	l.allocations = append(l.allocations, allocation)
	return nil
}

func TestConcurrentAllocations_NeverExceedRequested(t *testing.T) {
	for run := 0; run < 100; run++ {
		request := buildRequest(map[int]int{10: 5})
		ledger := newFakeLedger(request)

		// ten writers each try to take 1 unit; only five may win
		var wg sync.WaitGroup
		var successes, overAllocations int
		var countMu sync.Mutex
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := ledger.createAllocation([]models.NewAllocationItem{
					{VariantId: 10, Quantity: 1},
				})
				countMu.Lock()
				defer countMu.Unlock()
				if err == nil {
					successes++
					return
				}
				var overErr *utils.OverAllocationError
				if errors.As(err, &overErr) {
					overAllocations++
				}
			}()
		}
		wg.Wait()

		if successes != 5 || overAllocations != 5 {
			t.Fatalf("run=%d expected 5 wins and 5 rejections, got %d/%d",
				run, successes, overAllocations)
		}
		if got := Remaining(request, ledger.allocations, 10, 0); got != 0 {
			t.Fatalf("run=%d expected remaining 0 after the pool drained, got %d", run, got)
		}
	}
}

func TestConcurrentAllocations_BatchNumbersStrictlyIncrease(t *testing.T) {
	request := buildRequest(map[int]int{10: 50})
	ledger := newFakeLedger(request)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ledger.createAllocation([]models.NewAllocationItem{
				{VariantId: 10, Quantity: 1},
			})
		}()
	}
	wg.Wait()

	seen := map[int]bool{}
	for _, allocation := range ledger.allocations {
		if seen[allocation.DeliveryBatch] {
			t.Fatalf("batch number %d assigned twice", allocation.DeliveryBatch)
		}
		seen[allocation.DeliveryBatch] = true
	}
	for batch := 1; batch <= 20; batch++ {
		if !seen[batch] {
			t.Fatalf("batch %d missing; serialized numbering should be dense here", batch)
		}
	}
}

type fakePaymentRecorder struct {
	mu       sync.Mutex
	recorded map[string]bool
	writes   int
}

// record mirrors RecordDealerPayment's BeginIdempotency guard keyed by
// the gateway reference.
func (r *fakePaymentRecorder) record(reference string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recorded[reference] {
		return
	}
	r.recorded[reference] = true
	r.writes++
}

func TestDuplicatePaymentCallback_RecordedOnce(t *testing.T) {
	recorder := &fakePaymentRecorder{recorded: map[string]bool{}}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.record("GW-20260831-0001")
		}()
	}
	wg.Wait()

	if recorder.writes != 1 {
		t.Fatalf("expected exactly 1 payment write, got %d", recorder.writes)
	}
}
