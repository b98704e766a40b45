package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// ErrorCode is the machine-readable code surfaced to API callers as
// { "message": ..., "code": ... }.
type ErrorCode string

const (
	ErrorCodeOverAllocation ErrorCode = "OVER_ALLOCATION"
	ErrorCodeDuplicateBatch ErrorCode = "DUPLICATE_BATCH"
	ErrorCodeValidation     ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrorCodeInvalidState   ErrorCode = "INVALID_STATE"
	ErrorCodeDepositNotMet  ErrorCode = "DEPOSIT_NOT_MET"
)

type CodedError interface {
	error
	Code() ErrorCode
}

// OverAllocationError rejects a create/edit whose quantity exceeds the
// remaining open quantity for a variant on the owning request.
type OverAllocationError struct {
	VariantId int
	Requested int
	Remaining int
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("quantity %d exceeds remaining %d for variant %d", e.Requested, e.Remaining, e.VariantId)
}

func (e *OverAllocationError) Code() ErrorCode { return ErrorCodeOverAllocation }

// DuplicateBatchError rejects a client-submitted delivery batch number
// already in use for the same request scope.
type DuplicateBatchError struct {
	RequestId     int
	DeliveryBatch int
}

func (e *DuplicateBatchError) Error() string {
	return fmt.Sprintf("delivery batch %d already exists for request %d", e.DeliveryBatch, e.RequestId)
}

func (e *DuplicateBatchError) Code() ErrorCode { return ErrorCodeDuplicateBatch }

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string   { return e.Message }
func (e *ValidationError) Code() ErrorCode { return ErrorCodeValidation }

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Resource string
	Id       int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.Id)
}

func (e *NotFoundError) Code() ErrorCode { return ErrorCodeNotFound }

// InvalidStateError rejects mutations of a terminal (delivered) allocation
// and transitions the status state machine does not permit.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string   { return e.Message }
func (e *InvalidStateError) Code() ErrorCode { return ErrorCodeInvalidState }

// DepositNotMetError is a recoverable condition, not a bug: it carries the
// shortfall so the caller can route the user to a deposit payment and retry.
type DepositNotMetError struct {
	RequestId      int
	RequiredAmount decimal.Decimal
	PaidAmount     decimal.Decimal
}

func (e *DepositNotMetError) Error() string {
	return fmt.Sprintf("deposit not met for request %d: paid %s of required %s (short %s)",
		e.RequestId, e.PaidAmount.String(), e.RequiredAmount.String(), e.Shortfall().String())
}

func (e *DepositNotMetError) Code() ErrorCode { return ErrorCodeDepositNotMet }

func (e *DepositNotMetError) Shortfall() decimal.Decimal {
	return e.RequiredAmount.Sub(e.PaidAmount)
}
