package models

import (
	"errors"
)

// AllocationStatus is the lifecycle of a delivery batch.
//
// Pending -> InTransit -> Delivered, or Pending -> Delivered directly.
// Delivered is terminal: the record becomes append-only history.
type AllocationStatus string

const (
	AllocationStatusPending   AllocationStatus = "PENDING"
	AllocationStatusInTransit AllocationStatus = "IN_TRANSIT"
	AllocationStatusDelivered AllocationStatus = "DELIVERED"
)

func (s AllocationStatus) Valid() bool {
	switch s {
	case AllocationStatusPending, AllocationStatusInTransit, AllocationStatusDelivered:
		return true
	}
	return false
}

func (s AllocationStatus) IsTerminal() bool {
	return s == AllocationStatusDelivered
}

// CanTransitionTo enforces the forward-only status machine.
func (s AllocationStatus) CanTransitionTo(next AllocationStatus) bool {
	switch s {
	case AllocationStatusPending:
		return next == AllocationStatusInTransit || next == AllocationStatusDelivered
	case AllocationStatusInTransit:
		return next == AllocationStatusDelivered
	default:
		return false
	}
}

func ParseAllocationStatus(s string) (AllocationStatus, error) {
	status := AllocationStatus(s)
	if !status.Valid() {
		return "", errors.New("invalid allocation status")
	}
	return status, nil
}

// VehicleRequestStatus is opaque to the fulfillment core beyond display;
// requests are created and approved outside this service.
type VehicleRequestStatus string

const (
	VehicleRequestStatusDraft     VehicleRequestStatus = "Draft"
	VehicleRequestStatusApproved  VehicleRequestStatus = "Approved"
	VehicleRequestStatusCompleted VehicleRequestStatus = "Completed"
	VehicleRequestStatusCancelled VehicleRequestStatus = "Cancelled"
)

type UserRole string

const (
	UserRoleAdmin  UserRole = "Admin"
	UserRoleStaff  UserRole = "Staff"
	UserRoleDealer UserRole = "Dealer"
)
