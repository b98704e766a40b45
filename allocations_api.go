package main

import (
	"errors"
	"net/http"
	"strconv"

	"bitbucket.org/evmotors/fulfillment_backend/models"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
	"bitbucket.org/evmotors/fulfillment_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// writeAPIError maps the fulfillment error classes onto HTTP statuses and
// the { message, code } shape the client expects.
func writeAPIError(c *gin.Context, err error) {
	var coded utils.CodedError
	if errors.As(err, &coded) {
		status := http.StatusBadRequest
		switch coded.Code() {
		case utils.ErrorCodeNotFound:
			status = http.StatusNotFound
		case utils.ErrorCodeOverAllocation, utils.ErrorCodeDuplicateBatch, utils.ErrorCodeInvalidState:
			// conflicts: the caller should refresh remaining / next batch
			// and re-derive before retrying
			status = http.StatusConflict
		case utils.ErrorCodeDepositNotMet:
			status = http.StatusUnprocessableEntity
		}

		body := gin.H{"message": coded.Error(), "code": coded.Code()}
		var depositErr *utils.DepositNotMetError
		if errors.As(err, &depositErr) {
			body["shortfall"] = depositErr.Shortfall()
			body["required_amount"] = depositErr.RequiredAmount
			body["paid_amount"] = depositErr.PaidAmount
		}
		c.JSON(status, body)
		return
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "validation failed",
			"code":    utils.ErrorCodeValidation,
			"fields":  utils.ProcessValidationErrors(err),
		})
		return
	}

	c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error", "code": "INTERNAL"})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid id", "code": utils.ErrorCodeValidation})
		return 0, false
	}
	return id, true
}

func listAllocationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId, err := strconv.Atoi(c.Query("request_id"))
		if err != nil || requestId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "request_id is required", "code": utils.ErrorCodeValidation})
			return
		}

		allocations, err := models.ListAllocationsByRequest(c.Request.Context(), requestId)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": allocations})
	}
}

func createAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAllocation
		if err := c.ShouldBindJSON(&input); err != nil {
			writeAPIError(c, err)
			return
		}

		allocation, err := workflow.CreateAllocation(c.Request.Context(), &input)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": allocation})
	}
}

func updateAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		var input models.NewAllocation
		if err := c.ShouldBindJSON(&input); err != nil {
			writeAPIError(c, err)
			return
		}

		allocation, err := workflow.UpdateAllocation(c.Request.Context(), id, &input)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": allocation})
	}
}

func deleteAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		if err := workflow.DeleteAllocation(c.Request.Context(), id); err != nil {
			writeAPIError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func confirmReceiptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "ConfirmReceipt")
		defer span.End()

		allocation, err := workflow.ConfirmReceipt(ctx, id)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": allocation})
	}
}

func markInTransitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		allocation, err := workflow.MarkAllocationInTransit(c.Request.Context(), id)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": allocation})
	}
}
