package main

import (
	"net/http"

	"bitbucket.org/evmotors/fulfillment_backend/models"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
	"bitbucket.org/evmotors/fulfillment_backend/workflow"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeAPIError(c, err)
			return
		}

		info, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"message": err.Error(), "code": "UNAUTHORIZED"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": info})
	}
}

func getRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		request, err := models.GetVehicleRequest(c.Request.Context(), id)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": request})
	}
}

func getRequestProgressHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		progress, err := workflow.GetRequestProgress(c.Request.Context(), id)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": progress})
	}
}

func getRequestRemainingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		remaining, err := workflow.GetRemainingByVariant(c.Request.Context(), id)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": remaining})
	}
}

func canConfirmHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		decision, err := workflow.CanConfirmReceipt(c.Request.Context(), id)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": decision})
	}
}

func recordPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// only manufacturer staff may record gateway results
		if isAdmin, _ := utils.GetIsAdminFromContext(c.Request.Context()); !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"message": "forbidden", "code": "FORBIDDEN"})
			return
		}

		var input models.NewDealerPayment
		if err := c.ShouldBindJSON(&input); err != nil {
			writeAPIError(c, err)
			return
		}

		payment, err := workflow.RecordDealerPayment(c.Request.Context(), &input)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": payment})
	}
}
