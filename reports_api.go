package main

import (
	"fmt"
	"net/http"
	"strconv"

	"bitbucket.org/evmotors/fulfillment_backend/models/reports"
	"bitbucket.org/evmotors/fulfillment_backend/utils"
	"github.com/gin-gonic/gin"
)

func fulfillmentReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId, err := strconv.Atoi(c.Query("request_id"))
		if err != nil || requestId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "request_id is required", "code": utils.ErrorCodeValidation})
			return
		}

		f, err := reports.BuildFulfillmentWorkbook(c.Request.Context(), requestId)
		if err != nil {
			writeAPIError(c, err)
			return
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reports.FulfillmentReportFilename(requestId)))
		if err := f.Write(c.Writer); err != nil {
			c.Error(err)
		}
	}
}
