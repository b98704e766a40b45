package reports

import (
	"context"
	"fmt"

	"bitbucket.org/evmotors/fulfillment_backend/config"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type FulfillmentRow struct {
	RequestId         int             `json:"requestId"`
	DealerName        string          `json:"dealerName"`
	VariantId         int             `json:"variantId"`
	ModelName         string          `json:"modelName"`
	VariantName       string          `json:"variantName"`
	RequestedQuantity int             `json:"requestedQuantity"`
	AllocatedQuantity int             `json:"allocatedQuantity"`
	DeliveredQuantity int             `json:"deliveredQuantity"`
	PaidAmount        decimal.Decimal `json:"paidAmount"`
}

// GetFulfillmentReport returns one row per requested variant with its
// allocated and delivered totals across all of the request's batches.
func GetFulfillmentReport(ctx context.Context, requestId int) ([]*FulfillmentRow, error) {
	sql := `
SELECT
    ri.request_id,
    d.name AS dealer_name,
    ri.variant_id,
    vv.model_name,
    vv.variant_name,
    ri.requested_quantity,
    COALESCE(alloc.allocated_quantity, 0) AS allocated_quantity,
    COALESCE(alloc.delivered_quantity, 0) AS delivered_quantity,
    COALESCE(paid.paid_amount, 0) AS paid_amount
FROM
    vehicle_request_items ri
        JOIN
    vehicle_requests r ON r.id = ri.request_id
        JOIN
    dealers d ON d.id = r.dealer_id
        JOIN
    vehicle_variants vv ON vv.id = ri.variant_id
        LEFT JOIN
    (
        SELECT
            a.request_id,
            ai.variant_id,
            SUM(ai.quantity) AS allocated_quantity,
            SUM(CASE WHEN a.status = 'DELIVERED' THEN ai.quantity ELSE 0 END) AS delivered_quantity
        FROM
            allocations a
                JOIN
            allocation_items ai ON ai.allocation_id = a.id
        WHERE a.request_id = ?
        GROUP BY a.request_id , ai.variant_id
    ) AS alloc ON alloc.request_id = ri.request_id AND alloc.variant_id = ri.variant_id
        LEFT JOIN
    (
        SELECT request_id, SUM(paid_amount) AS paid_amount
        FROM allocations
        WHERE request_id = ?
        GROUP BY request_id
    ) AS paid ON paid.request_id = ri.request_id
WHERE
    ri.request_id = ?
ORDER BY ri.variant_id;
`

	var rows []*FulfillmentRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, requestId, requestId, requestId).Scan(&rows).Error; err != nil {
		return nil, err
	}

	return rows, nil
}

// BuildFulfillmentWorkbook renders the report as an xlsx workbook for the
// progress export download.
func BuildFulfillmentWorkbook(ctx context.Context, requestId int) (*excelize.File, error) {

	rows, err := GetFulfillmentReport(ctx, requestId)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Fulfillment"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Request", "Dealer", "Model", "Variant", "Requested", "Allocated", "Delivered", "Remaining", "Paid Amount"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	for i, row := range rows {
		values := []interface{}{
			row.RequestId,
			row.DealerName,
			row.ModelName,
			row.VariantName,
			row.RequestedQuantity,
			row.AllocatedQuantity,
			row.DeliveredQuantity,
			row.RequestedQuantity - row.AllocatedQuantity,
			row.PaidAmount.String(),
		}
		for j, value := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	return f, nil
}

func FulfillmentReportFilename(requestId int) string {
	return fmt.Sprintf("fulfillment-request-%d.xlsx", requestId)
}
