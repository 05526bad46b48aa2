package handlers

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/powerca/backoffice/models"
	"github.com/xuri/excelize/v2"
)

var paymentExportHeaders = []string{
	"Date", "Order ID", "Payment ID", "Customer", "Email", "Phone", "Company", "GSTIN",
	"Plan", "Taxable Amount", "GST", "Total", "Invoice Number", "Test",
}

func buildPaymentsWorkbook(payments []models.Payment, invoices map[uuid.UUID]models.Invoice) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Payments"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	for i, header := range paymentExportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, p := range payments {
		row := i + 2
		values := []interface{}{
			p.CreatedAt.Format("2006-01-02 15:04"), p.OrderID, p.PaymentID, p.Name, p.Email, p.Phone,
			p.Company, p.GSTNumber, p.Plan, p.Amount, "", "", "", p.IsTest,
		}
		if inv, ok := invoices[p.ID]; ok {
			values[10] = inv.GST
			values[11] = inv.Total
			values[12] = inv.InvoiceNumber
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}

	for i := range paymentExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, 18)
	}

	return f.WriteToBuffer()
}
