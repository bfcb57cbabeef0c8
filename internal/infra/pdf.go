package infra

// pdf.go renders sale receipts (narrow thermal-paper page) and the sales
// summary report (A4) with go-pdf/fpdf. Output is returned in memory.

import (
	"bytes"
	"fmt"
	"time"

	"possales/internal/dto"
	"possales/internal/model"

	"github.com/go-pdf/fpdf"
)

const storeName = "POS Sales"

// RenderReceiptPDF renders the receipt for a committed sale. Times are shown
// in loc.
func RenderReceiptPDF(sale *model.Sale, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	// 80mm roll; height grows with the number of lines
	height := 70 + float64(len(sale.Items))*5
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: 80, Ht: height},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.SetAutoPageBreak(false, 4)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 8

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(contentW, 7, storeName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW, 5, "Sales receipt", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Sale #%d", sale.ID), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(contentW, 4, sale.Timestamp.In(loc).Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	if sale.User != nil {
		pdf.CellFormat(contentW, 4, "Served by: "+sale.User.Username, "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)
	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	col1 := contentW * 0.44
	col2 := contentW * 0.12
	col3 := contentW * 0.20
	col4 := contentW * 0.24

	pdf.SetFont("Helvetica", "B", 7)
	pdf.CellFormat(col1, 5, "Product", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 5, "Qty", "B", 0, "C", false, 0, "")
	pdf.CellFormat(col3, 5, "Price", "B", 0, "R", false, 0, "")
	pdf.CellFormat(col4, 5, "Subtotal", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	for _, item := range sale.Items {
		name := fmt.Sprintf("#%d", item.ProductID)
		if item.Product != nil && item.Product.Name != "" {
			name = item.Product.Name
		}
		pdf.CellFormat(col1, 5, truncate(name, 24), "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 5, fmt.Sprintf("%d", item.Quantity), "", 0, "C", false, 0, "")
		pdf.CellFormat(col3, 5, item.PriceAtSale.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(col4, 5, item.Subtotal().StringFixed(2), "", 1, "R", false, 0, "")
	}

	pdf.Ln(2)
	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(col1+col2+col3, 6, "TOTAL", "", 0, "L", false, 0, "")
	pdf.CellFormat(col4, 6, sale.TotalAmount.StringFixed(2), "", 1, "R", false, 0, "")

	pdf.Ln(3)
	pdf.SetFont("Helvetica", "I", 7)
	pdf.CellFormat(contentW, 4, "Thank you for your purchase", "", 1, "C", false, 0, "")

	return output(pdf)
}

// RenderSummaryPDF renders the sales summary report.
func RenderSummaryPDF(s *dto.SalesSummaryResponse) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, storeName+" - Sales summary", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "As of "+s.AsOf, "", 1, "L", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Today", s.TodaySales},
		{"Sales today", fmt.Sprintf("%d", s.TodayCount)},
		{"Month to date", s.MonthSales},
		{"Overall", s.TotalSales},
	}
	for _, r := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(60, 7, r[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 7, r[1], "", 1, "L", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Top products (last 30 days)", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(15, 7, "#", "B", 0, "L", false, 0, "")
	pdf.CellFormat(25, 7, "ID", "B", 0, "L", false, 0, "")
	pdf.CellFormat(100, 7, "Product", "B", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, "Units sold", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	if len(s.TopProducts) == 0 {
		pdf.CellFormat(0, 7, "No sales in this period", "", 1, "L", false, 0, "")
	}
	for i, tp := range s.TopProducts {
		pdf.CellFormat(15, 7, fmt.Sprintf("%d", i+1), "", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d", tp.ProductID), "", 0, "L", false, 0, "")
		pdf.CellFormat(100, 7, truncate(tp.Name, 50), "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, fmt.Sprintf("%d", tp.TotalSold), "", 1, "R", false, 0, "")
	}

	return output(pdf)
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: render: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "."
}
