// Package export writes order activity to spreadsheets for the shop office.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"benchline/internal/domain"
)

const (
	activitySheet = "Activity"
	ordersSheet   = "Orders"
)

var activityHeaders = []string{"ID", "Time", "Order", "Department", "Action", "Actor", "Details"}

var orderHeaders = []string{"Reference", "Customer", "Priority", "Due", "Department", "Created", "Updated"}

// ActivityWorkbook builds a workbook with one row per activity entry and,
// when orders are given, an order summary sheet. Order ids in the activity
// sheet are replaced by references where known.
func ActivityWorkbook(entries []domain.ActivityEntry, orders []domain.Order) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", activitySheet)

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})
	if err != nil {
		return nil, err
	}
	if err := writeHeader(f, activitySheet, activityHeaders, header); err != nil {
		return nil, err
	}

	refs := make(map[string]string, len(orders))
	for _, o := range orders {
		refs[o.ID] = o.Reference
	}
	for i, e := range entries {
		row := i + 2
		order := e.OrderID
		if ref, ok := refs[e.OrderID]; ok {
			order = ref
		}
		details := ""
		if len(e.Metadata) > 0 {
			b, _ := json.Marshal(e.Metadata)
			details = string(b)
		}
		values := []any{e.ID, e.TS, order, string(e.Department), string(e.Action), e.ActorID, details}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(activitySheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write activity row %d: %w", row, err)
		}
	}
	f.SetColWidth(activitySheet, "B", "B", 22)
	f.SetColWidth(activitySheet, "E", "E", 20)
	f.SetColWidth(activitySheet, "G", "G", 48)

	if len(orders) == 0 {
		return f, nil
	}
	if _, err := f.NewSheet(ordersSheet); err != nil {
		return nil, err
	}
	if err := writeHeader(f, ordersSheet, orderHeaders, header); err != nil {
		return nil, err
	}
	sorted := append([]domain.Order{}, orders...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt < sorted[j].CreatedAt })
	for i, o := range sorted {
		due := ""
		if o.DueDate != nil {
			due = *o.DueDate
		}
		values := []any{o.Reference, o.Customer, string(o.Priority), due, string(o.CurrentDepartment), o.CreatedAt, o.UpdatedAt}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(ordersSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write order row: %w", err)
		}
	}
	return f, nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		f.SetCellStyle(sheet, cell, cell, style)
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

// WriteActivity writes the workbook as xlsx to w.
func WriteActivity(w io.Writer, entries []domain.ActivityEntry, orders []domain.Order) error {
	f, err := ActivityWorkbook(entries, orders)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}
