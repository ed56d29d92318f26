package engine

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Report"

// generateXLSX writes text elements as single cells and tables as cell ranges,
// one element after another in vertical order.
func (r *Report) generateXLSX(sink io.Writer) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("prepare sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	row := 1
	global := scope{data: r.data, pageNumber: 1, pageCount: "1"}
	for _, el := range sortedElements(r.def.DocElements) {
		switch el.ElementType {
		case ElementText:
			if err := setCell(f, 1, row, global.expand(el.Content)); err != nil {
				return err
			}
			row++
		case ElementTable:
			next, err := r.xlsxTable(f, el, row, headerStyle, global)
			if err != nil {
				return err
			}
			row = next + 1
		}
	}

	if err := f.Write(sink); err != nil {
		return fmt.Errorf("render xlsx: %w", err)
	}
	return nil
}

func (r *Report) xlsxTable(f *excelize.File, el DocElement, row, headerStyle int, global scope) (int, error) {
	for i, col := range el.Columns {
		if err := setCell(f, i+1, row, global.expand(col.Header)); err != nil {
			return row, err
		}
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(el.Columns), row)
	if err := f.SetCellStyle(xlsxSheet, first, last, headerStyle); err != nil {
		return row, fmt.Errorf("style header: %w", err)
	}

	for i, width := range columnWidths(el) {
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(xlsxSheet, name, name, width/5); err != nil {
			return row, fmt.Errorf("set column width: %w", err)
		}
	}

	source, _ := singleReference(el.DataSource)
	for _, record := range rows(r.data[source]) {
		row++
		s := scope{data: r.data, row: record, pageNumber: 1, pageCount: "1"}
		for i, col := range el.Columns {
			var value interface{}
			if v, ok := s.value(col.Content); ok && isNumeric(v) {
				value = v
			} else {
				value = s.expand(col.Content)
			}
			if err := setCell(f, i+1, row, value); err != nil {
				return row, err
			}
		}
	}
	return row, nil
}

func setCell(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(xlsxSheet, cell, value); err != nil {
		return fmt.Errorf("set cell %s: %w", cell, err)
	}
	return nil
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case float64, float32, int, int64:
		return true
	}
	return false
}
