package drawparse

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	legacyCharset = "utf-8"
	// BIFF8 sheets stop at column IV.
	maxLegacyColumns = 256
)

// legacyWorkbookMagic opens every OLE2 compound file, which is how BIFF .xls workbooks are stored.
var legacyWorkbookMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

var errNoWorkbookStream = errors.New("compound file holds no workbook stream")

// sheetTable is one worksheet flattened to text cells.
type sheetTable struct {
	name string
	rows [][]string
}

// parseWorkbook reads every sheet as a table whose first row is the header.
func (p *Parser) parseWorkbook(rules lottery.Rules, content []byte, fields []zap.Field) ([]ParsedDraw, bool) {
	var (
		tables []sheetTable
		err    error
	)
	if bytes.HasPrefix(content, legacyWorkbookMagic) {
		tables, err = readLegacySheets(content)
	} else {
		tables, err = p.readSheets(content, fields)
	}
	if err != nil {
		p.logger.Debug("draw file is not a readable workbook", append(fields, zap.Error(err))...)
		return nil, false
	}

	draws := make([]ParsedDraw, 0)
	for _, table := range tables {
		draws = append(draws, p.parseTable(rules, table, fields)...)
	}
	return draws, len(draws) > 0
}

func (p *Parser) parseTable(rules lottery.Rules, table sheetTable, fields []zap.Field) []ParsedDraw {
	if len(table.rows) == 0 || len(table.rows[0]) == 0 {
		return nil
	}
	index := buildColumnIndex(table.rows[0])
	if !hasMinimumColumns(index) {
		return nil
	}
	layout := resolveLayout(index)

	draws := make([]ParsedDraw, 0, len(table.rows)-1)
	for rowNumber, row := range table.rows[1:] {
		if isBlankRow(row) {
			continue
		}
		draw, err := mapRow(rules, layout, row)
		if err != nil {
			p.logger.Warn("workbook row skipped", append(fields,
				zap.String("sheet", table.name),
				zap.Int("row", rowNumber+2),
				zap.String("reason", err.Error()))...)
			continue
		}
		draws = append(draws, draw)
	}
	return draws
}

// readSheets opens an Office Open XML workbook.
func (p *Parser) readSheets(content []byte, fields []zap.Field) ([]sheetTable, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer workbook.Close()

	tables := make([]sheetTable, 0, len(workbook.GetSheetList()))
	for _, sheet := range workbook.GetSheetList() {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			p.logger.Warn("workbook sheet unreadable", append(fields, zap.String("sheet", sheet), zap.Error(err))...)
			continue
		}
		tables = append(tables, sheetTable{name: sheet, rows: rows})
	}
	return tables, nil
}

// readLegacySheets opens a BIFF workbook. The reader panics on malformed records, which is reported as an error.
func readLegacySheets(content []byte) (tables []sheetTable, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			tables, err = nil, fmt.Errorf("legacy workbook: %v", recovered)
		}
	}()

	workbook, err := xls.OpenReader(bytes.NewReader(content), legacyCharset)
	if err != nil {
		return nil, err
	}
	if workbook == nil {
		return nil, errNoWorkbookStream
	}

	tables = make([]sheetTable, 0, workbook.NumSheets())
	for sheetIndex := 0; sheetIndex < workbook.NumSheets(); sheetIndex++ {
		sheet := workbook.GetSheet(sheetIndex)
		if sheet == nil {
			continue
		}
		table := sheetTable{name: sheet.Name}
		for rowIndex := 0; rowIndex <= int(sheet.MaxRow); rowIndex++ {
			table.rows = append(table.rows, legacyRowCells(sheet, rowIndex))
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// legacyRowCells returns nil for rows the sheet never stored.
func legacyRowCells(sheet *xls.WorkSheet, rowIndex int) (cells []string) {
	defer func() {
		if recover() != nil {
			cells = nil
		}
	}()

	row := sheet.Row(rowIndex)
	limit := row.LastCol()
	if limit <= 0 || limit > maxLegacyColumns {
		limit = maxLegacyColumns
	}
	cells = make([]string, 0, limit)
	for column := 0; column < limit; column++ {
		cells = append(cells, row.Col(column))
	}
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
