package verify

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/signalnine/skillbench/internal/benchmark"
	"github.com/xuri/excelize/v2"
)

// maxFormulaScan bounds the cells checked for formulas on huge sheets.
const maxFormulaScan = 200_000

// inspectSpreadsheet measures the active worksheet of a workbook.
func inspectSpreadsheet(filename string, size int64) (*inspection, error) {
	f, err := excelize.OpenFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotOOXML, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrNotOOXML)
	}
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheet = sheets[0]
	}

	grid, err := scanSheet(f, sheet)
	if err != nil {
		return nil, err
	}
	in := newInspection(size, benchmark.HasFormula, benchmark.HasChart, benchmark.MinRows, benchmark.MinColumns)
	in.present[benchmark.HasFormula] = grid.formula
	in.counts[benchmark.MinRows] = len(grid.rows)
	in.counts[benchmark.MinColumns] = len(grid.cols)

	chart, err := sheetHasChart(filename, sheet)
	if err != nil {
		return nil, err
	}
	in.present[benchmark.HasChart] = chart
	return in, nil
}

type sheetScan struct {
	rows    map[int]bool
	cols    map[int]bool
	formula bool
}

func (s *sheetScan) mark(col, row int) {
	s.rows[row] = true
	s.cols[col] = true
}

// scanSheet records which rows and columns hold at least one non-empty
// cell. A formula cell counts even without a cached value, and so does
// text that was meant as a formula.
func scanSheet(f *excelize.File, sheet string) (*sheetScan, error) {
	s := &sheetScan{rows: map[int]bool{}, cols: map[int]bool{}}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	lastCol, lastRow := 0, len(rows)
	for r, row := range rows {
		lastCol = max(lastCol, len(row))
		for c, value := range row {
			if value == "" {
				continue
			}
			s.mark(c+1, r+1)
			if strings.HasPrefix(value, "=") {
				s.formula = true
			}
		}
	}

	if dim, err := f.GetSheetDimension(sheet); err == nil && dim != "" {
		_, end, _ := strings.Cut(dim, ":")
		if end == "" {
			end = dim
		}
		if col, row, err := excelize.CellNameToCoordinates(end); err == nil {
			lastCol, lastRow = max(lastCol, col), max(lastRow, row)
		}
	}
	if lastCol*lastRow > maxFormulaScan {
		lastRow = maxFormulaScan / max(lastCol, 1)
	}
	for row := 1; row <= lastRow; row++ {
		for col := 1; col <= lastCol; col++ {
			cell, err := excelize.CoordinatesToCellName(col, row)
			if err != nil {
				continue
			}
			if formula, err := f.GetCellFormula(sheet, cell); err == nil && formula != "" {
				s.formula = true
				s.mark(col, row)
			}
		}
	}
	return s, nil
}

type workbookDoc struct {
	Sheets []struct {
		Name string `xml:"name,attr"`
		RID  string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sheets>sheet"`
}

// sheetHasChart follows the named worksheet's drawing relationships and
// reports whether any drawing anchors a chart. Charts are not exposed by
// the spreadsheet reader, so this walks the package parts directly.
func sheetHasChart(filename, sheet string) (bool, error) {
	p, err := openPackage(filename)
	if err != nil {
		return false, err
	}
	defer p.Close()

	wbPart, err := p.mainPart("xl/workbook.xml")
	if err != nil {
		return false, err
	}
	var wb workbookDoc
	if err := p.decode(wbPart, &wb); err != nil {
		return false, err
	}
	wbRels, err := p.rels(wbPart)
	if err != nil {
		return false, err
	}
	var sheetPart string
	for _, s := range wb.Sheets {
		if rel, ok := wbRels[s.RID]; ok && s.Name == sheet && strings.HasSuffix(rel.Type, relWorksheet) {
			sheetPart = resolveTarget(wbPart, rel.Target)
		}
	}
	if sheetPart == "" {
		return false, nil
	}

	var drawingIDs []string
	err = p.walk(sheetPart, func(tok xml.Token) error {
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "drawing" {
			if id := attr(se, nsRelationships, "id"); id != "" {
				drawingIDs = append(drawingIDs, id)
			}
		}
		return nil
	})
	if err != nil || len(drawingIDs) == 0 {
		return false, err
	}

	sheetRels, err := p.rels(sheetPart)
	if err != nil {
		return false, err
	}
	for _, id := range drawingIDs {
		rel, ok := sheetRels[id]
		if !ok || !strings.HasSuffix(rel.Type, relDrawing) {
			continue
		}
		drawingRels, err := p.rels(resolveTarget(sheetPart, rel.Target))
		if err != nil {
			return false, err
		}
		for _, dr := range drawingRels {
			if strings.HasSuffix(dr.Type, relChart) {
				return true, nil
			}
		}
	}
	return false, nil
}
