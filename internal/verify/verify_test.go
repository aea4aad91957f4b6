package verify_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/signalnine/skillbench/internal/benchmark"
	"github.com/signalnine/skillbench/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	relNS     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	pkgRelNS  = "http://schemas.openxmlformats.org/package/2006/relationships"
	sheetNS   = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"
	wordNS    = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	slideNS   = "http://schemas.openxmlformats.org/presentationml/2006/main"
	drawingNS = "http://schemas.openxmlformats.org/drawingml/2006/main"
)

func rels(entries ...string) string {
	out := `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="` + pkgRelNS + `">`
	for i := 0; i+2 < len(entries); i += 3 {
		out += `<Relationship Id="` + entries[i] + `" Type="` + relNS + `/` + entries[i+1] + `" Target="` + entries[i+2] + `"/>`
	}
	return out + `</Relationships>`
}

func writeZip(t *testing.T, name string, parts map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for part, body := range parts {
		w, err := zw.Create(part)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func criteria(t *testing.T, raw map[string]any) benchmark.Criteria {
	t.Helper()
	cs, err := benchmark.ParseCriteria(raw)
	require.NoError(t, err)
	return cs
}

const contentTypes = `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>` +
	`<Override PartName="/xl/worksheets/sheet1.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>` +
	`<Override PartName="/xl/sharedStrings.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sharedStrings+xml"/>` +
	`</Types>`

func spreadsheet(t *testing.T, sheetData string, withChart bool) string {
	return spreadsheetWithDimension(t, "", sheetData, withChart)
}

func spreadsheetWithDimension(t *testing.T, dimension, sheetData string, withChart bool) string {
	sheet := `<worksheet xmlns="` + sheetNS + `" xmlns:r="` + relNS + `">`
	if dimension != "" {
		sheet += `<dimension ref="` + dimension + `"/>`
	}
	sheet += `<sheetData>` + sheetData + `</sheetData>`
	parts := map[string]string{
		"[Content_Types].xml":        contentTypes,
		"_rels/.rels":                rels("rId1", "officeDocument", "xl/workbook.xml"),
		"xl/workbook.xml":            `<workbook xmlns="` + sheetNS + `" xmlns:r="` + relNS + `"><sheets><sheet name="Budget" sheetId="1" r:id="rId1"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": rels("rId1", "worksheet", "worksheets/sheet1.xml", "rId2", "sharedStrings", "sharedStrings.xml"),
		"xl/sharedStrings.xml":       `<sst xmlns="` + sheetNS + `"><si><t>Item</t></si><si><r><t>Co</t></r><r><t>st</t></r></si><si><t>=B2*2</t></si></sst>`,
	}
	if withChart {
		sheet += `<drawing r:id="rId1"/>`
		parts["xl/worksheets/_rels/sheet1.xml.rels"] = rels("rId1", "drawing", "../drawings/drawing1.xml")
		parts["xl/drawings/drawing1.xml"] = `<xdr:wsDr xmlns:xdr="http://schemas.openxmlformats.org/drawingml/2006/spreadsheetDrawing"/>`
		parts["xl/drawings/_rels/drawing1.xml.rels"] = rels("rId1", "chart", "../charts/chart1.xml")
	}
	parts["xl/worksheets/sheet1.xml"] = sheet + `</worksheet>`
	return writeZip(t, "budget.xlsx", parts)
}

const budgetRows = `<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>
<row r="2"><c r="A2" t="inlineStr"><is><t>Rent</t></is></c><c r="B2"><v>1200</v></c></row>
<row r="3"><c r="A3" t="inlineStr"><is><t>Food</t></is></c><c r="B3"><v>300</v></c></row>
<row r="4"><c r="A4" t="inlineStr"><is><t>Total</t></is></c><c r="B4"><f>SUM(B2:B3)</f><v>1500</v></c></row>
<row r="5"><c r="C5"/></row>`

func TestSpreadsheet(t *testing.T) {
	path := spreadsheet(t, budgetRows, true)
	cs := criteria(t, map[string]any{
		"file_valid":  true,
		"has_formula": true,
		"has_chart":   true,
		"min_rows":    4,
		"min_columns": 3,
		"has_table":   true,
	})
	got := verify.File(path, cs)
	assert.Equal(t, map[string]bool{
		"file_valid":  true,
		"has_formula": true,
		"has_chart":   true,
		"min_rows":    true,
		"min_columns": false,
		"has_table":   false,
	}, got)

	notes := verify.Notes(path, cs)
	assert.Equal(t, "found 4 non-empty rows, need 4", notes["min_rows"])
	assert.Equal(t, "found 2 non-empty columns, need 3", notes["min_columns"])
	assert.Contains(t, notes["has_table"], "not applicable")
}

func TestSpreadsheetFormulaFromSharedString(t *testing.T) {
	path := spreadsheet(t, `<row r="1"><c r="A1" t="s"><v>2</v></c></row>`, false)
	got := verify.File(path, criteria(t, map[string]any{"has_formula": true, "has_chart": true}))
	assert.True(t, got["has_formula"])
	assert.False(t, got["has_chart"])
}

func TestSpreadsheetFormulaWithoutCachedValue(t *testing.T) {
	rows := `<row r="1"><c r="A1"><v>2</v></c><c r="B1"><v>3</v></c></row>
<row r="2"><c r="C2"><f>A1*B1</f></c></row>`
	path := spreadsheetWithDimension(t, "A1:C2", rows, false)
	cs := criteria(t, map[string]any{"has_formula": true, "min_rows": 2, "min_columns": 3})
	assert.Equal(t, map[string]bool{"has_formula": true, "min_rows": true, "min_columns": true}, verify.File(path, cs))
}

func TestSpreadsheetWithoutFormula(t *testing.T) {
	path := spreadsheet(t, `<row r="1"><c r="A1"><v>1</v></c></row>`, false)
	got := verify.File(path, criteria(t, map[string]any{"has_formula": true, "has_chart": false}))
	assert.False(t, got["has_formula"])
	assert.True(t, got["has_chart"], "absent chart satisfies has_chart: false")
}

func TestDocument(t *testing.T) {
	doc := `<w:document xmlns:w="` + wordNS + `"><w:body>
<w:p><w:r><w:t>Quarterly report</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Revenue grew </w:t></w:r><w:r><w:t>strongly this year.</w:t></w:r></w:p>
<w:p></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell text here</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
<w:p><w:r><w:t>Closing remarks</w:t></w:r></w:p>
</w:body></w:document>`
	path := writeZip(t, "report.docx", map[string]string{
		"_rels/.rels":                  rels("rId1", "officeDocument", "word/document.xml"),
		"word/document.xml":            doc,
		"word/_rels/document.xml.rels": rels("rId5", "image", "media/image1.png"),
	})
	cs := criteria(t, map[string]any{
		"min_paragraphs": 3,
		"min_words":      10,
		"has_table":      true,
		"has_images":     true,
		"file_created":   true,
	})
	rep := verify.Inspect(path, cs)
	require.NoError(t, rep.Err)
	assert.Equal(t, map[string]bool{
		"min_paragraphs": true,
		"min_words":      false,
		"has_table":      true,
		"has_images":     true,
	}, rep.Results)
	assert.Equal(t, "found 9 words, need 10", rep.Notes["min_words"])
	assert.Empty(t, rep.Assumed)
}

func TestDeck(t *testing.T) {
	slide := func(body string) string {
		return `<p:sld xmlns:p="` + slideNS + `" xmlns:a="` + drawingNS + `"><p:cSld><p:spTree>` + body + `</p:spTree></p:cSld></p:sld>`
	}
	path := writeZip(t, "deck.pptx", map[string]string{
		"_rels/.rels":                     rels("rId1", "officeDocument", "ppt/presentation.xml"),
		"ppt/presentation.xml":            `<p:presentation xmlns:p="` + slideNS + `" xmlns:r="` + relNS + `"><p:sldIdLst><p:sldId id="256" r:id="rId3"/><p:sldId id="257" r:id="rId2"/></p:sldIdLst></p:presentation>`,
		"ppt/_rels/presentation.xml.rels": rels("rId2", "slide", "slides/slide2.xml", "rId3", "slide", "slides/slide1.xml"),
		"ppt/slides/slide1.xml":           slide(`<p:pic/>`),
		"ppt/slides/slide2.xml":           slide(`<p:graphicFrame><a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/chart"/></a:graphic></p:graphicFrame>`),
	})
	got := verify.File(path, criteria(t, map[string]any{
		"min_slides": 2,
		"has_chart":  true,
		"has_image":  true,
		"has_table":  true,
	}))
	assert.Equal(t, map[string]bool{
		"min_slides": true,
		"has_chart":  true,
		"has_image":  true,
		"has_table":  false,
	}, got)
}

func TestMissingFile(t *testing.T) {
	cs := criteria(t, map[string]any{"file_valid": true, "file_created": true, "min_rows": 1})
	got := verify.File(filepath.Join(t.TempDir(), "nope.xlsx"), cs)
	assert.Equal(t, map[string]bool{"file_valid": false, "file_created": false, "min_rows": false}, got)
}

func TestCorruptPackage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a zip"), 0o644))
	rep := verify.Inspect(path, criteria(t, map[string]any{"file_valid": true, "has_table": false}))
	assert.True(t, errors.Is(rep.Err, verify.ErrNotOOXML))
	assert.Equal(t, map[string]bool{"file_valid": false, "has_table": false}, rep.Results)
}

func TestWrongPackageKind(t *testing.T) {
	path := spreadsheet(t, budgetRows, false)
	renamed := filepath.Join(filepath.Dir(path), "budget.pptx")
	require.NoError(t, os.Rename(path, renamed))
	got := verify.File(renamed, criteria(t, map[string]any{"file_valid": true}))
	assert.False(t, got["file_valid"])
}

func TestGenericFormat(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(full, []byte("a,b\n1,2\n"), 0o644))
	cs := criteria(t, map[string]any{"file_valid": true, "has_chart": true, "code_compiles": true})

	rep := verify.Inspect(full, cs)
	assert.Equal(t, map[string]bool{"file_valid": true, "has_chart": true}, rep.Results)
	assert.Equal(t, []string{"has_chart"}, rep.Assumed)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.False(t, verify.File(empty, cs)["file_valid"])
}
