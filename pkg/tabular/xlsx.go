package tabular

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// XLSX workbooks are ZIP archives of XML parts. Only the pieces needed
// to read cell text are modeled here: the workbook's sheet list, the
// workbook relationships (sheet id -> part path), the shared-string
// pool, and the first worksheet's rows. Legacy .xls uploads are
// accepted by extension but must contain OOXML content; true binary
// BIFF files fail as malformed.

type xlsxWorkbook struct {
	Sheets struct {
		Sheet []struct {
			Name string `xml:"name,attr"`
			RID  string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
		} `xml:"sheet"`
	} `xml:"sheets"`
}

type xlsxRels struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type xlsxText struct {
	Value string `xml:",chardata"`
}

// xlsxStringItem is one <si> entry: either a plain <t> or rich-text
// runs whose <t> fragments concatenate.
type xlsxStringItem struct {
	T    *xlsxText `xml:"t"`
	Runs []struct {
		T xlsxText `xml:"t"`
	} `xml:"r"`
}

func (si xlsxStringItem) text() string {
	if si.T != nil {
		return si.T.Value
	}
	var b strings.Builder
	for _, run := range si.Runs {
		b.WriteString(run.T.Value)
	}
	return b.String()
}

type xlsxSharedStrings struct {
	Items []xlsxStringItem `xml:"si"`
}

type xlsxWorksheet struct {
	SheetData struct {
		Rows []struct {
			Cells []xlsxCell `xml:"c"`
		} `xml:"row"`
	} `xml:"sheetData"`
}

type xlsxCell struct {
	Ref    string          `xml:"r,attr"`
	Type   string          `xml:"t,attr"`
	Value  string          `xml:"v"`
	Inline *xlsxStringItem `xml:"is"`
}

// parseXLSX decodes the first worksheet of an OOXML workbook.
func parseXLSX(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrFileTooLarge, MaxFileSize)
	}
	if len(data) == 0 {
		return newTable(nil, nil), nil
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a valid workbook: %v", ErrMalformedFile, err)
	}

	sheetPath, err := firstSheetPath(zr)
	if err != nil {
		return nil, err
	}

	shared, err := readSharedStrings(zr)
	if err != nil {
		return nil, err
	}

	var sheet xlsxWorksheet
	if err := unmarshalPart(zr, sheetPath, &sheet); err != nil {
		return nil, err
	}

	var grid [][]string
	for _, row := range sheet.SheetData.Rows {
		record := make([]string, 0, len(row.Cells))
		for i, cell := range row.Cells {
			col := i
			if idx := columnIndex(cell.Ref); idx >= 0 {
				col = idx
			}
			for len(record) <= col {
				record = append(record, "")
			}
			value, err := cellText(cell, shared)
			if err != nil {
				return nil, err
			}
			record[col] = value
		}
		grid = append(grid, record)
	}

	if len(grid) == 0 {
		return newTable(nil, nil), nil
	}
	return newTable(grid[0], grid[1:]), nil
}

// firstSheetPath resolves the workbook's first sheet to its part path
// via the workbook relationships, falling back to the conventional
// location when either part is missing.
func firstSheetPath(zr *zip.Reader) (string, error) {
	const fallback = "xl/worksheets/sheet1.xml"

	var wb xlsxWorkbook
	if err := unmarshalPart(zr, "xl/workbook.xml", &wb); err != nil {
		return "", err
	}
	if len(wb.Sheets.Sheet) == 0 {
		return fallback, nil
	}

	var rels xlsxRels
	if err := unmarshalPart(zr, "xl/_rels/workbook.xml.rels", &rels); err != nil {
		return fallback, nil
	}
	for _, rel := range rels.Relationships {
		if rel.ID != wb.Sheets.Sheet[0].RID {
			continue
		}
		target := strings.TrimPrefix(rel.Target, "/")
		if !strings.HasPrefix(target, "xl/") {
			target = "xl/" + target
		}
		return target, nil
	}
	return fallback, nil
}

func readSharedStrings(zr *zip.Reader) ([]string, error) {
	var sst xlsxSharedStrings
	if err := unmarshalPart(zr, "xl/sharedStrings.xml", &sst); err != nil {
		// Workbooks without string cells omit this part entirely.
		return nil, nil
	}
	out := make([]string, len(sst.Items))
	for i, item := range sst.Items {
		out[i] = item.text()
	}
	return out, nil
}

func cellText(cell xlsxCell, shared []string) (string, error) {
	switch cell.Type {
	case "s":
		idx, err := strconv.Atoi(cell.Value)
		if err != nil || idx < 0 || idx >= len(shared) {
			return "", fmt.Errorf("%w: shared string reference %q out of range", ErrMalformedFile, cell.Value)
		}
		return shared[idx], nil
	case "inlineStr":
		if cell.Inline == nil {
			return "", nil
		}
		return cell.Inline.text(), nil
	default:
		return cell.Value, nil
	}
}

// columnIndex converts the letter prefix of an A1-style cell reference
// to a zero-based column index. Returns -1 for references without one.
func columnIndex(ref string) int {
	n := 0
	seen := false
	for _, c := range ref {
		if c >= 'A' && c <= 'Z' {
			n = n*26 + int(c-'A') + 1
			seen = true
			continue
		}
		break
	}
	if !seen {
		return -1
	}
	return n - 1
}

func unmarshalPart(zr *zip.Reader, name string, dest any) error {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
		if err := xml.Unmarshal(content, dest); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedFile, name, err)
		}
		return nil
	}
	return fmt.Errorf("%w: missing part %s", ErrMalformedFile, name)
}
