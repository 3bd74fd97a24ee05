// Package roster converts employee lists to and from spreadsheets.
package roster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/phillip-england/staffsuite/internal/employee"
)

const SheetName = "Employees"

// maxImportRows caps how many rows are read from a legacy workbook.
const maxImportRows = 100000

var exportHeader = []any{"ID", "Full name", "Email", "Role"}

func WriteXLSX(w io.Writer, list []employee.Employee) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, "A1", &exportHeader); err != nil {
		return err
	}
	for i, e := range list {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{e.ID, e.FullName, e.Email, e.RoleLabel()}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SheetName, "B", "C", 32); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}

// Row is one data line of an import, numbered as the spreadsheet shows it.
type Row struct {
	Line int
	Form employee.Form
}

var headerAliases = map[string]string{
	"full name": "fullName",
	"fullname":  "fullName",
	"name":      "fullName",
	"email":     "email",
	"e-mail":    "email",
	"password":  "password",
	"role":      "roleId",
	"role id":   "roleId",
	"roleid":    "roleId",
}

// ReadForms parses an uploaded workbook. The first row must name the full
// name and email columns; password and role are optional. Rows with every
// cell blank are skipped. Roles may be given as id or label; anything else is
// passed through so validation can report it.
func ReadForms(filename string, data []byte) ([]Row, error) {
	rows, err := readRows(filename, data)
	if err != nil {
		return nil, err
	}

	index := map[string]int{}
	for i, header := range rows[0] {
		if field, ok := headerAliases[normalizeHeader(header)]; ok {
			if _, seen := index[field]; !seen {
				index[field] = i
			}
		}
	}
	for _, required := range []string{"fullName", "email"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing required column: %s", required)
		}
	}
	col := func(field string) int {
		if i, ok := index[field]; ok {
			return i
		}
		return -1
	}

	var out []Row
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		role := cellValue(row, col("roleId"))
		if id, ok := employee.ParseRole(role); ok {
			role = id
		}
		out = append(out, Row{
			Line: i + 2,
			Form: employee.Form{
				FullName: cellValue(row, col("fullName")),
				Email:    cellValue(row, col("email")),
				Password: cellValue(row, col("password")),
				RoleID:   role,
			},
		})
	}
	return out, nil
}

// readRows returns the cells of the workbook's only sheet, header first.
func readRows(filename string, data []byte) ([][]string, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.EqualFold(filepath.Ext(filename), ".xls") {
		rows, err = readLegacySheet(data)
	} else {
		rows, err = readSheet(data)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errEmptySheet
	}
	return rows, nil
}

var (
	errNoSheet    = errors.New("workbook has no sheets")
	errEmptySheet = errors.New("sheet is empty")
)

func readLegacySheet(data []byte) ([][]string, error) {
	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	switch n := book.NumSheets(); {
	case n == 0:
		return nil, errNoSheet
	case n > 1:
		return nil, fmt.Errorf("workbook has %d sheets; upload one with a single sheet", n)
	}
	return book.ReadAllCells(maxImportRows), nil
}

func readSheet(data []byte) ([][]string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = book.Close() }()

	name := book.GetSheetName(0)
	if name == "" {
		return nil, errNoSheet
	}
	return book.GetRows(name)
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
