package roster

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/phillip-england/staffsuite/internal/employee"
)

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	list := []employee.Employee{
		{ID: "1", FullName: "Ana Souza", Email: "ana@example.com", RoleID: employee.RoleAdministrator},
		{ID: "2", FullName: "Bia Lima", Email: "bia@example.com", RoleID: employee.RoleUser},
	}
	if err := WriteXLSX(&buf, list); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(rows))
	}
	if rows[0][1] != "Full name" || rows[1][3] != "Administrator" || rows[2][2] != "bia@example.com" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestReadForms(t *testing.T) {
	data := workbook(t, [][]any{
		{"Email", "Full Name", "Password", "Role"},
		{"ana@example.com", "Ana Souza", "secret1", "Administrator"},
		{"", "", "", ""},
		{"bia@example.com", " Bia Lima ", "secret2", "2"},
		{"cai@example.com", "Cai", "secret3", "owner"},
	})

	rows, err := ReadForms("people.xlsx", data)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected blank row to be skipped, got %d rows", len(rows))
	}
	if rows[0].Line != 2 || rows[0].Form.RoleID != employee.RoleAdministrator {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
	if rows[1].Line <= rows[0].Line || rows[1].Form.FullName != "Bia Lima" || rows[1].Form.RoleID != employee.RoleUser {
		t.Fatalf("unexpected second row %+v", rows[1])
	}
	if rows[2].Form.RoleID != "owner" || !rows[2].Form.ValidateCreate().Has("roleId") {
		t.Fatalf("expected unknown role to reach validation, got %+v", rows[2])
	}
}

func TestReadFormsRequiresHeader(t *testing.T) {
	data := workbook(t, [][]any{{"Name", "Phone"}, {"Ana", "123"}})
	if _, err := ReadForms("people.xlsx", data); err == nil {
		t.Fatalf("expected missing email column error")
	}
}

func TestReadFormsRejectsGarbage(t *testing.T) {
	if _, err := ReadForms("people.xls", []byte("not a workbook")); err == nil {
		t.Fatalf("expected xls parse error")
	}
	if _, err := ReadForms("people.xlsx", []byte("not a workbook")); err == nil {
		t.Fatalf("expected xlsx parse error")
	}
}
