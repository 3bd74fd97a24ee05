package employee

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/phillip-england/staffsuite/internal/form"
	"github.com/phillip-england/staffsuite/internal/pagination"
)

func TestUnmarshalAcceptsNumericIDs(t *testing.T) {
	var e Employee
	if err := json.Unmarshal([]byte(`{"id":42,"fullName":"Ana Souza","email":"ana@example.com","roleId":1}`), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.ID != "42" || e.RoleID != "1" {
		t.Fatalf("expected string ids, got id=%q roleId=%q", e.ID, e.RoleID)
	}
	if e.RoleLabel() != "Administrator" {
		t.Fatalf("unexpected role label %q", e.RoleLabel())
	}
}

func TestUnmarshalAcceptsStringIDs(t *testing.T) {
	var e Employee
	if err := json.Unmarshal([]byte(`{"id":"a1","fullName":"B","email":"b@example.com","roleId":"2","password":"x"}`), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.ID != "a1" || e.RoleID != "2" {
		t.Fatalf("unexpected employee %+v", e)
	}
}

func TestValidateCreateRejectsBadEmail(t *testing.T) {
	f := Form{FullName: "Ana Souza", Email: "not-an-email", Password: "secret1", RoleID: RoleUser}
	errs := f.ValidateCreate()
	if !errs.Has("email") {
		t.Fatalf("expected email error, got %v", errs)
	}
	if len(errs) != 1 {
		t.Fatalf("expected only the email error, got %v", errs)
	}
}

func TestValidateCreateRequiresEveryField(t *testing.T) {
	errs := Form{}.ValidateCreate()
	for _, field := range []string{"fullName", "email", "password", "roleId"} {
		if !errs.Has(field) {
			t.Fatalf("expected %s error, got %v", field, errs)
		}
	}
}

func TestValidateUpdateIgnoresPassword(t *testing.T) {
	errs := Form{FullName: "Ana", Email: "ana@example.com", RoleID: RoleAdministrator}.ValidateUpdate()
	if errs.Any() {
		t.Fatalf("expected valid update form, got %v", errs)
	}
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	errs := Form{FullName: "Ana", Email: "ana@example.com", RoleID: "9"}.ValidateUpdate()
	if !errs.Has("roleId") {
		t.Fatalf("expected role error")
	}
}

func TestServerErrorsMapsUniqueEmail(t *testing.T) {
	errs := ServerErrors([]form.FieldError{
		{Field: "email", Rule: "database.unique", Message: "unique validation failure"},
		{Field: "fullName", Rule: "minLength", Message: "too short"},
		{Field: "tenant", Rule: "required"},
	})
	if errs.Get("email") != "Email is already in use. Try another one." {
		t.Fatalf("unexpected email message %q", errs.Get("email"))
	}
	if errs.Get("fullName") != "too short" {
		t.Fatalf("unexpected fullName message %q", errs.Get("fullName"))
	}
	if errs.General() != "Unknown error." {
		t.Fatalf("expected unknown field to land on general key, got %q", errs.General())
	}
}

func TestParseRole(t *testing.T) {
	for input, want := range map[string]string{"1": "1", "administrator": "1", " User ": "2"} {
		got, ok := ParseRole(input)
		if !ok || got != want {
			t.Fatalf("ParseRole(%q) = %q,%v want %q", input, got, ok, want)
		}
	}
	if _, ok := ParseRole("owner"); ok {
		t.Fatalf("expected unknown role to fail")
	}
}

func roster(n int) []Employee {
	out := make([]Employee, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Employee{ID: fmt.Sprint(i), FullName: fmt.Sprintf("Person %02d", i), Email: fmt.Sprintf("p%d@example.com", i)})
	}
	return out
}

func TestPageOf(t *testing.T) {
	rows, total := PageOf(roster(25), pagination.State{Page: 3, PageSize: 10})
	if total != 25 || len(rows) != 5 || rows[0].ID != "21" {
		t.Fatalf("unexpected page: total=%d rows=%d first=%+v", total, len(rows), rows)
	}
}

func TestPageOfFiltersBeforePaging(t *testing.T) {
	list := roster(25)
	list[3].FullName = "Maria Silva"
	list[17].Email = "MARIA@corp.example"

	rows, total := PageOf(list, pagination.State{Page: 1, PageSize: 10, Search: "maria"})
	if total != 2 || len(rows) != 2 {
		t.Fatalf("expected two matches, got total=%d rows=%d", total, len(rows))
	}
}

func TestPageOfEmpty(t *testing.T) {
	rows, total := PageOf(nil, pagination.Default())
	if total != 0 || len(rows) != 0 {
		t.Fatalf("expected empty page")
	}
}
