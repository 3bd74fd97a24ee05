package employee

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/phillip-england/staffsuite/internal/form"
	"github.com/phillip-england/staffsuite/internal/pagination"
)

const (
	RoleAdministrator = "1"
	RoleUser          = "2"
)

type Role struct {
	ID    string
	Label string
}

var roles = []Role{
	{ID: RoleAdministrator, Label: "Administrator"},
	{ID: RoleUser, Label: "User"},
}

func Roles() []Role {
	return append([]Role(nil), roles...)
}

func ValidRole(id string) bool {
	_, ok := RoleLabel(id)
	return ok
}

func RoleLabel(id string) (string, bool) {
	id = strings.TrimSpace(id)
	for _, r := range roles {
		if r.ID == id {
			return r.Label, true
		}
	}
	return "", false
}

// ParseRole accepts a role id or its label, case-insensitively.
func ParseRole(value string) (string, bool) {
	value = strings.TrimSpace(value)
	for _, r := range roles {
		if r.ID == value || strings.EqualFold(r.Label, value) {
			return r.ID, true
		}
	}
	return "", false
}

type Employee struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	RoleID   string `json:"roleId"`
}

func (e Employee) RoleLabel() string {
	if label, ok := RoleLabel(e.RoleID); ok {
		return label
	}
	return e.RoleID
}

// UnmarshalJSON accepts ids and role ids as JSON numbers or strings.
func (e *Employee) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		FullName string          `json:"fullName"`
		Email    string          `json:"email"`
		RoleID   json.RawMessage `json:"roleId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := scalarString(raw.ID)
	if err != nil {
		return fmt.Errorf("decode employee id: %w", err)
	}
	roleID, err := scalarString(raw.RoleID)
	if err != nil {
		return fmt.Errorf("decode employee roleId: %w", err)
	}
	*e = Employee{ID: id, FullName: raw.FullName, Email: raw.Email, RoleID: roleID}
	return nil
}

func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

// Filter keeps employees whose name or email contains search.
func Filter(list []Employee, search string) []Employee {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return list
	}
	out := make([]Employee, 0, len(list))
	for _, e := range list {
		if strings.Contains(strings.ToLower(e.FullName), needle) || strings.Contains(strings.ToLower(e.Email), needle) {
			out = append(out, e)
		}
	}
	return out
}

// PageOf selects the rows of the page described by state from the full
// roster, returning them with the filtered total.
func PageOf(list []Employee, state pagination.State) ([]Employee, int) {
	filtered := Filter(list, state.Search)
	total := len(filtered)
	state = state.Clamp(total)
	start := state.Offset()
	if start >= total {
		return []Employee{}, total
	}
	end := min(start+state.PageSize, total)
	return filtered[start:end], total
}

type Form struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	RoleID   string `json:"roleId"`
}

func (f Form) Normalized() Form {
	f.FullName = strings.TrimSpace(f.FullName)
	f.Email = strings.TrimSpace(f.Email)
	f.RoleID = strings.TrimSpace(f.RoleID)
	return f
}

func FormFrom(e Employee) Form {
	return Form{FullName: e.FullName, Email: e.Email, RoleID: e.RoleID}
}

func (f Form) ValidateCreate() form.Errors {
	errs := f.validateCommon()
	if !form.MinLen(f.Password, 6) {
		errs.Add("password", "Password must be at least 6 characters.")
	}
	return errs
}

func (f Form) ValidateUpdate() form.Errors {
	return f.validateCommon()
}

func (f Form) validateCommon() form.Errors {
	f = f.Normalized()
	errs := form.Errors{}
	if !form.MinLen(f.FullName, 2) {
		errs.Add("fullName", "Name must be at least 2 characters.")
	}
	if !form.ValidEmail(f.Email) {
		errs.Add("email", "Please enter a valid email.")
	}
	if f.RoleID == "" {
		errs.Add("roleId", "Please select a role.")
	} else if !ValidRole(f.RoleID) {
		errs.Add("roleId", "Unknown role.")
	}
	return errs
}

// ServerErrors attaches remote validation failures to form fields.
func ServerErrors(fields []form.FieldError) form.Errors {
	errs := form.Errors{}
	for _, fe := range fields {
		switch {
		case fe.Field == "email" && fe.Rule == "database.unique":
			errs.Add("email", "Email is already in use. Try another one.")
		case fe.Message == "":
			errs.Add(knownField(fe.Field), "Unknown error.")
		default:
			errs.Add(knownField(fe.Field), fe.Message)
		}
	}
	return errs
}

func knownField(name string) string {
	switch name {
	case "fullName", "email", "password", "roleId":
		return name
	default:
		return form.GeneralKey
	}
}
