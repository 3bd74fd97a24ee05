package clientapp

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/phillip-england/staffsuite/internal/apiclient"
	"github.com/phillip-england/staffsuite/internal/audit"
	"github.com/phillip-england/staffsuite/internal/employee"
	"github.com/phillip-england/staffsuite/internal/form"
	"github.com/phillip-england/staffsuite/internal/pagination"
	"github.com/phillip-england/staffsuite/internal/roster"
	"github.com/phillip-england/staffsuite/internal/table"
)

const (
	employeesPath    = "/dashboard/employee"
	recentEventLimit = 10
	maxImportErrors  = 5
)

func employeePath(id, action string) string {
	return employeesPath + "/" + url.PathEscape(id) + "/" + action
}

func employeeTable(state pagination.State) table.Table[employee.Employee] {
	listQuery := state.Query().Encode()
	return table.Table[employee.Employee]{
		Columns: []table.Column[employee.Employee]{
			{Key: "id", Header: "ID", Value: func(e employee.Employee) string { return e.ID }},
			{Key: "fullName", Header: "Full name", Value: func(e employee.Employee) string { return e.FullName }},
			{Key: "email", Header: "Email", Value: func(e employee.Employee) string { return e.Email }},
			{Key: "role", Header: "Role", Value: func(e employee.Employee) string { return e.RoleLabel() }},
			{Key: "actions", Header: "", Cell: func(e employee.Employee) template.HTML {
				edit := employeePath(e.ID, "update")
				del := employeePath(e.ID, "delete") + "?" + listQuery
				return template.HTML(fmt.Sprintf(
					`<a class="action" href="%s">Edit</a> <a class="action action-danger" href="%s">Delete</a>`,
					template.HTMLEscapeString(edit), template.HTMLEscapeString(del),
				))
			}},
		},
	}
}

func (s *server) overviewPage(w http.ResponseWriter, r *http.Request) {
	data := s.basePage(r, "Overview")
	list, err := s.roster(r.Context())
	if err != nil {
		if s.handleSessionLoss(w, r, err) {
			return
		}
		s.logWarn(r, "load roster failed", err)
		data.LoadError = apiclient.UserMessage(err)
	}
	data.EmployeeCount = len(list)

	if reader, ok := s.audit.(recentEvents); ok {
		events, err := reader.Recent(r.Context(), recentEventLimit)
		if err != nil {
			s.logWarn(r, "read audit events failed", err)
		}
		data.RecentEvents = events
	}
	s.render(w, r, s.overviewTmpl, http.StatusOK, data)
}

func (s *server) employeesPage(w http.ResponseWriter, r *http.Request) {
	state := pagination.FromQuery(r.URL.Query())
	data := s.basePage(r, "Employees")
	data.Search = state.Search
	data.PageSize = state.PageSize
	data.FilterActive = state.IsAnyFilterActive()
	base := listBase(r.URL)
	data.ResetURL = state.Reset().URL(base)
	data.ExportURL = exportURL(state)

	list, err := s.roster(r.Context())
	if err != nil {
		if s.handleSessionLoss(w, r, err) {
			return
		}
		s.logWarn(r, "load roster failed", err)
		data.LoadError = apiclient.UserMessage(err)
		s.render(w, r, s.employeesTmpl, http.StatusBadGateway, data)
		return
	}

	rows, total := employee.PageOf(list, state)
	if clamped := state.Clamp(total); clamped.Page != state.Page {
		http.Redirect(w, r, clamped.URL(base), http.StatusFound)
		return
	}
	data.Table = employeeTable(state).Render(rows, total, state, base)
	s.render(w, r, s.employeesTmpl, http.StatusOK, data)
}

// listBase drops the one-shot banner parameters so they do not follow the
// pager links.
func listBase(u *url.URL) *url.URL {
	out := *u
	q := out.Query()
	q.Del("message")
	q.Del("error")
	out.RawQuery = q.Encode()
	return &out
}

func exportURL(state pagination.State) string {
	u := url.URL{Path: employeesPath + "/export.xlsx"}
	if state.Search != "" {
		u.RawQuery = url.Values{pagination.ParamSearch: {state.Search}}.Encode()
	}
	return u.RequestURI()
}

func (s *server) formPage(r *http.Request, f employee.Form, errs form.Errors, id string) pageData {
	title := "New employee"
	action := employeesPath
	if id != "" {
		title = "Edit employee"
		action = employeePath(id, "update")
	}
	data := s.basePage(r, title)
	f.Password = ""
	data.Form = f
	data.FieldErrors = errs
	data.Roles = employee.Roles()
	data.FormAction = action
	data.IsUpdate = id != ""
	data.CancelURL = employeesPath
	if errs.General() != "" {
		data.Error = errs.General()
	}
	return data
}

func formFromRequest(r *http.Request) employee.Form {
	return employee.Form{
		FullName: r.PostFormValue("fullName"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		RoleID:   r.PostFormValue("roleId"),
	}.Normalized()
}

func (s *server) newEmployeePage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, s.formTmpl, http.StatusOK, s.formPage(r, employee.Form{}, nil, ""))
}

func (s *server) createEmployee(w http.ResponseWriter, r *http.Request) {
	f := formFromRequest(r)
	if errs := f.ValidateCreate(); errs.Any() {
		s.render(w, r, s.formTmpl, http.StatusUnprocessableEntity, s.formPage(r, f, errs, ""))
		return
	}

	if err := s.api.CreateEmployee(r.Context(), f); err != nil {
		if s.handleSessionLoss(w, r, err) {
			return
		}
		s.record(r, audit.ActionEmployeeCreate, f.Email, audit.OutcomeFailure, err.Error())
		status, errs := s.mutationErrors(r, err)
		s.render(w, r, s.formTmpl, status, s.formPage(r, f, errs, ""))
		return
	}

	s.invalidateRoster(r.Context())
	s.record(r, audit.ActionEmployeeCreate, f.Email, audit.OutcomeSuccess, "")
	redirectWith(w, r, employeesPath, "message", "Employee created.")
}

func (s *server) updateEmployeePage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := s.api.GetEmployee(r.Context(), id)
	if err != nil {
		if s.handleSessionLoss(w, r, err) {
			return
		}
		s.logWarn(r, "load employee failed", err, "employee_id", id)
		redirectWith(w, r, employeesPath, "error", apiclient.UserMessage(err))
		return
	}
	s.render(w, r, s.formTmpl, http.StatusOK, s.formPage(r, employee.FormFrom(e), nil, id))
}

func (s *server) updateEmployee(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f := formFromRequest(r)
	f.Password = ""
	if errs := f.ValidateUpdate(); errs.Any() {
		s.render(w, r, s.formTmpl, http.StatusUnprocessableEntity, s.formPage(r, f, errs, id))
		return
	}

	if err := s.api.UpdateEmployee(r.Context(), id, f); err != nil {
		if s.handleSessionLoss(w, r, err) {
			return
		}
		s.record(r, audit.ActionEmployeeUpdate, id, audit.OutcomeFailure, err.Error())
		status, errs := s.mutationErrors(r, err)
		s.render(w, r, s.formTmpl, status, s.formPage(r, f, errs, id))
		return
	}

	s.invalidateRoster(r.Context())
	s.record(r, audit.ActionEmployeeUpdate, id, audit.OutcomeSuccess, "")
	redirectWith(w, r, employeesPath, "message", "Employee updated.")
}

// mutationErrors maps a failed create or update to form errors.
func (s *server) mutationErrors(r *http.Request, err error) (int, form.Errors) {
	var verr *apiclient.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, employee.ServerErrors(verr.Fields)
	}
	s.logWarn(r, "employee mutation failed", err)
	errs := form.Errors{}
	errs.Add(form.GeneralKey, apiclient.UserMessage(err))
	return http.StatusBadGateway, errs
}

func (s *server) deleteEmployeePage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state := pagination.FromQuery(r.URL.Query())

	target, err := s.findEmployee(r, id)
	if err != nil {
		if s.handleSessionLoss(w, r, err) {
			return
		}
		s.logWarn(r, "load employee failed", err, "employee_id", id)
		redirectWith(w, r, state.URL(&url.URL{Path: employeesPath}), "error", apiclient.UserMessage(err))
		return
	}

	data := s.basePage(r, "Delete employee")
	data.Employee = target
	data.FormAction = employeePath(id, "delete")
	data.CancelURL = state.URL(&url.URL{Path: employeesPath})
	data.ListPage = state.Page
	data.PageSize = state.PageSize
	data.ListSearch = state.Search
	s.render(w, r, s.deleteTmpl, http.StatusOK, data)
}

// findEmployee prefers the cached roster and falls back to a direct fetch.
func (s *server) findEmployee(r *http.Request, id string) (employee.Employee, error) {
	if list, err := s.roster(r.Context()); err == nil {
		for _, e := range list {
			if e.ID == id {
				return e, nil
			}
		}
	} else if errors.Is(err, apiclient.ErrUnauthenticated) {
		return employee.Employee{}, err
	}
	return s.api.GetEmployee(r.Context(), id)
}

func (s *server) deleteEmployee(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state := pagination.FromQuery(url.Values{
		pagination.ParamPage:     {r.PostFormValue(pagination.ParamPage)},
		pagination.ParamPageSize: {r.PostFormValue(pagination.ParamPageSize)},
		pagination.ParamSearch:   {r.PostFormValue(pagination.ParamSearch)},
	})
	back := state.URL(&url.URL{Path: employeesPath})

	if err := s.api.DeleteEmployee(r.Context(), id); err != nil {
		if s.handleSessionLoss(w, r, err) {
			return
		}
		s.logWarn(r, "delete employee failed", err, "employee_id", id)
		s.record(r, audit.ActionEmployeeDelete, id, audit.OutcomeFailure, err.Error())
		redirectWith(w, r, back, "error", apiclient.UserMessage(err))
		return
	}

	s.invalidateRoster(r.Context())
	s.record(r, audit.ActionEmployeeDelete, id, audit.OutcomeSuccess, "")
	redirectWith(w, r, back, "message", "Employee deleted.")
}

func (s *server) exportEmployees(w http.ResponseWriter, r *http.Request) {
	list, err := s.roster(r.Context())
	if err != nil {
		if s.handleSessionLoss(w, r, err) {
			return
		}
		s.logWarn(r, "load roster failed", err)
		redirectWith(w, r, employeesPath, "error", apiclient.UserMessage(err))
		return
	}

	var buf bytes.Buffer
	if err := roster.WriteXLSX(&buf, employee.Filter(list, r.URL.Query().Get(pagination.ParamSearch))); err != nil {
		s.logWarn(r, "write roster export failed", err)
		redirectWith(w, r, employeesPath, "error", "Unable to build the export. Try again.")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="employees.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (s *server) importEmployees(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		redirectWith(w, r, employeesPath, "error", "Choose an .xlsx or .xls file to import.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		redirectWith(w, r, employeesPath, "error", "Unable to read the uploaded file.")
		return
	}
	rows, err := roster.ReadForms(header.Filename, data)
	if err != nil {
		redirectWith(w, r, employeesPath, "error", "Unable to import: "+err.Error())
		return
	}
	if len(rows) == 0 {
		redirectWith(w, r, employeesPath, "error", "The uploaded file has no employee rows.")
		return
	}

	created := 0
	var failures []string
	for _, row := range rows {
		if errs := row.Form.ValidateCreate(); errs.Any() {
			failures = append(failures, lineError(row.Line, errs))
			continue
		}
		err := s.api.CreateEmployee(r.Context(), row.Form)
		if err == nil {
			created++
			continue
		}
		if errors.Is(err, apiclient.ErrUnauthenticated) {
			if created > 0 {
				s.invalidateRoster(r.Context())
			}
			s.handleSessionLoss(w, r, err)
			return
		}
		var verr *apiclient.ValidationError
		if errors.As(err, &verr) {
			failures = append(failures, lineError(row.Line, employee.ServerErrors(verr.Fields)))
			continue
		}
		failures = append(failures, fmt.Sprintf("Line %d: %s", row.Line, apiclient.UserMessage(err)))
	}

	if created > 0 {
		s.invalidateRoster(r.Context())
	}
	outcome := audit.OutcomeSuccess
	if len(failures) > 0 {
		outcome = audit.OutcomeFailure
	}
	s.record(r, audit.ActionEmployeeImport, header.Filename, outcome, fmt.Sprintf("created=%d failed=%d", created, len(failures)))

	u := url.URL{Path: employeesPath}
	q := url.Values{}
	q.Set("message", fmt.Sprintf("Imported %d of %d employees.", created, len(rows)))
	if len(failures) > 0 {
		q.Set("error", summarizeFailures(failures))
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.RequestURI(), http.StatusSeeOther)
}

func lineError(line int, errs form.Errors) string {
	fields := errs.Fields()
	return fmt.Sprintf("Line %d: %s", line, errs.Get(fields[0]))
}

func summarizeFailures(failures []string) string {
	if len(failures) <= maxImportErrors {
		return strings.Join(failures, " ")
	}
	return strings.Join(failures[:maxImportErrors], " ") + fmt.Sprintf(" (%d more)", len(failures)-maxImportErrors)
}
