package clientapp

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/phillip-england/hrsuite/internal/apperr"
	"github.com/phillip-england/hrsuite/internal/hrapi"
	"github.com/phillip-england/hrsuite/internal/paging"
	"github.com/phillip-england/hrsuite/internal/spreadsheet"
)

const (
	employeePageSize = 10
	// Search and export work on one wide page, the way the admin list
	// filters client-side.
	employeeScanLimit = 1000
	maxImportBytes    = 10 << 20
)

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func (s *server) employeesPage(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r)
	ctx := r.Context()
	query := r.URL.Query()
	search := strings.TrimSpace(query.Get("search"))
	page := parsePositiveInt(query.Get("page"), 1)
	errMsg, msg := flash(r)

	data := pageData{Title: "Employees", Error: errMsg, Message: msg, Search: search}

	var list paging.Page[hrapi.Employee]
	var err error
	if search == "" {
		list, err = b.hr.ListEmployees(ctx, page, employeePageSize)
	} else {
		list, err = s.searchEmployees(r, search, page)
	}
	if err != nil {
		if s.handleAPIError(w, r, err) {
			return
		}
		data.Error = apperr.UserMessage(err, "Failed to fetch employees")
	}
	data.Employees = list
	data.PagerBase = employeesPagerBase(search)

	if id := strings.TrimSpace(query.Get("edit")); id != "" {
		emp, err := b.hr.GetEmployee(ctx, id)
		if err != nil {
			if s.handleAPIError(w, r, err) {
				return
			}
			data.Error = apperr.UserMessage(err, "Failed to load employee")
		} else {
			data.EditingID = emp.ID
			data.EmployeeForm = hrapi.EmployeeInput{
				Name:          emp.Name,
				Email:         emp.Email,
				Phone:         emp.Phone,
				Designation:   emp.Designation,
				Department:    emp.Department,
				DateOfJoining: emp.JoinedOn(),
			}
		}
	}
	s.render(w, r, "employees.html", data)
}

// searchEmployees filters one wide page locally and pages the matches.
func (s *server) searchEmployees(r *http.Request, search string, page int) (paging.Page[hrapi.Employee], error) {
	all, err := browserFrom(r).hr.ListEmployees(r.Context(), 1, employeeScanLimit)
	if err != nil {
		return paging.Page[hrapi.Employee]{}, err
	}
	var matches []hrapi.Employee
	for _, emp := range all.Items {
		if emp.Matches(search) {
			matches = append(matches, emp)
		}
	}
	out := paging.Page[hrapi.Employee]{Total: len(matches), Page: page, Limit: employeePageSize}
	start := (out.Current() - 1) * employeePageSize
	if start < len(matches) {
		out.Items = matches[start:min(len(matches), start+employeePageSize)]
	}
	return out, nil
}

func employeesPagerBase(search string) string {
	if search == "" {
		return "/employees"
	}
	return "/employees?" + url.Values{"search": {search}}.Encode()
}

func employeeFromForm(r *http.Request) hrapi.EmployeeInput {
	return hrapi.EmployeeInput{
		Name:          strings.TrimSpace(r.FormValue("name")),
		Email:         strings.TrimSpace(r.FormValue("email")),
		Phone:         strings.TrimSpace(r.FormValue("phone")),
		Designation:   strings.TrimSpace(r.FormValue("designation")),
		Department:    strings.TrimSpace(r.FormValue("department")),
		DateOfJoining: strings.TrimSpace(r.FormValue("dateOfJoining")),
		Password:      r.FormValue("password"),
	}
}

func (s *server) createEmployee(w http.ResponseWriter, r *http.Request) {
	in := employeeFromForm(r)
	if err := browserFrom(r).hr.CreateEmployee(r.Context(), in); err != nil {
		s.failTo(w, r, "/employees", err, "Failed to create employee")
		return
	}
	redirectWith(w, r, "/employees", "message", "Employee created")
}

func (s *server) updateEmployee(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	in := employeeFromForm(r)
	if err := browserFrom(r).hr.UpdateEmployee(r.Context(), id, in); err != nil {
		s.failTo(w, r, "/employees?edit="+url.QueryEscape(id), err, "Failed to update employee")
		return
	}
	redirectWith(w, r, "/employees", "message", "Employee updated")
}

func (s *server) deleteEmployee(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if r.FormValue("confirm") != "yes" {
		redirectWith(w, r, "/employees", "error", "Deletion was not confirmed")
		return
	}
	if err := browserFrom(r).hr.DeleteEmployee(r.Context(), id); err != nil {
		s.failTo(w, r, "/employees", err, "Failed to delete employee")
		return
	}
	redirectWith(w, r, "/employees", "message", "Employee deleted")
}

func (s *server) importEmployees(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r)
	file, header, err := r.FormFile("file")
	if err != nil {
		redirectWith(w, r, "/employees", "error", "Choose an .xls or .xlsx file to import")
		return
	}
	defer file.Close()

	rows, err := spreadsheet.ReadRows(file, header.Filename)
	if err != nil {
		s.logger.Warn("read employee import failed", "file", header.Filename, "err", err)
		redirectWith(w, r, "/employees", "error", "Could not read the spreadsheet")
		return
	}
	inputs, problems := spreadsheet.ParseEmployees(rows, r.FormValue("default_password"))

	created := 0
	for _, row := range inputs {
		if err := b.hr.CreateEmployee(r.Context(), row.Input); err != nil {
			if s.handleAPIError(w, r, err) {
				return
			}
			problems = append(problems, spreadsheet.RowError{
				Row:    row.Row,
				Reason: row.Input.Email + ": " + apperr.UserMessage(err, "rejected by the server"),
			})
			continue
		}
		created++
	}

	if len(problems) == 0 {
		redirectWith(w, r, "/employees", "message", fmt.Sprintf("Imported %d employees", created))
		return
	}

	list, err := b.hr.ListEmployees(r.Context(), 1, employeePageSize)
	if err != nil && s.handleAPIError(w, r, err) {
		return
	}
	s.render(w, r, "employees.html", pageData{
		Title:          "Employees",
		Message:        fmt.Sprintf("Imported %d employees", created),
		Error:          fmt.Sprintf("%d rows were skipped", len(problems)),
		Employees:      list,
		PagerBase:      "/employees",
		ImportProblems: problems,
	})
}

func (s *server) exportEmployees(w http.ResponseWriter, r *http.Request) {
	list, err := browserFrom(r).hr.ListEmployees(r.Context(), 1, employeeScanLimit)
	if err != nil {
		s.failTo(w, r, "/employees", err, "Failed to export employees")
		return
	}
	writeWorkbookHeaders(w, "employees.xlsx")
	if err := spreadsheet.WriteEmployees(w, list.Items); err != nil {
		s.logger.Error("write employee workbook failed", "err", err)
	}
}
