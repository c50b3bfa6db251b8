// Package spreadsheet moves employee and attendance lists in and out of
// Excel workbooks.
package spreadsheet

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/phillip-england/hrsuite/internal/apperr"
	"github.com/phillip-england/hrsuite/internal/attendance"
	"github.com/phillip-england/hrsuite/internal/hrapi"
	"github.com/xuri/excelize/v2"
)

const maxRows = 5000

// ReadRows returns every row of the single worksheet in an .xls or .xlsx
// upload.
func ReadRows(reader io.Reader, filename string) ([][]string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls":
		workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, err
		}
		if workbook.NumSheets() == 0 {
			return nil, fmt.Errorf("no worksheet found")
		}
		if workbook.NumSheets() > 1 {
			return nil, fmt.Errorf("multiple worksheets found; please upload a file with a single sheet")
		}
		rows := workbook.ReadAllCells(maxRows)
		if len(rows) == 0 {
			return nil, fmt.Errorf("worksheet is empty")
		}
		return rows, nil
	case ".xlsx":
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = file.Close() }()

		sheetName := file.GetSheetName(0)
		if sheetName == "" {
			return nil, fmt.Errorf("no worksheet found")
		}
		rows, err := file.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("worksheet is empty")
		}
		if len(rows) > maxRows {
			rows = rows[:maxRows]
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported file type %q; upload .xls or .xlsx", filepath.Ext(filename))
	}
}

// RowError describes one spreadsheet row that could not be used.
type RowError struct {
	Row    int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

var employeeHeaders = map[string]string{
	"name":            "name",
	"full name":       "name",
	"email":           "email",
	"email address":   "email",
	"phone":           "phone",
	"phone number":    "phone",
	"designation":     "designation",
	"title":           "designation",
	"department":      "department",
	"date of joining": "dateOfJoining",
	"joining date":    "dateOfJoining",
	"dateofjoining":   "dateOfJoining",
	"password":        "password",
}

// EmployeeRow is a usable employee read from sheet row Row.
type EmployeeRow struct {
	Row   int
	Input hrapi.EmployeeInput
}

// ParseEmployees maps rows (header first) onto employee inputs. Rows that
// fail validation are reported and skipped; blank rows are ignored.
func ParseEmployees(rows [][]string, defaultPassword string) ([]EmployeeRow, []RowError) {
	if len(rows) == 0 {
		return nil, []RowError{{Row: 1, Reason: "missing header row"}}
	}
	index := map[string]int{}
	for i, header := range rows[0] {
		if field, ok := employeeHeaders[normalizeHeader(header)]; ok {
			if _, seen := index[field]; !seen {
				index[field] = i
			}
		}
	}
	if _, ok := index["name"]; !ok {
		return nil, []RowError{{Row: 1, Reason: "missing name column"}}
	}
	if _, ok := index["email"]; !ok {
		return nil, []RowError{{Row: 1, Reason: "missing email column"}}
	}

	var out []EmployeeRow
	var problems []RowError
	for i, row := range rows[1:] {
		rowNum := i + 2
		if rowIsBlank(row) {
			continue
		}
		in := hrapi.EmployeeInput{
			Name:        cell(row, index, "name"),
			Email:       cell(row, index, "email"),
			Phone:       cell(row, index, "phone"),
			Designation: cell(row, index, "designation"),
			Department:  cell(row, index, "department"),
			Password:    cell(row, index, "password"),
		}
		if raw := cell(row, index, "dateOfJoining"); raw != "" {
			date, ok := normalizeDate(raw)
			if !ok {
				problems = append(problems, RowError{Row: rowNum, Reason: fmt.Sprintf("unrecognized date of joining %q", raw)})
				continue
			}
			in.DateOfJoining = date
		}
		if in.Password == "" {
			in.Password = defaultPassword
		}
		if err := in.Validate(true); err != nil {
			problems = append(problems, RowError{Row: rowNum, Reason: apperr.UserMessage(err, err.Error())})
			continue
		}
		out = append(out, EmployeeRow{Row: rowNum, Input: in})
	}
	return out, problems
}

// WriteEmployees writes employees as a single-sheet workbook.
func WriteEmployees(w io.Writer, employees []hrapi.Employee) error {
	header := []any{"Name", "Email", "Phone", "Designation", "Department", "Date of Joining"}
	rows := make([][]any, 0, len(employees))
	for _, e := range employees {
		rows = append(rows, []any{e.Name, e.Email, e.Phone, e.Designation, e.Department, e.JoinedOn()})
	}
	return writeSheet(w, "Employees", header, rows)
}

// WriteAttendance writes attendance records as a single-sheet workbook.
// Times are rendered in loc.
func WriteAttendance(w io.Writer, days []attendance.Day, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	header := []any{"Date", "Employee", "Check In", "Check In Within Radius", "Check Out", "Check Out Within Radius"}
	rows := make([][]any, 0, len(days))
	for _, d := range days {
		rows = append(rows, []any{
			d.Date,
			employeeLabel(d),
			punchTime(d.CheckIn, loc),
			punchWithin(d.CheckIn),
			punchTime(d.CheckOut, loc),
			punchWithin(d.CheckOut),
		})
	}
	return writeSheet(w, "Attendance", header, rows)
}

func writeSheet(w io.Writer, name string, header []any, rows [][]any) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", name); err != nil {
		return err
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}
	for i, row := range rows {
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, axis, &row); err != nil {
			return err
		}
	}
	if err := f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}

func employeeLabel(d attendance.Day) string {
	if d.Employee == nil {
		return ""
	}
	return d.EmployeeName()
}

func punchTime(p *attendance.Punch, loc *time.Location) string {
	if p == nil || p.Time.IsZero() {
		return ""
	}
	return p.Time.In(loc).Format("15:04:05")
}

func punchWithin(p *attendance.Punch) string {
	if p == nil {
		return ""
	}
	if p.WithinRadius {
		return "Yes"
	}
	return "No"
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

func cell(row []string, index map[string]int, field string) string {
	idx, ok := index[field]
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func rowIsBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func normalizeDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}

	// Excel stores dates as day serials; restrict to 1954..2119 so a bare
	// year is not mistaken for one.
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		if serial >= 20000 && serial <= 80000 {
			if parsed, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return parsed.Format("2006-01-02"), true
			}
		}
		return "", false
	}

	layouts := []string{
		"2006-01-02",
		"1/2/2006",
		"01/02/2006",
		"1-2-2006",
		"01-02-2006",
		"2006/01/02",
		"Jan 2, 2006",
		"2 Jan 2006",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.Format("2006-01-02"), true
		}
	}
	return "", false
}
