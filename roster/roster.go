// Package roster reads the tutor and student tables from an Excel workbook.
//
// The workbook holds three sheets, each with a header row naming its columns.
// Column order is free and blank rows are skipped. Every column lookup happens
// here; the rest of the program only sees the typed records of package allocation.
package roster

import (
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/yaproro/Tutor-Student-Assignment-Optimization/allocation"
)

const (
	NewStudentsSheet      = "New Students"
	ExistingStudentsSheet = "Existing Students"
	TutorsSheet           = "Tutor Information"
)

const (
	colStudentID     = "studentId"
	colNeed          = "tutoringNeed"
	colCentre        = "tuitionCentre"
	colTutorID       = "tutorId"
	colActive        = "active"
	colSkill         = "tutoringSkills"
	colPrefCentre1   = "preferredCentre1"
	colPrefCentre2   = "preferredCentre2"
	colTutorCapacity = "maxOverallCapacity"
)

var (
	ErrMissingSheet  = errors.New("missing sheet")
	ErrMissingColumn = errors.New("missing column")
	ErrInvalidCell   = errors.New("invalid cell")
)

// Load reads the roster from the workbook at path.
func Load(path string) (allocation.Roster, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return allocation.Roster{}, errors.Wrapf(err, "opening workbook %s", path)
	}
	defer f.Close()

	r, err := readWorkbook(f)
	if err != nil {
		return allocation.Roster{}, errors.Wrapf(err, "reading %s", path)
	}
	return r, nil
}

// Read reads the roster from a workbook held in r.
func Read(r io.Reader) (allocation.Roster, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return allocation.Roster{}, errors.Wrap(err, "opening workbook")
	}
	defer f.Close()

	return readWorkbook(f)
}

func readWorkbook(f *excelize.File) (allocation.Roster, error) {
	newRows, err := readSheet(f, NewStudentsSheet, colStudentID, colNeed, colCentre)
	if err != nil {
		return allocation.Roster{}, err
	}
	tutorRows, err := readSheet(f, TutorsSheet, colTutorID, colSkill, colPrefCentre1, colPrefCentre2, colTutorCapacity)
	if err != nil {
		return allocation.Roster{}, err
	}
	existingRows, err := readSheet(f, ExistingStudentsSheet, colStudentID, colNeed, colCentre, colTutorID, colActive)
	if err != nil {
		return allocation.Roster{}, err
	}

	var r allocation.Roster
	for _, rec := range newRows {
		r.NewStudents = append(r.NewStudents, allocation.NewStudent{
			ID:     rec.get(colStudentID),
			Need:   rec.get(colNeed),
			Centre: rec.get(colCentre),
		})
	}

	inactive := 0
	for _, rec := range existingRows {
		active, err := rec.flag(colActive)
		if err != nil {
			return allocation.Roster{}, err
		}
		if !active {
			inactive++
			continue
		}
		r.ExistingStudents = append(r.ExistingStudents, allocation.ExistingStudent{
			ID:      rec.get(colStudentID),
			Need:    rec.get(colNeed),
			Centre:  rec.get(colCentre),
			TutorID: rec.get(colTutorID),
		})
	}

	for _, rec := range tutorRows {
		capacity, err := rec.integer(colTutorCapacity)
		if err != nil {
			return allocation.Roster{}, err
		}
		r.Tutors = append(r.Tutors, allocation.Tutor{
			ID:          rec.get(colTutorID),
			Skill:       rec.get(colSkill),
			PrefCentre1: rec.get(colPrefCentre1),
			PrefCentre2: rec.get(colPrefCentre2),
			Capacity:    capacity,
		})
	}

	logrus.WithFields(logrus.Fields{
		"newStudents":      len(r.NewStudents),
		"existingStudents": len(r.ExistingStudents),
		"inactiveSkipped":  inactive,
		"tutors":           len(r.Tutors),
	}).Debug("Read roster workbook")

	return r, nil
}

// record is one data row of a sheet.
type record struct {
	sheet   string
	line    int
	cells   []string
	columns map[string]int
}

func (r record) get(column string) string {
	idx := r.columns[column]
	// excelize trims trailing empty cells
	if idx >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[idx])
}

func (r record) invalid(column, value, want string) error {
	return errors.Wrapf(ErrInvalidCell, "sheet %q row %d column %q: %q is not %s", r.sheet, r.line, column, value, want)
}

// integer parses a count. Values outside [0, math.MaxInt32] are rejected before the conversion.
func (r record) integer(column string) (int, error) {
	v := r.get(column)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, r.invalid(column, v, "an integer")
	}
	if f < 0 || f > math.MaxInt32 {
		return 0, r.invalid(column, v, "a count between 0 and 2147483647")
	}
	return int(f), nil
}

func (r record) flag(column string) (bool, error) {
	v := r.get(column)
	switch strings.ToLower(v) {
	case "", "n", "no":
		return false, nil
	case "y", "yes":
		return true, nil
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b, nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f != 0, nil
	}
	return false, r.invalid(column, v, "a boolean")
}

// readSheet returns the non-blank data rows of a sheet after checking that its
// header names every required column.
func readSheet(f *excelize.File, sheet string, required ...string) ([]record, error) {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, errors.Wrapf(ErrMissingSheet, "%q", sheet)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %q", sheet)
	}

	columns := make(map[string]int)
	if len(rows) > 0 {
		for i, name := range rows[0] {
			name = strings.TrimSpace(name)
			if _, dup := columns[name]; !dup && name != "" {
				columns[name] = i
			}
		}
	}
	for _, c := range required {
		if _, ok := columns[c]; !ok {
			return nil, errors.Wrapf(ErrMissingColumn, "%q in sheet %q", c, sheet)
		}
	}

	var records []record
	for i := 1; i < len(rows); i++ {
		if isBlank(rows[i]) {
			continue
		}
		records = append(records, record{
			sheet:   sheet,
			line:    i + 1,
			cells:   rows[i],
			columns: columns,
		})
	}
	return records, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
