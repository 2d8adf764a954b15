// pbc: Poisson Binomial Comorbidity network inference
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

package app

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"pbc/comorbidity"
)

// The pbc program has 2 data inputs, both produced by the upstream data cleaning:
// A cohort table with one row per dog: a dog ID, the covariates, one 0/1 column per disease code, and optionally per
// disease code a <code>_year and <code>_month column with the date of the diagnosis.
// A crosswalk table mapping disease code -> name, category and prevalence count.
// Tables are CSV files, tab separated files (.tsv, .tab), or Excel workbooks (.xlsx, first sheet).

// Sentinel errors wrapped by InputError.
var (
	ErrMissingColumn = errors.New("missing column")
	ErrInvalidValue  = errors.New("invalid value")
	ErrEmptyTable    = errors.New("table has no header")
)

// InputError reports a fatal problem with an input table. Row is the 1-based line number in the table, 0 when the
// problem is not specific to a row.
type InputError struct {
	File   string
	Column string
	Row    int
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	s := e.File
	if e.Column != "" {
		s = fmt.Sprintf("%s: column %s", s, e.Column)
	}
	if e.Row > 0 {
		s = fmt.Sprintf("%s: row %d", s, e.Row)
	}
	return fmt.Sprintf("%s: %v: %s", s, e.Err, e.Reason)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// table is a parsed input table.
type table struct {
	file   string
	header []string
	index  map[string]int // column name -> position
	rows   [][]string
}

// column returns the position of a column, or a missing column error.
func (t *table) column(name string) (int, error) {
	if i, ok := t.index[name]; ok {
		return i, nil
	}
	return -1, &InputError{File: t.file, Column: name, Err: ErrMissingColumn, Reason: "not in table header"}
}

// cell returns the trimmed value of a cell. Short rows, as returned for xlsx files with empty trailing cells, are
// padded with empty values.
func (t *table) cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func newTable(file string, records [][]string) (*table, error) {
	if len(records) == 0 {
		return nil, &InputError{File: file, Err: ErrEmptyTable, Reason: "no rows"}
	}
	t := &table{file: file, index: map[string]int{}, rows: records[1:]}
	for i, name := range records[0] {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		t.header = append(t.header, name)
		if _, ok := t.index[name]; ok {
			return nil, &InputError{File: file, Column: name, Err: ErrInvalidValue, Reason: "duplicate column"}
		}
		t.index[name] = i
	}
	return t, nil
}

// readDelimitedTable reads a CSV or tab file.
func readDelimitedTable(file string, comma rune) (*table, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.Comma = comma
	reader.FieldsPerRecord = 0
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return newTable(file, records)
}

// readExcelTable reads the first sheet of an Excel workbook.
func readExcelTable(file string) (*table, error) {
	f, err := excelize.OpenFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file %s: %w", file, err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &InputError{File: file, Err: ErrEmptyTable, Reason: "no sheets"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s of %s: %w", sheets[0], file, err)
	}
	return newTable(file, rows)
}

// readTable reads an input table, choosing the format from the file extension.
func readTable(file string) (*table, error) {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".xlsx":
		return readExcelTable(file)
	case ".tsv", ".tab":
		return readDelimitedTable(file, '\t')
	default:
		return readDelimitedTable(file, ',')
	}
}

// isMissing tells whether a cell value stands for a missing value.
func isMissing(value string) bool {
	switch value {
	case "", "NA", "na", "NaN", "nan", "null", "NULL":
		return true
	}
	return false
}

// parseCrosswalk reads the disease crosswalk. Only the code column is required. Codes are listed in file order.
func parseCrosswalk(file string) ([]*comorbidity.Disease, error) {
	t, err := readTable(file)
	if err != nil {
		return nil, err
	}
	codeColumn, err := t.column("code")
	if err != nil {
		return nil, err
	}
	optional := func(name string) int {
		if i, ok := t.index[name]; ok {
			return i
		}
		return -1
	}
	nameColumn, categoryColumn, countColumn := optional("name"), optional("category"), optional("count")
	var diseases []*comorbidity.Disease
	seen := map[string]bool{}
	for r, row := range t.rows {
		code := t.cell(row, codeColumn)
		if code == "" {
			continue
		}
		if seen[code] {
			return nil, &InputError{File: file, Column: "code", Row: r + 2, Err: ErrInvalidValue,
				Reason: fmt.Sprintf("duplicate disease code %q", code)}
		}
		seen[code] = true
		d := &comorbidity.Disease{Code: code}
		if nameColumn >= 0 {
			d.Name = t.cell(row, nameColumn)
		}
		if categoryColumn >= 0 {
			d.Category = t.cell(row, categoryColumn)
		}
		if countColumn >= 0 {
			if value := t.cell(row, countColumn); !isMissing(value) {
				if d.Count, err = parseInt(value); err != nil {
					return nil, &InputError{File: file, Column: "count", Row: r + 2, Err: ErrInvalidValue,
						Reason: fmt.Sprintf("count %q is not an integer", value)}
				}
			}
		}
		diseases = append(diseases, d)
	}
	log.Info("Parsed ", len(diseases), " diseases from crosswalk ", file)
	return diseases, nil
}

// diseaseColumns holds the positions of the columns of one disease in the cohort table.
type diseaseColumns struct {
	flag, year, month int // -1 when absent
}

// parseInt parses an integer cell. Spreadsheets may store integers as floats, e.g. 2020.0.
func parseInt(value string) (int, error) {
	if i, err := strconv.Atoi(value); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", value)
	}
	return int(f), nil
}

// parseDiagnosisDate parses the year and month cells of a diagnosis. Missing cells, and a zero year or month as
// written by zero imputation, yield the zero date.
func parseDiagnosisDate(year, month string) (comorbidity.DiagnosisDate, error) {
	if isMissing(year) || isMissing(month) {
		return comorbidity.DiagnosisDate{}, nil
	}
	y, err := parseInt(year)
	if err != nil {
		return comorbidity.DiagnosisDate{}, fmt.Errorf("diagnosis year %w", err)
	}
	m, err := parseInt(month)
	if err != nil {
		return comorbidity.DiagnosisDate{}, fmt.Errorf("diagnosis month %w", err)
	}
	date := comorbidity.DiagnosisDate{Year: y, Month: m}
	switch {
	case date.Valid():
		return date, nil
	case y == 0 || m == 0:
		return comorbidity.DiagnosisDate{}, nil
	default:
		return comorbidity.DiagnosisDate{}, fmt.Errorf("diagnosis date %d-%d out of range", y, m)
	}
}

// parseFlag parses a 0/1 disease flag.
func parseFlag(value string) (bool, error) {
	f, err := strconv.ParseFloat(value, 64)
	switch {
	case err != nil || (f != 0 && f != 1):
		return false, fmt.Errorf("disease flag %q is not 0 or 1", value)
	default:
		return f == 1, nil
	}
}

// ParseCohortData reads the cohort table and the crosswalk of an experiment. It returns the cohort restricted to the
// selected stratum and to the diseases that reach the inclusion floor in that stratum, together with the crosswalk
// diseases left out. All problems with the input tables are fatal.
func ParseCohortData(params *ExperimentParams) (*comorbidity.Cohort, []comorbidity.ExcludedUnit, error) {
	crosswalk, err := parseCrosswalk(params.CrosswalkFile)
	if err != nil {
		return nil, nil, err
	}
	t, err := readTable(params.CohortFile)
	if err != nil {
		return nil, nil, err
	}
	file := params.CohortFile
	idColumn, err := t.column(params.IDColumn)
	if err != nil {
		return nil, nil, err
	}
	covariateColumns := make([]int, len(params.Covariates))
	for j, name := range params.Covariates {
		if covariateColumns[j], err = t.column(name); err != nil {
			return nil, nil, err
		}
	}
	// diseases of the crosswalk without a column in the table are left out
	var excluded []comorbidity.ExcludedUnit
	var diseases []*comorbidity.Disease
	var columns []diseaseColumns
	nonAttributes := map[int]bool{}
	for _, d := range crosswalk {
		flag, ok := t.index[d.Code]
		if !ok {
			log.WithFields(log.Fields{"disease": d.Code}).Warn("crosswalk disease not in cohort table, left out")
			excluded = append(excluded, comorbidity.ExcludedUnit{Stage: comorbidity.StageLoad, Unit: d.Code,
				Reason: "not in cohort table"})
			continue
		}
		dc := diseaseColumns{flag: flag, year: -1, month: -1}
		nonAttributes[flag] = true
		if i, ok := t.index[d.Code+params.YearSuffix]; ok {
			dc.year = i
			nonAttributes[i] = true
		}
		if i, ok := t.index[d.Code+params.MonthSuffix]; ok {
			dc.month = i
			nonAttributes[i] = true
		}
		diseases = append(diseases, d)
		columns = append(columns, dc)
	}
	var attributeColumns []string
	for i, name := range t.header {
		if !nonAttributes[i] {
			attributeColumns = append(attributeColumns, name)
		}
	}
	filters, err := GetSubjectFilters(params.Analysis, attributeColumns)
	if err != nil {
		return nil, nil, err
	}
	subjects := make([]*comorbidity.Subject, 0, len(t.rows))
	seen := map[string]bool{}
	for r, row := range t.rows {
		line := r + 2
		id := t.cell(row, idColumn)
		if id == "" {
			return nil, nil, &InputError{File: file, Column: params.IDColumn, Row: line, Err: ErrInvalidValue,
				Reason: "empty subject id"}
		}
		if seen[id] {
			return nil, nil, &InputError{File: file, Column: params.IDColumn, Row: line, Err: ErrInvalidValue,
				Reason: fmt.Sprintf("duplicate subject id %q", id)}
		}
		seen[id] = true
		s := &comorbidity.Subject{
			SIDString:  id,
			Covariates: make([]float64, len(covariateColumns)),
			Attributes: map[string]string{},
		}
		for j, i := range covariateColumns {
			value := t.cell(row, i)
			if isMissing(value) {
				return nil, nil, &InputError{File: file, Column: params.Covariates[j], Row: line, Err: ErrInvalidValue,
					Reason: "missing covariate value"}
			}
			if s.Covariates[j], err = strconv.ParseFloat(value, 64); err != nil {
				return nil, nil, &InputError{File: file, Column: params.Covariates[j], Row: line, Err: ErrInvalidValue,
					Reason: fmt.Sprintf("covariate value %q is not numeric, categorical covariates must be "+
						"encoded as indicators", value)}
			}
		}
		for i, name := range t.header {
			if !nonAttributes[i] {
				s.Attributes[name] = t.cell(row, i)
			}
		}
		subjects = append(subjects, s)
	}
	cohort := comorbidity.NewCohort(subjects, append([]string(nil), params.Covariates...), diseases)
	for did, dc := range columns {
		code := diseases[did].Code
		for r, row := range t.rows {
			line := r + 2
			has, err := parseFlag(t.cell(row, dc.flag))
			if err != nil {
				return nil, nil, &InputError{File: file, Column: code, Row: line, Err: ErrInvalidValue, Reason: err.Error()}
			}
			if !has {
				continue
			}
			cohort.SetOccurrence(did, r)
			if dc.year < 0 || dc.month < 0 {
				continue
			}
			date, err := parseDiagnosisDate(t.cell(row, dc.year), t.cell(row, dc.month))
			if err != nil {
				return nil, nil, &InputError{File: file, Column: code + params.YearSuffix, Row: line,
					Err: ErrInvalidValue, Reason: err.Error()}
			}
			if date.Valid() {
				cohort.SetDiagnosisDate(did, r, date)
			}
		}
	}
	log.Info("Parsed ", cohort.NofSubjects(), " subjects and ", len(diseases), " diseases from ", file)
	cohort = comorbidity.ApplySubjectFilters(filters, cohort)
	log.Info("Analysis ", params.Analysis, " selects ", cohort.NofSubjects(), " subjects.")
	cohort, dropped := cohort.SelectDiseases(params.MinCount)
	for _, d := range dropped {
		excluded = append(excluded, comorbidity.ExcludedUnit{Stage: comorbidity.StageLoad, Unit: d.Code,
			Reason: fmt.Sprintf("below inclusion floor of %d subjects", params.MinCount)})
	}
	return cohort, excluded, nil
}
