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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"pbc/comorbidity"
)

var cohortHeader = []string{"dog_id", "age", "weight", "sex", "a", "a_year", "a_month", "b", "b_year", "b_month", "c"}

var cohortRows = [][]string{
	{"d1", "3", "10", "F", "1", "2020", "1", "1", "2021", "1", "0"},
	{"d2", "5", "12", "M", "1", "2019", "6", "0", "NA", "NA", "0"},
	{"d3", "7", "20", "F", "0", "", "", "1", "2020", "3", "1"},
	{"d4", "2", "8", "M", "1", "2021", "0", "1", "2021", "5", "0"},
	{"d5", "9", "30", "F", "0", "", "", "0", "", "", "0"},
	{"d6", "4", "15", "M", "0", "", "", "1", "2022", "2", "0"},
}

const crosswalk = "code,name,category,count\n" +
	"a,Atopic dermatitis,skin,3\n" +
	"b,Otitis externa,ear,4\n" +
	"c,Cataract,eye,1\n" +
	"d,Diabetes mellitus,endocrine,12\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	file := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	return file
}

func joinTable(sep string, header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(header, sep) + "\n")
	for _, row := range rows {
		b.WriteString(strings.Join(row, sep) + "\n")
	}
	return b.String()
}

func writeExcelTable(t *testing.T, dir, name string, header []string, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range append([][]string{header}, rows...) {
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &values))
	}
	file := filepath.Join(dir, name)
	require.NoError(t, f.SaveAs(file))
	return file
}

func testParams(t *testing.T, dir, cohortFile string) *ExperimentParams {
	t.Helper()
	params := DefaultExperimentParams()
	params.Name = "test"
	params.CohortFile = cohortFile
	params.CrosswalkFile = writeFile(t, dir, "crosswalk.csv", crosswalk)
	params.OutputPath = filepath.Join(dir, "out")
	params.Covariates = []string{"age", "weight"}
	params.MinCount = 2
	return &params
}

// generatedRows returns a cohort of n dogs in which the diseases overlap without being separable by the covariates.
func generatedRows(n int) [][]string {
	flag := func(b bool) string {
		if b {
			return "1"
		}
		return "0"
	}
	rows := make([][]string, n)
	for i := range rows {
		a, b, c := i%3 == 0, i%4 == 0, i%5 == 0
		row := []string{fmt.Sprintf("g%d", i), strconv.Itoa(i%10 + 1), strconv.Itoa((i*7)%23 + 5), []string{"F", "M"}[i%2],
			flag(a), "", "", flag(b), "", "", flag(c)}
		if a {
			row[5], row[6] = "2020", strconv.Itoa(i%12+1)
		}
		if b {
			row[8], row[9] = "2021", strconv.Itoa(i%12+1)
		}
		rows[i] = row
	}
	return rows
}

func checkParsedCohort(t *testing.T, cohort *comorbidity.Cohort, excluded []comorbidity.ExcludedUnit) {
	t.Helper()
	require.Equal(t, 6, cohort.NofSubjects())
	require.Len(t, cohort.Diseases, 2)
	assert.Equal(t, "a", cohort.Diseases[0].Code)
	assert.Equal(t, "Otitis externa", cohort.Diseases[1].Name)
	assert.Equal(t, "ear", cohort.Diseases[1].Category)
	assert.Equal(t, 4, cohort.Diseases[1].Count)
	assert.Equal(t, 3, cohort.Prevalence(0))
	assert.Equal(t, 4, cohort.Prevalence(1))
	assert.Equal(t, []string{"age", "weight"}, cohort.CovariateNames)
	assert.Equal(t, []float64{7, 20}, cohort.Subjects[2].Covariates)
	assert.Equal(t, "d3", cohort.Subjects[2].SIDString)
	assert.Equal(t, "F", cohort.Subjects[2].Attributes["sex"])
	_, ok := cohort.Subjects[2].Attributes["a_year"]
	assert.False(t, ok)
	assert.Equal(t, comorbidity.DiagnosisDate{Year: 2020, Month: 1}, cohort.DiagnosisDate(0, 0))
	assert.Equal(t, comorbidity.DiagnosisDate{Year: 2019, Month: 6}, cohort.DiagnosisDate(0, 1))
	assert.False(t, cohort.DiagnosisDate(0, 3).Valid())
	assert.Equal(t, comorbidity.DiagnosisDate{Year: 2022, Month: 2}, cohort.DiagnosisDate(1, 5))
	assert.False(t, cohort.DiagnosisDate(1, 1).Valid())
	assert.Equal(t, []comorbidity.ExcludedUnit{
		{Stage: comorbidity.StageLoad, Unit: "d", Reason: "not in cohort table"},
		{Stage: comorbidity.StageLoad, Unit: "c", Reason: "below inclusion floor of 2 subjects"},
	}, excluded)
}

func TestParseCohortData(t *testing.T) {
	dir := t.TempDir()
	formats := map[string]string{
		"csv":  writeFile(t, dir, "cohort.csv", joinTable(",", cohortHeader, cohortRows)),
		"tsv":  writeFile(t, dir, "cohort.tsv", joinTable("\t", cohortHeader, cohortRows)),
		"xlsx": writeExcelTable(t, dir, "cohort.xlsx", cohortHeader, cohortRows),
	}
	for format, file := range formats {
		t.Run(format, func(t *testing.T) {
			cohort, excluded, err := ParseCohortData(testParams(t, dir, file))
			require.NoError(t, err)
			checkParsedCohort(t, cohort, excluded)
		})
	}
}

func TestParseCohortDataStratum(t *testing.T) {
	dir := t.TempDir()
	params := testParams(t, dir, writeFile(t, dir, "cohort.csv", joinTable(",", cohortHeader, cohortRows)))
	params.Analysis = "sex=F"
	cohort, excluded, err := ParseCohortData(params)
	require.NoError(t, err)
	assert.Equal(t, 3, cohort.NofSubjects())
	require.Len(t, cohort.Diseases, 1)
	assert.Equal(t, "b", cohort.Diseases[0].Code)
	assert.Equal(t, 2, cohort.Prevalence(0))
	assert.Len(t, excluded, 3)

	params.Analysis = "sex!=F,age=4"
	cohort, _, err = ParseCohortData(params)
	require.NoError(t, err)
	require.Equal(t, 1, cohort.NofSubjects())
	assert.Equal(t, "d6", cohort.Subjects[0].SIDString)

	params.Analysis = "breed=beagle"
	_, _, err = ParseCohortData(params)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseCohortDataInputErrors(t *testing.T) {
	replace := func(row, column int, value string) [][]string {
		rows := make([][]string, len(cohortRows))
		for i, r := range cohortRows {
			rows[i] = append([]string(nil), r...)
		}
		rows[row][column] = value
		return rows
	}
	tests := []struct {
		name     string
		rows     [][]string
		covs     []string
		column   string
		row      int
		sentinel error
	}{
		{"missing covariate column", cohortRows, []string{"age", "breed"}, "breed", 0, ErrMissingColumn},
		{"categorical covariate", cohortRows, []string{"age", "sex"}, "sex", 2, ErrInvalidValue},
		{"missing covariate value", replace(1, 1, ""), []string{"age"}, "age", 3, ErrInvalidValue},
		{"non-numeric covariate", replace(3, 2, "heavy"), []string{"weight"}, "weight", 5, ErrInvalidValue},
		{"invalid disease flag", replace(4, 4, "2"), []string{"age"}, "a", 6, ErrInvalidValue},
		{"empty disease flag", replace(0, 7, ""), []string{"age"}, "b", 2, ErrInvalidValue},
		{"invalid diagnosis month", replace(0, 6, "13"), []string{"age"}, "a_year", 2, ErrInvalidValue},
		{"duplicate dog", replace(1, 0, "d1"), []string{"age"}, "dog_id", 3, ErrInvalidValue},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			params := testParams(t, dir, writeFile(t, dir, "cohort.csv", joinTable(",", cohortHeader, test.rows)))
			params.Covariates = test.covs
			_, _, err := ParseCohortData(params)
			require.Error(t, err)
			var inputErr *InputError
			require.True(t, errors.As(err, &inputErr), err.Error())
			assert.Equal(t, test.column, inputErr.Column)
			assert.Equal(t, test.row, inputErr.Row)
			assert.ErrorIs(t, err, test.sentinel)
			assert.Contains(t, err.Error(), test.column)
		})
	}
}

func TestParseCohortDataMissingFiles(t *testing.T) {
	dir := t.TempDir()
	params := testParams(t, dir, filepath.Join(dir, "missing.csv"))
	_, _, err := ParseCohortData(params)
	assert.ErrorIs(t, err, os.ErrNotExist)
	params.CrosswalkFile = writeFile(t, dir, "bad-crosswalk.csv", "disease,name\na,A\n")
	_, _, err = ParseCohortData(params)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestParseCrosswalk(t *testing.T) {
	dir := t.TempDir()
	diseases, err := parseCrosswalk(writeFile(t, dir, "crosswalk.tsv", "code\tcount\nx\t70\ny\tNA\n\t\nz\t90.0\n"))
	require.NoError(t, err)
	require.Len(t, diseases, 3)
	assert.Equal(t, "x", diseases[0].Code)
	assert.Equal(t, 70, diseases[0].Count)
	assert.Equal(t, 0, diseases[1].Count)
	assert.Equal(t, "y", diseases[1].Label())
	assert.Equal(t, 90, diseases[2].Count)
	_, err = parseCrosswalk(writeFile(t, dir, "duplicates.csv", "code\nx\nx\n"))
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestParseDiagnosisDate(t *testing.T) {
	date, err := parseDiagnosisDate("2020", "07")
	require.NoError(t, err)
	assert.Equal(t, comorbidity.DiagnosisDate{Year: 2020, Month: 7}, date)
	date, err = parseDiagnosisDate("2020.0", "7.0")
	require.NoError(t, err)
	assert.Equal(t, comorbidity.DiagnosisDate{Year: 2020, Month: 7}, date)
	for _, missing := range [][2]string{{"", "3"}, {"2020", "NA"}, {"0", "0"}, {"2020", "0"}} {
		date, err = parseDiagnosisDate(missing[0], missing[1])
		require.NoError(t, err)
		assert.False(t, date.Valid())
	}
	_, err = parseDiagnosisDate("2020", "May")
	assert.Error(t, err)
	_, err = parseDiagnosisDate("2020", "13")
	assert.Error(t, err)
}

func TestGetSubjectFilters(t *testing.T) {
	columns := []string{"sex", "purebred"}
	for _, selector := range []string{"", "all", "id"} {
		filters, err := GetSubjectFilters(selector, columns)
		require.NoError(t, err)
		assert.Len(t, filters, 1)
	}
	filters, err := GetSubjectFilters("sex = F, purebred!=1", columns)
	require.NoError(t, err)
	require.Len(t, filters, 2)
	s := &comorbidity.Subject{Attributes: map[string]string{"sex": "F", "purebred": "0"}}
	assert.True(t, filters[0](s))
	assert.True(t, filters[1](s))
	s.Attributes["purebred"] = "1"
	assert.False(t, filters[1](s))
	_, err = GetSubjectFilters("sex~F", columns)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = GetSubjectFilters("breed=beagle", columns)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	valid := func() *ExperimentParams {
		p := DefaultExperimentParams()
		p.CohortFile, p.CrosswalkFile, p.OutputPath = "cohort.csv", "crosswalk.csv", "out"
		return &p
	}
	assert.NoError(t, valid().Validate())
	broken := []func(p *ExperimentParams){
		func(p *ExperimentParams) { p.Name = "" },
		func(p *ExperimentParams) { p.CohortFile = "" },
		func(p *ExperimentParams) { p.Alpha = 0 },
		func(p *ExperimentParams) { p.DirectedAlpha = 1 },
		func(p *ExperimentParams) { p.MinCount = 0 },
		func(p *ExperimentParams) { p.Windows = []int{12, 0} },
		func(p *ExperimentParams) { p.Windows = []int{6, 12, 6} },
		func(p *ExperimentParams) { p.Covariates = []string{"age", "age"} },
		func(p *ExperimentParams) { p.Covariates = []string{"dog_id"} },
		func(p *ExperimentParams) { p.Seed = 1 << 33 },
		func(p *ExperimentParams) { p.Tolerance = 0 },
	}
	for i, breakParams := range broken {
		p := valid()
		breakParams(p)
		assert.ErrorIs(t, p.Validate(), ErrInvalidConfig, "case %d", i)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "pbc.toml", `name = "purebred"
analysis = "purebred=1"
covariates = ["age", "weight"]
windows = [12]
alpha = 0.0005
seed = 42
`)
	params := DefaultExperimentParams()
	require.NoError(t, LoadConfigFile(file, &params))
	assert.Equal(t, "purebred", params.Name)
	assert.Equal(t, "purebred=1", params.Analysis)
	assert.Equal(t, []string{"age", "weight"}, params.Covariates)
	assert.Equal(t, []int{12}, params.Windows)
	assert.Equal(t, 0.0005, params.Alpha)
	assert.Equal(t, uint(42), params.Seed)
	// keys missing from the file keep their defaults
	assert.Equal(t, comorbidity.DefaultDirectedAlpha, params.DirectedAlpha)
	assert.Equal(t, DefaultMinCount, params.MinCount)
	opts := params.Options()
	assert.Equal(t, uint32(42), opts.Pairs.Seed)
	assert.Equal(t, []int{12}, opts.Windows)

	assert.Error(t, LoadConfigFile(writeFile(t, dir, "bad.toml", "alpha = \"small\"\n"), &params))
	assert.Error(t, LoadConfigFile(filepath.Join(dir, "missing.toml"), &params))
}

func TestListFlags(t *testing.T) {
	var windows IntList
	require.NoError(t, windows.Set("6, 12,24"))
	assert.Equal(t, IntList{6, 12, 24}, windows)
	assert.Equal(t, "6,12,24", windows.String())
	require.NoError(t, windows.Set("3"))
	assert.Equal(t, IntList{3}, windows)
	assert.Error(t, windows.Set("6,twelve"))
	var covariates StringList
	require.NoError(t, covariates.Set("age,,weight "))
	assert.Equal(t, StringList{"age", "weight"}, covariates)
	assert.Equal(t, "age,weight", covariates.String())
}

func TestInitLogging(t *testing.T) {
	defer log.SetLevel(log.GetLevel())
	t.Setenv("LOG_LEVEL", "warn")
	require.NoError(t, InitLogging())
	assert.Equal(t, log.WarnLevel, log.GetLevel())
	t.Setenv("LOG_LEVEL", "loud")
	assert.ErrorIs(t, InitLogging(), ErrInvalidConfig)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	params := testParams(t, dir, writeFile(t, dir, "cohort.csv", joinTable(",", cohortHeader, generatedRows(240))))
	params.Windows = []int{12}
	exp, err := Run(params)
	require.NoError(t, err)
	require.Len(t, exp.Models, 3)
	assert.Equal(t, 240, exp.Cohort.NofSubjects())
	for _, suffix := range []string{"coefficients.tab", "pairs.tab", "network.gml", "manifest.json", "excluded.tab"} {
		_, err := os.Stat(filepath.Join(dir, "out", "test", "test-"+suffix))
		assert.NoError(t, err, suffix)
	}
	excluded, err := os.ReadFile(filepath.Join(dir, "out", "test", "test-excluded.tab"))
	require.NoError(t, err)
	assert.Contains(t, string(excluded), "load\td\tnot in cohort table\n")

	params.Alpha = 2
	_, err = Run(params)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunFemaleStratumWithDefaultCovariates(t *testing.T) {
	header := append([]string{"dog_id", "sex"}, DefaultCovariates...)
	header = append(header, "a", "b", "c")
	flag := func(b bool) string {
		if b {
			return "1"
		}
		return "0"
	}
	var rows [][]string
	for i := 0; i < 400; i++ {
		female := i%2 == 0
		rows = append(rows, []string{
			fmt.Sprintf("g%d", i), []string{"M", "F"}[i%2^1],
			strconv.Itoa(i%10 + 1), strconv.Itoa((i*7)%23 + 5), flag((i/3)%2 == 1),
			flag(female && i%4 == 0), flag(female && i%4 != 0), flag(!female && i%4 == 1),
			flag(i%3 == 0), flag(i%5 == 0), flag(i%7 == 0),
		})
	}
	dir := t.TempDir()
	params := testParams(t, dir, writeFile(t, dir, "cohort.csv", joinTable(",", header, rows)))
	params.Covariates = append([]string(nil), DefaultCovariates...)
	params.Analysis = "sex=F"
	params.Windows = nil
	exp, err := Run(params)
	require.NoError(t, err)
	assert.Equal(t, 200, exp.Cohort.NofSubjects())
	assert.Len(t, exp.Models, 3)
	assert.Equal(t, []string{comorbidity.InterceptTerm, "age", "weight", "purebred", "female_intact"}, exp.Design.Terms)
	assert.Equal(t, []string{"female_spayed", "male_neutered"}, exp.Design.Dropped)
	for _, e := range exp.Excluded {
		assert.NotEqual(t, comorbidity.StageRisk, e.Stage, e.Reason)
	}
}
