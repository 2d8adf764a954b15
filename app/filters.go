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
	"strings"

	"pbc/comorbidity"
)

// Analysis selectors restrict an analysis to a stratum of the cohort. A selector is either "all" (or "id"), or a
// comma separated list of terms column=value and column!=value that must all hold. Values are compared after trimming
// white space.

// getSubjectFilter parses one term of an analysis selector.
func getSubjectFilter(s string, columns map[string]bool) (comorbidity.SubjectFilter, error) {
	switch s {
	case "all", "id":
		return comorbidity.IdentityFilter(), nil
	}
	column, value, negate := s, "", false
	if i := strings.Index(s, "!="); i >= 0 {
		column, value, negate = s[:i], s[i+2:], true
	} else if i := strings.Index(s, "="); i >= 0 {
		column, value = s[:i], s[i+1:]
	} else {
		return nil, invalid("analysis selector term %q is not all, column=value, or column!=value", s)
	}
	column, value = strings.TrimSpace(column), strings.TrimSpace(value)
	if !columns[column] {
		return nil, invalid("analysis selector term %q refers to unknown column %q", s, column)
	}
	if negate {
		return comorbidity.AttributeNotEqualsFilter(column, value), nil
	}
	return comorbidity.AttributeEqualsFilter(column, value), nil
}

// GetSubjectFilters parses an analysis selector into subject filters. The columns are the attribute columns of the
// cohort table that terms may refer to.
func GetSubjectFilters(selector string, columns []string) ([]comorbidity.SubjectFilter, error) {
	known := map[string]bool{}
	for _, c := range columns {
		known[c] = true
	}
	terms := splitList(selector)
	if len(terms) == 0 {
		return []comorbidity.SubjectFilter{comorbidity.IdentityFilter()}, nil
	}
	var filters []comorbidity.SubjectFilter
	for _, term := range terms {
		filter, err := getSubjectFilter(term, known)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter)
	}
	return filters, nil
}
