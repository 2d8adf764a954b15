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

package comorbidity

import "strings"

// SubjectFilter prescribes a function type for selecting the subjects of a stratum, e.g. female dogs, purebred dogs,
// dogs of a specific age group.
type SubjectFilter func(s *Subject) bool

// ApplySubjectFilters returns a new cohort with the subjects of c that pass all filters.
func ApplySubjectFilters(filters []SubjectFilter, c *Cohort) *Cohort {
	sids := []int{}
	for _, s := range c.Subjects {
		keep := true
		for _, filter := range filters {
			if !filter(s) {
				keep = false
				break
			}
		}
		if keep {
			sids = append(sids, s.SID)
		}
	}
	return c.SelectSubjects(sids)
}

// IdentityFilter keeps all subjects.
func IdentityFilter() SubjectFilter {
	return func(s *Subject) bool { return true }
}

// AttributeFilter keeps the subjects for which a predicate holds on the raw value of an attribute column. Subjects
// without the attribute are removed.
func AttributeFilter(column string, predicate func(value string) bool) SubjectFilter {
	return func(s *Subject) bool {
		value, ok := s.Attributes[column]
		if !ok {
			return false
		}
		return predicate(strings.TrimSpace(value))
	}
}

// AttributeEqualsFilter keeps the subjects with the given value for an attribute column.
func AttributeEqualsFilter(column, value string) SubjectFilter {
	return AttributeFilter(column, func(v string) bool { return v == value })
}

// AttributeNotEqualsFilter removes the subjects with the given value for an attribute column.
func AttributeNotEqualsFilter(column, value string) SubjectFilter {
	return AttributeFilter(column, func(v string) bool { return v != value })
}
