package core

import (
	"strings"
)

// SubmissionRecord is the filterable view of a submission used when
// evaluating search queries.
type SubmissionRecord struct {
	Modality string
	Label    string
	Status   string
	FileName string
	Score    float64
}

// field returns the string value for a queryable field name, or false
// when the field is not a string field.
func (r SubmissionRecord) field(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "modality":
		return r.Modality, true
	case "label":
		return r.Label, true
	case "status":
		return r.Status, true
	case "filename":
		return r.FileName, true
	default:
		return "", false
	}
}

type Filter interface {
	Matches(record SubmissionRecord) bool
}

type AndFilter struct {
	filters []Filter
}

func (f *AndFilter) Matches(record SubmissionRecord) bool {
	for _, filter := range f.filters {
		if !filter.Matches(record) {
			return false
		}
	}
	return true
}

type OrFilter struct {
	filters []Filter
}

func (f *OrFilter) Matches(record SubmissionRecord) bool {
	for _, filter := range f.filters {
		if filter.Matches(record) {
			return true
		}
	}
	return false
}

type NotFilter struct {
	filter Filter
}

func (f *NotFilter) Matches(record SubmissionRecord) bool {
	return !f.filter.Matches(record)
}

type SubstringFilter struct {
	field  string
	substr string
}

func (f *SubstringFilter) Matches(record SubmissionRecord) bool {
	value, ok := record.field(f.field)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(f.substr))
}

type StringEqFilter struct {
	field string
	value string
}

func (f *StringEqFilter) Matches(record SubmissionRecord) bool {
	value, ok := record.field(f.field)
	if !ok {
		return false
	}
	return strings.EqualFold(value, f.value)
}

type ScoreLtFilter struct {
	value float64
}

func (f *ScoreLtFilter) Matches(record SubmissionRecord) bool {
	return record.Score < f.value
}

type ScoreGtFilter struct {
	value float64
}

func (f *ScoreGtFilter) Matches(record SubmissionRecord) bool {
	return record.Score > f.value
}
