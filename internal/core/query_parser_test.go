package core

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQuery_SimpleFilter(t *testing.T) {
	query := `label CONTAINS "MI"`
	expected := &SubstringFilter{field: "label", substr: "MI"}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_AndExpression(t *testing.T) {
	query := `modality = "ecg" AND status = "COMPLETED"`
	expected := &AndFilter{
		filters: []Filter{
			&StringEqFilter{field: "modality", value: "ecg"},
			&StringEqFilter{field: "status", value: "COMPLETED"},
		},
	}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_OrExpression(t *testing.T) {
	query := `modality = "ppg" OR label CONTAINS "Normal"`
	expected := &OrFilter{
		filters: []Filter{
			&StringEqFilter{field: "modality", value: "ppg"},
			&SubstringFilter{field: "label", substr: "Normal"},
		},
	}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_NotExpression(t *testing.T) {
	query := `NOT status = "FAILED"`
	expected := &NotFilter{
		filter: &StringEqFilter{field: "status", value: "FAILED"},
	}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_ComplexExpression(t *testing.T) {
	query := `modality = "heart" AND (label CONTAINS "Abnormal" OR NOT score < 0.5)`
	expected := &AndFilter{
		filters: []Filter{
			&StringEqFilter{field: "modality", value: "heart"},
			&OrFilter{
				filters: []Filter{
					&SubstringFilter{field: "label", substr: "Abnormal"},
					&NotFilter{
						filter: &ScoreLtFilter{value: 0.5},
					},
				},
			},
		},
	}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, filter, expected)

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_ScoreFilters(t *testing.T) {
	filter, err := ParseQuery(`score > 0.8`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(filter, &ScoreGtFilter{value: 0.8}) {
		t.Errorf("unexpected filter %v", filter)
	}

	filter, err = ParseQuery(`score < 0.2`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(filter, &ScoreLtFilter{value: 0.2}) {
		t.Errorf("unexpected filter %v", filter)
	}
}

func TestParseQuery_InvalidQueries(t *testing.T) {
	for _, query := range []string{
		`score = 0.5`,
		`score CONTAINS "x"`,
		`score < "high"`,
		`label < "MI"`,
		`label CONTAINS 4`,
		`modality =`,
		``,
	} {
		if _, err := ParseQuery(query); err == nil {
			t.Errorf("expected error for query %q", query)
		}
	}
}

func TestFilterMatches(t *testing.T) {
	record := SubmissionRecord{
		Modality: "ecg",
		Label:    "History of MI",
		Status:   "COMPLETED",
		FileName: "trace-01.png",
		Score:    0.74,
	}

	for query, want := range map[string]bool{
		`modality = "ecg"`:                          true,
		`modality = "ECG"`:                          true,
		`modality = "ppg"`:                          false,
		`label CONTAINS "mi"`:                       true,
		`filename CONTAINS ".png"`:                  true,
		`score > 0.7`:                               true,
		`score < 0.7`:                               false,
		`status = "COMPLETED" AND score > 0.5`:      true,
		`status = "FAILED" OR label CONTAINS "MI"`:  true,
		`NOT modality = "ecg"`:                      false,
		`modality = "ppg" AND label CONTAINS "mi"`:  false,
		`(modality = "ppg" OR score > 0.7)`:         true,
	} {
		filter, err := ParseQuery(query)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", query, err)
		}
		if got := filter.Matches(record); got != want {
			t.Errorf("query %q: expected %v, got %v", query, want, got)
		}
	}
}
