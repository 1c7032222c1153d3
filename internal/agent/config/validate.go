package config

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// Validate runs struct-tag validation plus the cross-cutting checks the
// tags can't express (duplicate ids within one kind; unknown pipe references aren't
// checked here — those are a binder-time concern, not a load-time one)
// and returns every issue found, not just the first.
func Validate(doc *Document) Report {
	var report Report

	for _, group := range []struct {
		label string
		specs []ComponentSpec
	}{
		{"sources", doc.Sources},
		{"sinks", doc.Sinks},
		{"credentials", doc.Credentials},
		{"plugins", doc.Plugins},
	} {
		for i, spec := range group.specs {
			if err := structValidator.Struct(spec); err != nil {
				report.Issues = append(report.Issues, issuesFromValidator(group.label, i, err)...)
			}
		}
		for _, id := range DuplicateIds(group.specs) {
			report.Issues = append(report.Issues, ValidationIssue{
				Field:   "id",
				Message: "duplicate component id: " + id,
				Code:    "duplicate_id",
			})
		}
	}

	for i, pipe := range doc.Pipes {
		if err := structValidator.Struct(pipe); err != nil {
			report.Issues = append(report.Issues, issuesFromValidator("pipes", i, err)...)
		}
	}

	return report
}

func issuesFromValidator(section string, index int, err error) []ValidationIssue {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationIssue{{
			Field:   section,
			Message: err.Error(),
			Code:    "invalid",
		}}
	}

	issues := make([]ValidationIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, ValidationIssue{
			Field:   fieldPath(section, index, fe.Field()),
			Message: fe.Error(),
			Code:    fe.Tag(),
		})
	}
	return issues
}

func fieldPath(section string, index int, field string) string {
	return section + "[" + strconv.Itoa(index) + "]." + field
}
