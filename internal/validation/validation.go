// Package validation evaluates a work submission against a department's
// requirement schema. Evaluation is pure.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"benchline/internal/domain"
	"benchline/internal/requirements"
)

// Issue explains why a required field failed, for display.
type Issue struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

type Report struct {
	MissingFields          []string `json:"missingFields"`
	MissingPhotoCategories []string `json:"missingPhotoCategories"`
	MissingFileCategories  []string `json:"missingFileCategories"`
	PercentComplete        int      `json:"percentComplete"`
	Issues                 []Issue  `json:"issues"`
}

// CanSubmit reports whether nothing required is outstanding.
func (r Report) CanSubmit() bool {
	return len(r.MissingFields) == 0 && len(r.MissingPhotoCategories) == 0 && len(r.MissingFileCategories) == 0
}

func (r Report) Outstanding() int {
	return len(r.MissingFields) + len(r.MissingPhotoCategories) + len(r.MissingFileCategories)
}

// Evaluate computes the completion report. A nil submission is treated as empty.
func Evaluate(schema requirements.Schema, sub *domain.WorkSubmission) Report {
	if sub == nil {
		sub = domain.NewWorkSubmission()
	}
	rep := Report{
		MissingFields:          []string{},
		MissingPhotoCategories: []string{},
		MissingFileCategories:  []string{},
		Issues:                 []Issue{},
	}

	var applicable, satisfied int

	requiredFields := 0
	for _, f := range schema.Fields {
		if !f.Required {
			continue
		}
		requiredFields++
		if reason := checkField(f, sub.FormData[f.Name]); reason != "" {
			rep.MissingFields = append(rep.MissingFields, f.Name)
			rep.Issues = append(rep.Issues, Issue{Name: f.Name, Label: f.Label, Reason: reason})
		}
	}
	if requiredFields > 0 {
		applicable++
		if len(rep.MissingFields) == 0 {
			satisfied++
		}
	}

	photoCounts := countByCategory(sub.UploadedPhotos)
	requiredPhotos := 0
	for _, p := range schema.Photos {
		if !p.Required {
			continue
		}
		requiredPhotos++
		if photoCounts[p.Name] < p.EffectiveMinCount() {
			rep.MissingPhotoCategories = append(rep.MissingPhotoCategories, p.Name)
		}
	}
	if requiredPhotos > 0 {
		applicable++
		if len(rep.MissingPhotoCategories) == 0 {
			satisfied++
		}
	}

	fileCounts := countByCategory(sub.UploadedFiles)
	requiredFiles := 0
	for _, f := range schema.Files {
		if !f.Required {
			continue
		}
		requiredFiles++
		if fileCounts[f.Name] == 0 {
			rep.MissingFileCategories = append(rep.MissingFileCategories, f.Name)
		}
	}
	if requiredFiles > 0 {
		applicable++
		if len(rep.MissingFileCategories) == 0 {
			satisfied++
		}
	}

	if applicable > 0 {
		rep.PercentComplete = int(math.Round(100 * float64(satisfied) / float64(applicable)))
	}
	return rep
}

func countByCategory(items []domain.Attachment) map[string]int {
	out := make(map[string]int, len(items))
	for _, a := range items {
		out[a.Category]++
	}
	return out
}

// checkField returns an empty string when the value satisfies a required field.
func checkField(f requirements.FormField, v any) string {
	if f.Type == requirements.FieldCheckbox {
		if b, ok := v.(bool); ok && b {
			return ""
		}
		return "must be checked"
	}
	if isEmpty(v) {
		return "is required"
	}
	switch f.Type {
	case requirements.FieldNumber:
		n, ok := toNumber(v)
		if !ok {
			return "must be a number"
		}
		if f.Min != nil && n < *f.Min {
			return fmt.Sprintf("must be at least %s", formatNumber(*f.Min))
		}
		if f.Max != nil && n > *f.Max {
			return fmt.Sprintf("must be at most %s", formatNumber(*f.Max))
		}
	case requirements.FieldText, requirements.FieldTextarea:
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		n := utf8.RuneCountInString(s)
		if f.MinLength != nil && n < *f.MinLength {
			return fmt.Sprintf("must be at least %d characters", *f.MinLength)
		}
		if f.MaxLength != nil && n > *f.MaxLength {
			return fmt.Sprintf("must be at most %d characters", *f.MaxLength)
		}
	}
	return ""
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

// toNumber accepts the numeric shapes a form value can arrive in.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
