package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"benchline/internal/domain"
	"benchline/internal/requirements"
)

func registry(t *testing.T) *requirements.Registry {
	t.Helper()
	reg, err := requirements.NewRegistry(nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func satisfyingValue(f requirements.FormField) any {
	switch f.Type {
	case requirements.FieldCheckbox:
		return true
	case requirements.FieldNumber:
		if f.Min != nil {
			return *f.Min
		}
		if f.Max != nil {
			return *f.Max
		}
		return 1.0
	case requirements.FieldSelect:
		return f.Options[0]
	case requirements.FieldDate:
		return "2024-01-01"
	case requirements.FieldText, requirements.FieldTextarea:
		n := 1
		if f.MinLength != nil {
			n = *f.MinLength
		}
		return strings.Repeat("x", n)
	}
	return "x"
}

func completeSubmission(s requirements.Schema) *domain.WorkSubmission {
	sub := domain.NewWorkSubmission()
	for _, f := range s.Fields {
		if f.Required {
			sub.FormData[f.Name] = satisfyingValue(f)
		}
	}
	for _, p := range s.Photos {
		if !p.Required {
			continue
		}
		for i := 0; i < p.EffectiveMinCount(); i++ {
			sub.UploadedPhotos = append(sub.UploadedPhotos, domain.Attachment{ID: fmt.Sprintf("%s-%d", p.Name, i), Category: p.Name})
		}
	}
	for _, f := range s.Files {
		if f.Required {
			sub.UploadedFiles = append(sub.UploadedFiles, domain.Attachment{ID: f.Name, Category: f.Name})
		}
	}
	return sub
}

func TestCompleteSubmissionCanSubmitForEverySchema(t *testing.T) {
	reg := registry(t)
	for _, info := range domain.Departments() {
		s, err := reg.Get(info.Key)
		if err != nil {
			t.Fatal(err)
		}
		rep := Evaluate(s, completeSubmission(s))
		if !rep.CanSubmit() {
			t.Fatalf("%s: expected canSubmit, got %+v", info.Key, rep)
		}
		if rep.PercentComplete != 100 {
			t.Fatalf("%s: expected 100%%, got %d", info.Key, rep.PercentComplete)
		}
	}
}

func TestRemovingAnyRequiredItemBlocksSubmit(t *testing.T) {
	reg := registry(t)
	for _, info := range domain.Departments() {
		s, _ := reg.Get(info.Key)
		for _, f := range s.Fields {
			if !f.Required {
				continue
			}
			sub := completeSubmission(s)
			delete(sub.FormData, f.Name)
			rep := Evaluate(s, sub)
			if rep.CanSubmit() || !contains(rep.MissingFields, f.Name) {
				t.Fatalf("%s: removing field %s should block submit: %+v", info.Key, f.Name, rep)
			}
		}
		for _, p := range s.Photos {
			if !p.Required {
				continue
			}
			sub := completeSubmission(s)
			sub.UploadedPhotos = dropOne(sub.UploadedPhotos, p.Name)
			rep := Evaluate(s, sub)
			if rep.CanSubmit() || !contains(rep.MissingPhotoCategories, p.Name) {
				t.Fatalf("%s: removing a %s photo should block submit: %+v", info.Key, p.Name, rep)
			}
		}
		for _, f := range s.Files {
			if !f.Required {
				continue
			}
			sub := completeSubmission(s)
			sub.UploadedFiles = dropOne(sub.UploadedFiles, f.Name)
			rep := Evaluate(s, sub)
			if rep.CanSubmit() || !contains(rep.MissingFileCategories, f.Name) {
				t.Fatalf("%s: removing file %s should block submit: %+v", info.Key, f.Name, rep)
			}
		}
	}
}

func TestPercentCompleteIsMonotonic(t *testing.T) {
	reg := registry(t)
	s, _ := reg.Get(domain.DepartmentStoneSetting)
	sub := domain.NewWorkSubmission()
	last := Evaluate(s, sub).PercentComplete
	if last != 0 {
		t.Fatalf("empty submission should be 0%%, got %d", last)
	}
	step := func(label string) {
		t.Helper()
		got := Evaluate(s, sub).PercentComplete
		if got < last {
			t.Fatalf("%s: percent dropped from %d to %d", label, last, got)
		}
		last = got
	}
	for _, f := range s.Fields {
		if f.Required {
			sub.FormData[f.Name] = satisfyingValue(f)
			step("field " + f.Name)
		}
	}
	sub.FormData["brokenStones"] = 0.0
	step("optional field")
	for i := 0; i < 2; i++ {
		sub.UploadedPhotos = append(sub.UploadedPhotos, domain.Attachment{ID: fmt.Sprint(i), Category: "setStones"})
		step("photo")
	}
	sub.UploadedPhotos = append(sub.UploadedPhotos, domain.Attachment{ID: "extra", Category: "unrelated"})
	step("optional photo")
	sub.UploadedFiles = append(sub.UploadedFiles, domain.Attachment{ID: "slip", Category: "stoneIssueSlip"})
	step("file")
	if last != 100 {
		t.Fatalf("expected 100%%, got %d", last)
	}
}

func TestCastingScenario(t *testing.T) {
	reg := registry(t)
	s, err := reg.Get(domain.DepartmentCasting)
	if err != nil {
		t.Fatal(err)
	}
	sub := domain.NewWorkSubmission()
	sub.FormData["metalType"] = "18K Gold"
	sub.FormData["metalWeight"] = 28.5
	sub.UploadedPhotos = []domain.Attachment{
		{ID: "p1", Category: "castedPiece"},
		{ID: "p2", Category: "castedPiece"},
	}
	rep := Evaluate(s, sub)
	if !rep.CanSubmit() || rep.PercentComplete != 100 {
		t.Fatalf("expected submittable at 100%%, got %+v", rep)
	}

	sub.UploadedPhotos = sub.UploadedPhotos[:1]
	rep = Evaluate(s, sub)
	if rep.CanSubmit() {
		t.Fatalf("one photo should not be enough")
	}
	if len(rep.MissingPhotoCategories) != 1 || rep.MissingPhotoCategories[0] != "castedPiece" {
		t.Fatalf("missing photos = %v", rep.MissingPhotoCategories)
	}
	if rep.PercentComplete != 50 {
		t.Fatalf("expected 50%%, got %d", rep.PercentComplete)
	}
}

func TestFieldChecks(t *testing.T) {
	minW, maxW := 0.1, 500.0
	minL, maxL := 3, 5
	s := requirements.Schema{
		Department: domain.DepartmentCasting,
		Fields: []requirements.FormField{
			{Name: "weight", Label: "Weight", Type: requirements.FieldNumber, Required: true, Min: &minW, Max: &maxW},
			{Name: "code", Label: "Code", Type: requirements.FieldText, Required: true, MinLength: &minL, MaxLength: &maxL},
			{Name: "ok", Label: "OK", Type: requirements.FieldCheckbox, Required: true},
			{Name: "note", Label: "Note", Type: requirements.FieldTextarea, MaxLength: &maxL},
		},
	}
	cases := []struct {
		name    string
		data    map[string]any
		missing []string
	}{
		{"all valid", map[string]any{"weight": 1.0, "code": "ABCD", "ok": true}, nil},
		{"numeric string", map[string]any{"weight": "12.5", "code": "ABC", "ok": true}, nil},
		{"json number", map[string]any{"weight": json.Number("3"), "code": "ABC", "ok": true}, nil},
		{"weight too small", map[string]any{"weight": 0.01, "code": "ABC", "ok": true}, []string{"weight"}},
		{"weight too large", map[string]any{"weight": 501, "code": "ABC", "ok": true}, []string{"weight"}},
		{"weight not numeric", map[string]any{"weight": "heavy", "code": "ABC", "ok": true}, []string{"weight"}},
		{"code too short", map[string]any{"weight": 1.0, "code": "AB", "ok": true}, []string{"code"}},
		{"code too long", map[string]any{"weight": 1.0, "code": "ABCDEF", "ok": true}, []string{"code"}},
		{"multibyte length", map[string]any{"weight": 1.0, "code": "éééé", "ok": true}, nil},
		{"checkbox false", map[string]any{"weight": 1.0, "code": "ABC", "ok": false}, []string{"ok"}},
		{"checkbox truthy string", map[string]any{"weight": 1.0, "code": "ABC", "ok": "true"}, []string{"ok"}},
		{"empty string", map[string]any{"weight": "", "code": "ABC", "ok": true}, []string{"weight"}},
		{"optional too long ignored", map[string]any{"weight": 1.0, "code": "ABC", "ok": true, "note": "far too long"}, nil},
		{"nothing", map[string]any{}, []string{"weight", "code", "ok"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sub := domain.NewWorkSubmission()
			sub.FormData = c.data
			rep := Evaluate(s, sub)
			if strings.Join(rep.MissingFields, ",") != strings.Join(c.missing, ",") {
				t.Fatalf("missing = %v, want %v", rep.MissingFields, c.missing)
			}
			if len(rep.Issues) != len(c.missing) {
				t.Fatalf("issues = %+v", rep.Issues)
			}
		})
	}
}

func TestNoApplicableCategories(t *testing.T) {
	s := requirements.Schema{Department: domain.DepartmentCAD}
	rep := Evaluate(s, nil)
	if rep.PercentComplete != 0 || !rep.CanSubmit() {
		t.Fatalf("schema without requirements: %+v", rep)
	}
}

func TestPhotoMinCountDefaultsToOne(t *testing.T) {
	s := requirements.Schema{
		Department: domain.DepartmentPolishing,
		Photos:     []requirements.PhotoRequirement{{Name: "front", Label: "Front", Required: true}},
	}
	sub := domain.NewWorkSubmission()
	if Evaluate(s, sub).CanSubmit() {
		t.Fatalf("required category with unset minCount needs one photo")
	}
	sub.UploadedPhotos = append(sub.UploadedPhotos, domain.Attachment{ID: "1", Category: "front"})
	if !Evaluate(s, sub).CanSubmit() {
		t.Fatalf("one photo should satisfy unset minCount")
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func dropOne(items []domain.Attachment, category string) []domain.Attachment {
	for i, a := range items {
		if a.Category == category {
			return append(append([]domain.Attachment{}, items[:i]...), items[i+1:]...)
		}
	}
	return items
}
