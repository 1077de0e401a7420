package requirements

import (
	"errors"
	"testing"

	"benchline/internal/domain"
)

type staticFlags map[domain.Department]bool

func (f staticFlags) IsDepartmentEnabled(d domain.Department) bool {
	enabled, ok := f[d]
	return !ok || enabled
}

func TestRegistryCoversEveryDepartment(t *testing.T) {
	reg, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	for _, info := range domain.Departments() {
		s, err := reg.Get(info.Key)
		if err != nil {
			t.Fatalf("get %s: %v", info.Key, err)
		}
		if s.Department != info.Key {
			t.Fatalf("schema department = %s, want %s", s.Department, info.Key)
		}
		if s.Fields == nil || s.Photos == nil || s.Files == nil || s.Instructions == nil {
			t.Fatalf("schema %s has nil collections", info.Key)
		}
	}
}

func TestRegistryRejectsMissingDepartment(t *testing.T) {
	table := map[domain.Department]Schema{}
	for k, v := range catalog {
		table[k] = v
	}
	delete(table, domain.DepartmentEnameling)
	if _, err := newRegistry(table, nil); err == nil {
		t.Fatalf("expected error for missing department")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	table := map[domain.Department]Schema{}
	for k, v := range catalog {
		table[k] = v
	}
	casting := table[domain.DepartmentCasting]
	casting.Photos = []PhotoRequirement{
		{Name: "castedPiece", Label: "a", Required: true, MinCount: 1},
		{Name: "castedPiece", Label: "b"},
	}
	table[domain.DepartmentCasting] = casting
	if _, err := newRegistry(table, nil); err == nil {
		t.Fatalf("expected duplicate photo category error")
	}
}

func TestGetUnknownDepartment(t *testing.T) {
	reg, err := NewRegistry(nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = reg.Get(domain.Department("WELDING"))
	if !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound, got %v", err)
	}
	_, err = reg.Get(domain.DepartmentFinished)
	if !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("finished marker should have no schema, got %v", err)
	}
}

func TestDisabledDepartmentGetsReducedSchema(t *testing.T) {
	reg, err := NewRegistry(staticFlags{domain.DepartmentCasting: false})
	if err != nil {
		t.Fatal(err)
	}
	s, err := reg.Get(domain.DepartmentCasting)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Reduced {
		t.Fatalf("expected reduced schema")
	}
	if len(s.Photos) != 0 || len(s.Files) != 0 {
		t.Fatalf("reduced schema should drop photo and file requirements")
	}
	for _, f := range s.Fields {
		if !f.Core {
			t.Fatalf("non-core field %s in reduced schema", f.Name)
		}
	}
	if _, ok := s.Field("metalType"); !ok {
		t.Fatalf("core field metalType missing from reduced schema")
	}
	full, err := reg.Full(domain.DepartmentCasting)
	if err != nil || full.Reduced || len(full.Photos) == 0 {
		t.Fatalf("full schema should ignore flags: %+v %v", full, err)
	}
	other, _ := reg.Get(domain.DepartmentPolishing)
	if other.Reduced {
		t.Fatalf("enabled department should get its full schema")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	reg, err := NewRegistry(nil)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := reg.Get(domain.DepartmentCasting)
	s.Fields[0].Name = "mutated"
	again, _ := reg.Get(domain.DepartmentCasting)
	if again.Fields[0].Name == "mutated" {
		t.Fatalf("registry schema mutated through returned copy")
	}
}

func TestFileRequirementAccepts(t *testing.T) {
	req := FileRequirement{Name: "slip", AcceptedFormats: []string{".pdf", "image/*"}}
	cases := []struct {
		name, ct string
		want     bool
	}{
		{"slip.PDF", "", true},
		{"slip.png", "image/png", true},
		{"slip.docx", "application/vnd.openxmlformats", false},
		{"scan", "image/jpeg; charset=binary", true},
	}
	for _, c := range cases {
		if got := req.Accepts(c.name, c.ct); got != c.want {
			t.Fatalf("Accepts(%q,%q) = %v, want %v", c.name, c.ct, got, c.want)
		}
	}
	if !(FileRequirement{}).Accepts("anything.bin", "") {
		t.Fatalf("empty format list should accept anything")
	}
}
