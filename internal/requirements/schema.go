package requirements

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"benchline/internal/domain"
)

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldTextarea FieldType = "textarea"
	FieldDate     FieldType = "date"
	FieldCheckbox FieldType = "checkbox"
	FieldFile     FieldType = "file"
	FieldPhoto    FieldType = "photo"
)

func (t FieldType) valid() bool {
	switch t {
	case FieldText, FieldNumber, FieldSelect, FieldTextarea, FieldDate, FieldCheckbox, FieldFile, FieldPhoto:
		return true
	}
	return false
}

type FormField struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type" enum:"text,number,select,textarea,date,checkbox,file,photo"`
	Required    bool      `json:"required"`
	Placeholder string    `json:"placeholder,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	MinLength   *int      `json:"min_length,omitempty"`
	MaxLength   *int      `json:"max_length,omitempty"`
	Options     []string  `json:"options,omitempty"`
	// AcceptedFormats and MaxSizeMB only apply to file fields.
	AcceptedFormats []string `json:"accepted_formats,omitempty"`
	MaxSizeMB       float64  `json:"max_size_mb,omitempty"`
	// Core fields are kept when the department is disabled and the reduced schema is served.
	Core bool `json:"core,omitempty"`
}

type PhotoRequirement struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	MinCount    int    `json:"min_count,omitempty"`
	MaxCount    int    `json:"max_count,omitempty"`
}

// EffectiveMinCount is the number of photos needed to satisfy a required category.
func (p PhotoRequirement) EffectiveMinCount() int {
	if p.MinCount < 1 {
		return 1
	}
	return p.MinCount
}

type FileRequirement struct {
	Name            string   `json:"name"`
	Label           string   `json:"label"`
	Description     string   `json:"description,omitempty"`
	Required        bool     `json:"required"`
	AcceptedFormats []string `json:"accepted_formats"`
	MaxSizeMB       float64  `json:"max_size_mb,omitempty"`
}

// Accepts matches a filename extension (".pdf") or a content type ("application/pdf")
// against the accepted formats. An empty list accepts anything.
func (f FileRequirement) Accepts(filename, contentType string) bool {
	return acceptsFormat(f.AcceptedFormats, filename, contentType)
}

func acceptsFormat(formats []string, filename, contentType string) bool {
	if len(formats) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	for _, f := range formats {
		f = strings.ToLower(f)
		switch {
		case strings.HasPrefix(f, "."):
			if ext == f {
				return true
			}
		case strings.HasSuffix(f, "/*"):
			if strings.HasPrefix(ct, strings.TrimSuffix(f, "*")) {
				return true
			}
		case f == ct:
			return true
		}
	}
	return false
}

// Schema declares what a worker must supply to complete a department's work.
// Collections are never nil.
type Schema struct {
	Department   domain.Department  `json:"department"`
	Title        string             `json:"title"`
	Instructions []string           `json:"instructions"`
	Fields       []FormField        `json:"fields"`
	Photos       []PhotoRequirement `json:"photos"`
	Files        []FileRequirement  `json:"files"`
	Reduced      bool               `json:"reduced,omitempty"`
}

func (s Schema) Field(name string) (FormField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FormField{}, false
}

func (s Schema) Photo(name string) (PhotoRequirement, bool) {
	for _, p := range s.Photos {
		if p.Name == name {
			return p, true
		}
	}
	return PhotoRequirement{}, false
}

func (s Schema) File(name string) (FileRequirement, bool) {
	for _, f := range s.Files {
		if f.Name == name {
			return f, true
		}
	}
	return FileRequirement{}, false
}

// Validate checks the structural invariants of a schema.
func (s Schema) Validate() error {
	var errs []error
	if s.Department == "" {
		errs = append(errs, errors.New("department is required"))
	}
	seen := map[string]bool{}
	for _, f := range s.Fields {
		if f.Name == "" {
			errs = append(errs, errors.New("field name is required"))
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("duplicate field %s", f.Name))
		}
		seen[f.Name] = true
		if !f.Type.valid() {
			errs = append(errs, fmt.Errorf("field %s: invalid type %q", f.Name, f.Type))
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			errs = append(errs, fmt.Errorf("field %s: min greater than max", f.Name))
		}
		if f.MinLength != nil && f.MaxLength != nil && *f.MinLength > *f.MaxLength {
			errs = append(errs, fmt.Errorf("field %s: minLength greater than maxLength", f.Name))
		}
		if f.Type == FieldSelect && len(f.Options) == 0 {
			errs = append(errs, fmt.Errorf("field %s: select requires options", f.Name))
		}
	}
	seen = map[string]bool{}
	for _, p := range s.Photos {
		if p.Name == "" {
			errs = append(errs, errors.New("photo category name is required"))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate photo category %s", p.Name))
		}
		seen[p.Name] = true
		if p.MinCount < 0 || p.MaxCount < 0 {
			errs = append(errs, fmt.Errorf("photo category %s: negative count", p.Name))
		}
		if p.MaxCount > 0 && p.MaxCount < p.EffectiveMinCount() {
			errs = append(errs, fmt.Errorf("photo category %s: maxCount below minCount", p.Name))
		}
	}
	seen = map[string]bool{}
	for _, f := range s.Files {
		if f.Name == "" {
			errs = append(errs, errors.New("file category name is required"))
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("duplicate file category %s", f.Name))
		}
		seen[f.Name] = true
		if f.MaxSizeMB < 0 {
			errs = append(errs, fmt.Errorf("file category %s: negative maxSizeMB", f.Name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("schema %s: %w", s.Department, errors.Join(errs...))
	}
	return nil
}

// ReducedSchema keeps core fields only and drops photo and file requirements.
func (s Schema) ReducedSchema() Schema {
	out := Schema{
		Department:   s.Department,
		Title:        s.Title,
		Instructions: append([]string{}, s.Instructions...),
		Fields:       []FormField{},
		Photos:       []PhotoRequirement{},
		Files:        []FileRequirement{},
		Reduced:      true,
	}
	for _, f := range s.Fields {
		if f.Core {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

func (s Schema) clone() Schema {
	out := s
	out.Instructions = append([]string{}, s.Instructions...)
	out.Fields = append([]FormField{}, s.Fields...)
	out.Photos = append([]PhotoRequirement{}, s.Photos...)
	out.Files = append([]FileRequirement{}, s.Files...)
	return out
}
