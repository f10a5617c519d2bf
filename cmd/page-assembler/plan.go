package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Lllllllleong/pdfassembler/internal/models"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

const exportAll = "all"

// Plan is a scripted session: documents to load, drag gestures to replay and
// exports to write.
type Plan struct {
	Documents []PlanDocument   `yaml:"documents"`
	Gestures  []map[string]any `yaml:"gestures"`
	Exports   []PlanExport     `yaml:"exports"`
	Settings  *PlanSettings    `yaml:"settings"`
}

// PlanDocument names a file with an alias that gestures and exports refer to.
// Pages are referenced as "<alias>/<index>".
type PlanDocument struct {
	ID       string `yaml:"id"`
	Path     string `yaml:"path"`
	Password string `yaml:"password"`
}

type PlanExport struct {
	Document   string `yaml:"document"`
	FileName   string `yaml:"fileName"`
	Password   string `yaml:"password"`
	Encryption string `yaml:"encryption"`
}

type PlanSettings struct {
	Language string `yaml:"language"`
	DarkMode *bool  `yaml:"darkMode"`
}

func loadPlan(path string) (*Plan, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(content, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &plan, nil
}

func (p Plan) Validate() error {
	seen := make(map[string]bool, len(p.Documents))
	for _, d := range p.Documents {
		if seen[d.ID] {
			return fmt.Errorf("document id %q is used twice", d.ID)
		}
		seen[d.ID] = true
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.Documents, validation.Required),
		validation.Field(&p.Exports, validation.Each(validation.By(func(value interface{}) error {
			e, _ := value.(PlanExport)
			if e.Document != exportAll && !seen[e.Document] {
				return fmt.Errorf("export references unknown document %q", e.Document)
			}
			return nil
		}))),
	)
}

func (d PlanDocument) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.ID, validation.Required, validation.NotIn(exportAll)),
		validation.Field(&d.Path, validation.Required),
	)
}

func (e PlanExport) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Document, validation.Required),
		validation.Field(&e.Encryption, validation.In(string(models.AES128), string(models.AES256))),
	)
}

// aliases maps plan ids to the ids the workspace generated.
type aliases struct {
	documents map[string]string
	pages     map[string][]string
}

func newAliases() *aliases {
	return &aliases{documents: map[string]string{}, pages: map[string][]string{}}
}

func (a *aliases) add(alias string, doc models.Document) {
	a.documents[alias] = doc.ID
	a.pages[alias] = doc.PageIDs()
}

// resolve returns a copy of a gesture payload with plan ids replaced. Unknown
// references pass through unchanged.
func (a *aliases) resolve(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	for _, key := range []string{"source", "target"} {
		ref, ok := payload[key].(map[string]any)
		if !ok {
			continue
		}
		resolved := make(map[string]any, len(ref))
		for k, v := range ref {
			resolved[k] = v
		}
		id, _ := ref["id"].(string)
		switch ref["kind"] {
		case "page":
			resolved["id"] = a.page(id)
			if group, ok := ref["group"].(string); ok {
				resolved["group"] = a.document(group)
			}
		case "document":
			resolved["id"] = a.document(id)
		}
		out[key] = resolved
	}
	return out
}

func (a *aliases) document(alias string) string {
	if id, ok := a.documents[alias]; ok {
		return id
	}
	return alias
}

func (a *aliases) page(ref string) string {
	i := strings.LastIndex(ref, "/")
	if i < 0 {
		return ref
	}
	index, err := strconv.Atoi(ref[i+1:])
	if err != nil {
		return ref
	}
	pages := a.pages[ref[:i]]
	if index < 0 || index >= len(pages) {
		return ref
	}
	return pages[index]
}
