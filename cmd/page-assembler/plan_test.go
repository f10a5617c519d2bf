package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/pdfassembler/internal/models"
	"github.com/Lllllllleong/pdfassembler/internal/reorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `
documents:
  - id: A
    path: /in/a.pdf
  - id: B
    path: /in/b.pdf
    password: pw
gestures:
  - type: start
    source: {kind: page, id: A/1, group: A}
  - type: over
    target: {kind: page, id: B/0}
  - type: end
    target: {kind: document, id: B}
exports:
  - document: B
    fileName: combined
    password: out
    encryption: AES256
  - document: all
settings:
  language: de
  darkMode: true
`

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPlan(t *testing.T) {
	plan, err := loadPlan(writePlan(t, samplePlan))
	require.NoError(t, err)

	require.Len(t, plan.Documents, 2)
	assert.Equal(t, "pw", plan.Documents[1].Password)
	require.Len(t, plan.Gestures, 3)
	require.Len(t, plan.Exports, 2)
	assert.Equal(t, "AES256", plan.Exports[0].Encryption)
	require.NotNil(t, plan.Settings)
	assert.Equal(t, "de", plan.Settings.Language)
	require.NotNil(t, plan.Settings.DarkMode)
	assert.True(t, *plan.Settings.DarkMode)
}

func TestLoadPlanRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "no documents", content: "gestures: []\n"},
		{name: "duplicate alias", content: "documents:\n  - {id: A, path: /a.pdf}\n  - {id: A, path: /b.pdf}\n"},
		{name: "missing path", content: "documents:\n  - {id: A}\n"},
		{name: "reserved alias", content: "documents:\n  - {id: all, path: /a.pdf}\n"},
		{name: "unknown export document", content: "documents:\n  - {id: A, path: /a.pdf}\nexports:\n  - {document: Z}\n"},
		{name: "unknown encryption", content: "documents:\n  - {id: A, path: /a.pdf}\nexports:\n  - {document: A, encryption: RC4}\n"},
		{name: "malformed yaml", content: "documents: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadPlan(writePlan(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := loadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAliasesResolve(t *testing.T) {
	refs := newAliases()
	refs.add("A", models.Document{ID: "uuid-a", Pages: []models.Page{{ID: "uuid-a_0"}, {ID: "uuid-a_1"}}})
	refs.add("B", models.Document{ID: "uuid-b", Pages: []models.Page{{ID: "uuid-b_0"}}})

	plan, err := loadPlan(writePlan(t, samplePlan))
	require.NoError(t, err)

	var events []reorder.Event
	for _, g := range plan.Gestures {
		ev, err := reorder.DecodeEvent(refs.resolve(g))
		require.NoError(t, err)
		events = append(events, ev)
	}
	assert.Equal(t, []reorder.Event{
		reorder.DragStart{Entity: reorder.DraggedPage{ID: "uuid-a_1", GroupID: "uuid-a"}},
		reorder.DragOver{Target: reorder.PageTarget{ID: "uuid-b_0"}},
		reorder.DragEnd{Target: reorder.DocumentTarget{ID: "uuid-b"}},
	}, events)

	t.Run("unknown references pass through", func(t *testing.T) {
		assert.Equal(t, "C/0", refs.page("C/0"))
		assert.Equal(t, "A/9", refs.page("A/9"))
		assert.Equal(t, "A/x", refs.page("A/x"))
		assert.Equal(t, "plain", refs.page("plain"))
		assert.Equal(t, "C", refs.document("C"))
	})

	t.Run("payload is not mutated", func(t *testing.T) {
		payload := map[string]any{"type": "over", "target": map[string]any{"kind": "document", "id": "A"}}
		resolved := refs.resolve(payload)
		assert.Equal(t, "A", payload["target"].(map[string]any)["id"])
		assert.Equal(t, "uuid-a", resolved["target"].(map[string]any)["id"])
	})
}
