package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Lllllllleong/pdfassembler/internal/models"
	"github.com/Lllllllleong/pdfassembler/internal/services"
	"github.com/hashicorp/go-multierror"
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
}

func main() {
	planPath := flag.String("plan", "plan.yaml", "Path to the YAML plan to replay")
	flag.Parse()

	if err := run(context.Background(), *planPath); err != nil {
		slog.Error("Page assembler failed.", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, planPath string) error {
	plan, err := loadPlan(planPath)
	if err != nil {
		return err
	}

	w, err := services.NewWorkspace(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize workspace: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			slog.Warn("Failed to close workspace clients.", "error", err)
		}
	}()

	if err := applySettings(w, plan.Settings); err != nil {
		return err
	}

	refs, err := addDocuments(ctx, w, plan.Documents)
	if err != nil {
		return err
	}

	for i, gesture := range plan.Gestures {
		outcome, err := w.DispatchPayload(refs.resolve(gesture))
		if err != nil {
			return fmt.Errorf("gesture %d: %w", i, err)
		}
		slog.Info("Gesture applied.", "index", i, "type", gesture["type"], "outcome", outcome.String())
	}
	logLayout(w)

	var result *multierror.Error
	for _, e := range plan.Exports {
		if err := runExport(ctx, w, refs, e); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func applySettings(w *services.Workspace, s *PlanSettings) error {
	if s == nil {
		return nil
	}
	if s.Language != "" {
		if err := w.Settings().SetLanguage(s.Language); err != nil {
			return err
		}
	}
	if s.DarkMode != nil {
		w.Settings().ToggleDarkMode(s.DarkMode)
	}
	slog.Info("Settings applied.", "language", w.Settings().Language(), "isDarkMode", w.Settings().IsDarkMode())
	return nil
}

// addDocuments loads the plan's documents one at a time so that aliases line
// up with the files, unlocking the ones that come with a password.
func addDocuments(ctx context.Context, w *services.Workspace, docs []PlanDocument) (*aliases, error) {
	refs := newAliases()
	for _, d := range docs {
		logCtx := slog.With("alias", d.ID, "path", d.Path)
		added, err := w.AddFiles(ctx, []string{d.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", d.Path, err)
		}
		doc := added[0]
		if doc.Locked() {
			if d.Password == "" {
				return nil, fmt.Errorf("document %s requires a password", d.ID)
			}
			if err := w.Unlock(ctx, doc.ID, d.Password); err != nil {
				return nil, fmt.Errorf("failed to unlock %s: %w", d.ID, err)
			}
			doc = w.Snapshot().Documents[doc.ID]
		}
		refs.add(d.ID, doc)
		logCtx.Info("Document loaded.", "documentId", doc.ID, "pageCount", len(doc.Pages))
	}
	return refs, nil
}

func runExport(ctx context.Context, w *services.Workspace, refs *aliases, e PlanExport) error {
	opts := services.ExportOptions{
		FileName:   e.FileName,
		Password:   e.Password,
		Encryption: models.EncryptionLevel(e.Encryption),
	}
	var (
		resp *models.ExportResponse
		err  error
	)
	if e.Document == exportAll {
		resp, err = w.ExportAll(ctx, opts)
	} else {
		resp, err = w.ExportDocument(ctx, refs.document(e.Document), opts)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", e.Document, err)
	}
	slog.Info("Export written.", "document", e.Document, "outputPath", resp.OutputPath, "publishedUri", resp.PublishedURI, "pageCount", resp.PageCount)
	return nil
}

func logLayout(w *services.Workspace) {
	for _, doc := range w.Snapshot().Ordered() {
		slog.Info("Document layout.", "documentId", doc.ID, "name", doc.DisplayName, "state", string(doc.DecryptionState), "pages", doc.PageIDs())
	}
}
