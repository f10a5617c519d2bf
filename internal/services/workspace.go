package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/Lllllllleong/pdfassembler/internal/gcp"
	"github.com/Lllllllleong/pdfassembler/internal/guard"
	"github.com/Lllllllleong/pdfassembler/internal/models"
	"github.com/Lllllllleong/pdfassembler/internal/projection"
	"github.com/Lllllllleong/pdfassembler/internal/reconcile"
	"github.com/Lllllllleong/pdfassembler/internal/reorder"
	"github.com/Lllllllleong/pdfassembler/internal/settings"
	"github.com/Lllllllleong/pdfassembler/internal/store"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const mergedExportName = "merged"

type WorkspaceConfig struct {
	OutputDir                string
	ProjectID                string
	ExportCollection         string
	ExportBucket             string
	ExportPrefix             string
	MaxConcurrentExtractions int
	StrictLockPolicy         bool
}

func loadWorkspaceConfig() WorkspaceConfig {
	return WorkspaceConfig{
		OutputDir:                gcp.GetEnv("OUTPUT_DIR", "./exports"),
		ProjectID:                gcp.GetEnv("PROJECT_ID", ""),
		ExportCollection:         gcp.GetEnv("EXPORT_COLLECTION", "exports"),
		ExportBucket:             gcp.GetEnv("EXPORT_BUCKET", ""),
		ExportPrefix:             gcp.GetEnv("EXPORT_PREFIX", "exports"),
		MaxConcurrentExtractions: gcp.GetEnvInt("MAX_CONCURRENT_EXTRACTIONS", 4),
		StrictLockPolicy:         gcp.GetEnvBool("STRICT_LOCK_POLICY", true),
	}
}

// Dependencies are the collaborators of a Workspace. Nil Sink and Recorder
// default to LocalSink and NopRecorder.
type Dependencies struct {
	Backend  Backend
	Sink     ExportSink
	Recorder ExportRecorder
	Logger   *slog.Logger
}

// ExportOptions controls a single export.
type ExportOptions struct {
	FileName   string
	Password   string
	Encryption models.EncryptionLevel
}

// Workspace is the handle a UI shell holds: the entity store, the live
// projection, the reorder engine and the backend behind one API.
type Workspace struct {
	config   WorkspaceConfig
	backend  Backend
	sink     ExportSink
	recorder ExportRecorder
	logger   *slog.Logger

	store    *store.Store
	tracker  *projection.Tracker
	settings *settings.Settings

	// mu serialises drag events.
	mu     sync.Mutex
	engine *reorder.Engine

	clients *gcp.Clients
}

// NewWorkspace builds a Workspace from environment configuration. Firestore
// export records and GCS publishing are enabled when PROJECT_ID and
// EXPORT_BUCKET are set.
func NewWorkspace(ctx context.Context) (*Workspace, error) {
	config := loadWorkspaceConfig()
	fs := afero.NewOsFs()
	deps := Dependencies{
		Backend: NewPDFBackend(fs, config.OutputDir),
		Logger:  slog.Default(),
	}
	clients, err := gcp.NewClients(ctx, config.ProjectID, config.ExportBucket != "")
	if err != nil {
		return nil, err
	}
	if clients.Firestore != nil {
		deps.Recorder = NewFirestoreRecorder(clients.Firestore, config.ExportCollection)
	}
	if clients.Storage != nil {
		deps.Sink = NewGCSSink(clients.Storage, fs, config.ExportBucket, config.ExportPrefix)
	}

	w := NewWorkspaceWithDeps(config, deps)
	w.clients = clients
	slog.Info("Workspace initialized.",
		"outputDir", config.OutputDir,
		"exportRecords", config.ProjectID != "",
		"exportBucket", config.ExportBucket,
		"strictLockPolicy", config.StrictLockPolicy,
	)
	return w, nil
}

// NewWorkspaceWithDeps wires a Workspace around explicit collaborators.
func NewWorkspaceWithDeps(config WorkspaceConfig, deps Dependencies) *Workspace {
	if config.MaxConcurrentExtractions <= 0 {
		config.MaxConcurrentExtractions = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := &Workspace{
		config:   config,
		backend:  deps.Backend,
		sink:     deps.Sink,
		recorder: deps.Recorder,
		logger:   logger,
		store:    store.New(logger),
		settings: settings.New(),
	}
	if w.sink == nil {
		w.sink = LocalSink{}
	}
	if w.recorder == nil {
		w.recorder = NopRecorder{}
	}

	w.tracker = projection.NewTracker(w.store.Get())
	w.store.Subscribe(w.tracker.Update)

	policy := guard.NewLockPolicy(w.store, guard.WithOutgoingLock(config.StrictLockPolicy))
	w.engine = reorder.NewEngine(w.tracker, policy, reconcile.New(w.store, logger), logger)
	return w
}

// Close releases the cloud clients opened by NewWorkspace.
func (w *Workspace) Close() error {
	if w.clients == nil {
		return nil
	}
	return w.clients.Close()
}

// Snapshot returns a copy of the authoritative state.
func (w *Workspace) Snapshot() models.Snapshot { return w.store.Get() }

// Current returns the projection of the latest state.
func (w *Workspace) Current() *projection.Projection { return w.tracker.Current() }

// Settings returns the session preferences.
func (w *Workspace) Settings() *settings.Settings { return w.settings }

// AddFiles extracts every file concurrently, then adds the resulting documents
// to the store from the calling goroutine in input order. A cancelled context
// stops pending extractions and nothing is added. A file that needs a password is added as a locked document
// without pages. Every other failure is collected and returned together.
func (w *Workspace) AddFiles(ctx context.Context, paths []string) ([]models.Document, error) {
	type result struct {
		doc *models.Document
		err error
	}
	results := make([]result, len(paths))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(w.config.MaxConcurrentExtractions)
	for i, path := range paths {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := w.backend.ExtractPages(gctx, models.ExtractRequest{
				FilePath:   path,
				DocumentID: uuid.NewString(),
			})
			results[i] = result{doc: doc, err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("failed to extract files: %w", err)
	}

	var (
		added  []models.Document
		errs   *multierror.Error
		locked int
	)
	for i, r := range results {
		logCtx := w.logger.With("filePath", paths[i])
		doc := r.doc
		if r.err != nil {
			if !IsCode(r.err, models.CodePasswordRequired) {
				logCtx.Error("Failed to extract pages.", "error", r.err)
				errs = multierror.Append(errs, r.err)
				continue
			}
			doc = lockedPlaceholder(paths[i])
			locked++
		}
		if err := w.store.AddDocument(*doc); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to add %s: %w", paths[i], err))
			continue
		}
		added = append(added, *doc)
	}
	w.logger.Info("Files added.", "requested", len(paths), "added", len(added), "locked", locked)
	return added, errs.ErrorOrNil()
}

func lockedPlaceholder(path string) *models.Document {
	return &models.Document{
		ID:              uuid.NewString(),
		DisplayName:     filepath.Base(path),
		SourceFilePath:  path,
		DecryptionState: models.DecryptionLocked,
		Error:           models.CodePasswordRequired,
	}
}

// Unlock retries extraction of a locked document with a password. On success
// the document keeps its id, name and position and becomes unlocked. A wrong
// password leaves it locked with the error recorded and no credential kept.
// Only the unlock fields are written back, and a document removed while the
// extraction ran is not restored.
func (w *Workspace) Unlock(ctx context.Context, documentID, password string) error {
	logCtx := w.logger.With("documentId", documentID)
	doc, ok := w.store.Document(documentID)
	if !ok {
		return fmt.Errorf("unlock %s: %w", documentID, store.ErrDocumentNotFound)
	}
	if !doc.Locked() {
		return fmt.Errorf("unlock %s: %w", documentID, ErrNotLocked)
	}

	unlocked, err := w.backend.ExtractPages(ctx, models.ExtractRequest{
		FilePath:   doc.SourceFilePath,
		Password:   password,
		DocumentID: doc.ID,
	})
	if err != nil {
		logCtx.Warn("Failed to unlock document.", "error", err)
		code := CodeOf(err)
		if code == "" {
			code = models.CodeLoad
		}
		updateErr := w.store.UpdateDocument(documentID, func(d *models.Document) error {
			d.Credential = ""
			d.Error = code
			return nil
		})
		if updateErr != nil {
			logCtx.Warn("Failed to record unlock failure.", "error", updateErr)
		}
		return err
	}

	err = w.store.UpdateDocument(documentID, func(d *models.Document) error {
		d.Pages = unlocked.Pages
		d.DecryptionState = unlocked.DecryptionState
		d.Credential = unlocked.Credential
		d.Error = ""
		return nil
	})
	if err != nil {
		logCtx.Warn("Discarding unlock result.", "error", err)
		return fmt.Errorf("failed to store unlocked document: %w", err)
	}
	logCtx.Info("Document unlocked.", "pageCount", len(unlocked.Pages), "decryptionState", unlocked.DecryptionState)
	return nil
}

// Dispatch feeds one drag event to the reorder engine.
func (w *Workspace) Dispatch(ev reorder.Event) reorder.Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine.Handle(ev)
}

// DispatchPayload decodes an untyped event payload and dispatches it.
func (w *Workspace) DispatchPayload(payload map[string]any) (reorder.Outcome, error) {
	ev, err := reorder.DecodeEvent(payload)
	if err != nil {
		return reorder.OutcomeIgnored, err
	}
	return w.Dispatch(ev), nil
}

// Dragging returns the in-progress working projection, or nil when no gesture
// is active.
func (w *Workspace) Dragging() *projection.Working {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine.Working()
}

func (w *Workspace) RenameDocument(documentID, name string) error {
	return w.store.RenameDocument(documentID, name)
}

func (w *Workspace) RemoveDocument(documentID string) error {
	return w.store.RemoveDocument(documentID)
}

func (w *Workspace) RemovePage(documentID, pageID string) error {
	return w.store.RemovePage(documentID, pageID)
}

func (w *Workspace) DuplicatePage(documentID, pageID string) (string, error) {
	return w.store.DuplicatePage(documentID, pageID)
}

// Reset removes every document.
func (w *Workspace) Reset() {
	w.store.Clear()
}

// RenderPage renders one page at full resolution using the credential of the
// document its source file was unlocked with.
func (w *Workspace) RenderPage(ctx context.Context, pageID string) (*models.FullImage, error) {
	page, ok := w.tracker.Current().PageLookup[pageID]
	if !ok {
		return nil, fmt.Errorf("render %s: %w", pageID, store.ErrPageNotFound)
	}
	return w.backend.RenderFullResolution(ctx, models.RenderRequest{
		FilePath:  page.SourceFilePath,
		PageIndex: page.SourcePageIndex,
		Password:  passwordFor(w.store.Get(), page.SourceFilePath),
	})
}

// ExportDocument exports one document's pages in their current order. The
// file name defaults to the document's display name.
func (w *Workspace) ExportDocument(ctx context.Context, documentID string, opts ExportOptions) (*models.ExportResponse, error) {
	snap := w.store.Get()
	doc, ok := snap.Documents[documentID]
	if !ok {
		return nil, fmt.Errorf("export %s: %w", documentID, store.ErrDocumentNotFound)
	}
	if opts.FileName == "" {
		opts.FileName = doc.DisplayName
	}
	return w.export(ctx, exportRequest(snap, []models.Document{doc}, opts))
}

// ExportAll exports every document's pages, documents in Group Order.
func (w *Workspace) ExportAll(ctx context.Context, opts ExportOptions) (*models.ExportResponse, error) {
	snap := w.store.Get()
	if opts.FileName == "" {
		opts.FileName = mergedExportName
	}
	return w.export(ctx, exportRequest(snap, snap.Ordered(), opts))
}

func exportRequest(snap models.Snapshot, docs []models.Document, opts ExportOptions) models.ExportRequest {
	req := models.ExportRequest{
		FileName:   opts.FileName,
		Password:   opts.Password,
		Encryption: opts.Encryption,
	}
	if req.Password != "" && req.Encryption == "" {
		req.Encryption = models.AES128
	}
	for _, doc := range docs {
		for _, page := range doc.Pages {
			req.Pages = append(req.Pages, models.ExportPage{
				FilePath:  page.SourceFilePath,
				PageIndex: page.SourcePageIndex,
				Password:  passwordFor(snap, page.SourceFilePath),
			})
		}
	}
	return req
}

// passwordFor finds the credential for a source file. Pages keep their source
// file when they move, so the owning document is not necessarily the one the
// file was unlocked through.
func passwordFor(snap models.Snapshot, filePath string) string {
	for _, doc := range snap.Ordered() {
		if doc.SourceFilePath == filePath && doc.Credential != "" {
			return doc.Credential
		}
	}
	return ""
}

func (w *Workspace) export(ctx context.Context, req models.ExportRequest) (*models.ExportResponse, error) {
	logCtx := w.logger.With("fileName", req.FileName, "pageCount", len(req.Pages))

	recordID, err := w.recorder.Start(ctx, req)
	if err != nil {
		logCtx.Error("Failed to create export record.", "error", err)
		return nil, err
	}
	logCtx = logCtx.With("exportId", recordID)

	resp, err := w.backend.ExportSelection(ctx, req)
	if err != nil {
		return nil, w.handleError(ctx, logCtx, recordID, "failed to export selection", err)
	}

	uri, err := w.sink.Publish(ctx, resp.OutputPath, resp.FileName)
	if err != nil {
		return nil, w.handleError(ctx, logCtx, recordID, "failed to publish export", err)
	}
	if uri != resp.OutputPath {
		resp.PublishedURI = uri
	}

	if err := w.recorder.Complete(ctx, recordID, resp); err != nil {
		logCtx.Error("Failed to mark export record COMPLETE.", "error", err)
	}
	logCtx.Info("Export complete.", "outputPath", resp.OutputPath, "publishedUri", resp.PublishedURI)
	return resp, nil
}

// handleError logs a failed export, marks its record FAILED and returns the
// error wrapped with message. A *BackendError stays reachable via errors.As.
func (w *Workspace) handleError(ctx context.Context, logCtx *slog.Logger, recordID, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	if err := w.recorder.Fail(ctx, recordID, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to mark export record FAILED after an export error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

var (
	_ Backend        = (*PDFBackend)(nil)
	_ ExportSink     = LocalSink{}
	_ ExportSink     = (*GCSSink)(nil)
	_ ExportRecorder = NopRecorder{}
	_ ExportRecorder = (*FirestoreRecorder)(nil)
)
