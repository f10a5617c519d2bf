package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Lllllllleong/pdfassembler/internal/models"
	"github.com/Lllllllleong/pdfassembler/internal/reorder"
	"github.com/Lllllllleong/pdfassembler/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFile struct {
	pages    int
	password string
}

type fakeBackend struct {
	mu        sync.Mutex
	files     map[string]fakeFile
	exports   []models.ExportRequest
	renders   []models.RenderRequest
	exportErr error
	onExtract func(models.ExtractRequest)
}

func (f *fakeBackend) ExtractPages(_ context.Context, req models.ExtractRequest) (*models.Document, error) {
	file, ok := f.files[req.FilePath]
	if !ok {
		return nil, backendError(models.CodeFileNotFound, req.FilePath, errors.New("no such file"))
	}
	if f.onExtract != nil {
		f.onExtract(req)
	}
	state := models.DecryptionNotApplicable
	credential := ""
	if file.password != "" {
		switch req.Password {
		case "":
			return nil, backendError(models.CodePasswordRequired, req.FilePath, nil)
		case file.password:
			state = models.DecryptionUnlocked
			credential = req.Password
		default:
			return nil, backendError(models.CodePasswordIncorrect, req.FilePath, nil)
		}
	}
	doc := &models.Document{
		ID:              req.DocumentID,
		DisplayName:     filepath.Base(req.FilePath),
		SourceFilePath:  req.FilePath,
		Credential:      credential,
		DecryptionState: state,
	}
	for i := 0; i < file.pages; i++ {
		doc.Pages = append(doc.Pages, models.Page{
			ID:              fmt.Sprintf("%s_%d", req.DocumentID, i),
			SourceFilePath:  req.FilePath,
			SourcePageIndex: i,
		})
	}
	return doc, nil
}

func (f *fakeBackend) RenderFullResolution(_ context.Context, req models.RenderRequest) (*models.FullImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders = append(f.renders, req)
	return &models.FullImage{Data: []byte("%PDF"), MIMEType: pdfMIMEType, Width: 595, Height: 842}, nil
}

func (f *fakeBackend) ExportSelection(_ context.Context, req models.ExportRequest) (*models.ExportResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports = append(f.exports, req)
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return &models.ExportResponse{
		FileName:   req.FileName + ".pdf",
		OutputPath: "/exports/" + req.FileName + ".pdf",
		PageCount:  len(req.Pages),
	}, nil
}

type recordingRecorder struct {
	events []string
}

func (r *recordingRecorder) Start(_ context.Context, req models.ExportRequest) (string, error) {
	r.events = append(r.events, "start "+req.FileName)
	return "rec-1", nil
}

func (r *recordingRecorder) Complete(_ context.Context, id string, resp *models.ExportResponse) error {
	r.events = append(r.events, "complete "+id+" "+resp.OutputPath)
	return nil
}

func (r *recordingRecorder) Fail(_ context.Context, id, _ string) error {
	r.events = append(r.events, "fail "+id)
	return nil
}

type sinkFunc func(ctx context.Context, localPath, fileName string) (string, error)

func (f sinkFunc) Publish(ctx context.Context, localPath, fileName string) (string, error) {
	return f(ctx, localPath, fileName)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorkspace(backend *fakeBackend, deps Dependencies) *Workspace {
	deps.Backend = backend
	deps.Logger = testLogger()
	return NewWorkspaceWithDeps(WorkspaceConfig{MaxConcurrentExtractions: 3, StrictLockPolicy: true}, deps)
}

func defaultFiles() *fakeBackend {
	return &fakeBackend{files: map[string]fakeFile{
		"/in/a.pdf":      {pages: 2},
		"/in/b.pdf":      {pages: 1},
		"/in/secret.pdf": {pages: 1, password: "pw"},
	}}
}

func byName(t *testing.T, w *Workspace, name string) models.Document {
	t.Helper()
	for _, doc := range w.Snapshot().Ordered() {
		if doc.DisplayName == name {
			return doc
		}
	}
	require.FailNow(t, "document not found", name)
	return models.Document{}
}

func TestAddFiles(t *testing.T) {
	w := newTestWorkspace(defaultFiles(), Dependencies{})

	added, err := w.AddFiles(context.Background(), []string{"/in/a.pdf", "/in/missing.pdf", "/in/secret.pdf", "/in/b.pdf"})
	require.Error(t, err)
	assert.True(t, IsCode(err, models.CodeFileNotFound))
	require.Len(t, added, 3)

	var names []string
	for _, doc := range w.Snapshot().Ordered() {
		names = append(names, doc.DisplayName)
	}
	assert.Equal(t, []string{"a.pdf", "secret.pdf", "b.pdf"}, names)

	locked := byName(t, w, "secret.pdf")
	assert.Equal(t, models.DecryptionLocked, locked.DecryptionState)
	assert.Equal(t, models.CodePasswordRequired, locked.Error)
	assert.Empty(t, locked.Pages)

	assert.Len(t, byName(t, w, "a.pdf").Pages, 2)
	assert.Len(t, w.Current().PageLookup, 3)
}

func TestAddFilesCancelled(t *testing.T) {
	w := newTestWorkspace(defaultFiles(), Dependencies{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	added, err := w.AddFiles(ctx, []string{"/in/a.pdf", "/in/b.pdf"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, added)
	assert.Empty(t, w.Snapshot().Order)
}

func TestUnlock(t *testing.T) {
	w := newTestWorkspace(defaultFiles(), Dependencies{})
	_, err := w.AddFiles(context.Background(), []string{"/in/a.pdf", "/in/secret.pdf", "/in/b.pdf"})
	require.NoError(t, err)
	locked := byName(t, w, "secret.pdf")

	t.Run("wrong password keeps the document locked", func(t *testing.T) {
		err := w.Unlock(context.Background(), locked.ID, "nope")
		assert.True(t, IsCode(err, models.CodePasswordIncorrect))

		doc := byName(t, w, "secret.pdf")
		assert.Equal(t, models.DecryptionLocked, doc.DecryptionState)
		assert.Equal(t, models.CodePasswordIncorrect, doc.Error)
		assert.Empty(t, doc.Credential)
	})

	t.Run("right password unlocks in place", func(t *testing.T) {
		require.NoError(t, w.Unlock(context.Background(), locked.ID, "pw"))

		snap := w.Snapshot()
		assert.Equal(t, locked.ID, snap.Order[1])
		doc := snap.Documents[locked.ID]
		assert.Equal(t, models.DecryptionUnlocked, doc.DecryptionState)
		assert.Empty(t, doc.Error)
		assert.Equal(t, "pw", doc.Credential)
		assert.Len(t, doc.Pages, 1)
	})

	t.Run("only locked documents can be unlocked", func(t *testing.T) {
		assert.ErrorIs(t, w.Unlock(context.Background(), locked.ID, "pw"), ErrNotLocked)
		assert.ErrorIs(t, w.Unlock(context.Background(), "ghost", "pw"), store.ErrDocumentNotFound)
	})
}

func TestUnlockRacesWithEditing(t *testing.T) {
	for _, password := range []string{"pw", "wrong"} {
		t.Run("removed while unlocking with "+password, func(t *testing.T) {
			backend := defaultFiles()
			w := newTestWorkspace(backend, Dependencies{})
			_, err := w.AddFiles(context.Background(), []string{"/in/secret.pdf"})
			require.NoError(t, err)
			locked := byName(t, w, "secret.pdf")

			backend.onExtract = func(models.ExtractRequest) {
				require.NoError(t, w.RemoveDocument(locked.ID))
			}
			assert.Error(t, w.Unlock(context.Background(), locked.ID, password))

			snap := w.Snapshot()
			assert.Empty(t, snap.Order)
			assert.Empty(t, snap.Documents)
		})
	}

	t.Run("rename during unlock is kept", func(t *testing.T) {
		backend := defaultFiles()
		w := newTestWorkspace(backend, Dependencies{})
		_, err := w.AddFiles(context.Background(), []string{"/in/a.pdf", "/in/secret.pdf"})
		require.NoError(t, err)
		locked := byName(t, w, "secret.pdf")

		backend.onExtract = func(models.ExtractRequest) {
			require.NoError(t, w.RenameDocument(locked.ID, "contract"))
		}
		require.NoError(t, w.Unlock(context.Background(), locked.ID, "pw"))

		doc := w.Snapshot().Documents[locked.ID]
		assert.Equal(t, "contract", doc.DisplayName)
		assert.Equal(t, models.DecryptionUnlocked, doc.DecryptionState)
		assert.Equal(t, "pw", doc.Credential)
		assert.Equal(t, locked.ID, w.Snapshot().Order[1])
	})
}

func TestDispatchAndExport(t *testing.T) {
	backend := defaultFiles()
	recorder := &recordingRecorder{}
	w := newTestWorkspace(backend, Dependencies{Recorder: recorder})
	ctx := context.Background()

	_, err := w.AddFiles(ctx, []string{"/in/a.pdf", "/in/secret.pdf"})
	require.NoError(t, err)
	a := byName(t, w, "a.pdf")
	secret := byName(t, w, "secret.pdf")
	require.NoError(t, w.Unlock(ctx, secret.ID, "pw"))
	secretPage := secret.ID + "_0"

	assert.Equal(t, reorder.OutcomeApplied, w.Dispatch(reorder.DragStart{Entity: reorder.DraggedPage{ID: secretPage, GroupID: secret.ID}}))
	assert.Equal(t, reorder.OutcomeApplied, w.Dispatch(reorder.DragOver{Target: reorder.PageTarget{ID: a.Pages[0].ID}}))
	require.NotNil(t, w.Dragging())
	assert.Equal(t, reorder.OutcomeCommitted, w.Dispatch(reorder.DragEnd{Target: reorder.PageTarget{ID: a.Pages[0].ID}}))
	assert.Nil(t, w.Dragging())

	assert.Equal(t, []string{secretPage, a.Pages[0].ID, a.Pages[1].ID}, w.Current().Membership[a.ID])
	assert.Empty(t, w.Current().Membership[secret.ID])

	resp, err := w.ExportDocument(ctx, a.ID, ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.PageCount)
	assert.Empty(t, resp.PublishedURI)

	require.Len(t, backend.exports, 1)
	req := backend.exports[0]
	assert.Equal(t, "a.pdf", req.FileName)
	assert.Equal(t, []models.ExportPage{
		{FilePath: "/in/secret.pdf", PageIndex: 0, Password: "pw"},
		{FilePath: "/in/a.pdf", PageIndex: 0},
		{FilePath: "/in/a.pdf", PageIndex: 1},
	}, req.Pages)
	assert.Equal(t, []string{"start a.pdf", "complete rec-1 /exports/a.pdf.pdf"}, recorder.events)
}

func TestDispatchIntoLockedDocument(t *testing.T) {
	w := newTestWorkspace(defaultFiles(), Dependencies{})
	_, err := w.AddFiles(context.Background(), []string{"/in/a.pdf", "/in/secret.pdf"})
	require.NoError(t, err)
	a := byName(t, w, "a.pdf")
	secret := byName(t, w, "secret.pdf")

	w.Dispatch(reorder.DragStart{Entity: reorder.DraggedPage{ID: a.Pages[0].ID}})
	assert.Equal(t, reorder.OutcomeDenied, w.Dispatch(reorder.DragOver{Target: reorder.DocumentTarget{ID: secret.ID}}))
	w.Dispatch(reorder.DragEnd{Target: reorder.DocumentTarget{ID: secret.ID}})

	assert.Equal(t, a.PageIDs(), byName(t, w, "a.pdf").PageIDs())
	assert.Empty(t, byName(t, w, "secret.pdf").Pages)
}

func TestDispatchPayload(t *testing.T) {
	w := newTestWorkspace(defaultFiles(), Dependencies{})
	_, err := w.AddFiles(context.Background(), []string{"/in/a.pdf", "/in/b.pdf"})
	require.NoError(t, err)
	a := byName(t, w, "a.pdf")
	b := byName(t, w, "b.pdf")

	outcome, err := w.DispatchPayload(map[string]any{
		"type":   "start",
		"source": map[string]any{"kind": "document", "id": b.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, reorder.OutcomeApplied, outcome)

	outcome, err = w.DispatchPayload(map[string]any{
		"type":   "end",
		"target": map[string]any{"kind": "document", "id": a.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, reorder.OutcomeCommitted, outcome)
	assert.Equal(t, []string{b.ID, a.ID}, w.Snapshot().Order)

	_, err = w.DispatchPayload(map[string]any{"type": "hover"})
	assert.Error(t, err)
}

func TestExportAll(t *testing.T) {
	backend := defaultFiles()
	w := newTestWorkspace(backend, Dependencies{})
	ctx := context.Background()
	_, err := w.AddFiles(ctx, []string{"/in/b.pdf", "/in/a.pdf"})
	require.NoError(t, err)

	_, err = w.ExportAll(ctx, ExportOptions{Password: "out"})
	require.NoError(t, err)

	require.Len(t, backend.exports, 1)
	req := backend.exports[0]
	assert.Equal(t, mergedExportName, req.FileName)
	assert.Equal(t, "out", req.Password)
	assert.Equal(t, models.AES128, req.Encryption)
	require.Len(t, req.Pages, 3)
	assert.Equal(t, "/in/b.pdf", req.Pages[0].FilePath)
	assert.Equal(t, "/in/a.pdf", req.Pages[2].FilePath)
}

func TestExportFailures(t *testing.T) {
	t.Run("backend failure marks the record failed", func(t *testing.T) {
		backend := defaultFiles()
		backend.exportErr = backendError(models.CodeSave, "/exports", errors.New("disk full"))
		recorder := &recordingRecorder{}
		w := newTestWorkspace(backend, Dependencies{Recorder: recorder})
		_, err := w.AddFiles(context.Background(), []string{"/in/a.pdf"})
		require.NoError(t, err)

		_, err = w.ExportAll(context.Background(), ExportOptions{FileName: "out"})
		require.Error(t, err)
		assert.True(t, IsCode(err, models.CodeSave))
		assert.Equal(t, []string{"start out", "fail rec-1"}, recorder.events)
	})

	t.Run("publish failure marks the record failed", func(t *testing.T) {
		recorder := &recordingRecorder{}
		sink := sinkFunc(func(context.Context, string, string) (string, error) {
			return "", errors.New("bucket unavailable")
		})
		w := newTestWorkspace(defaultFiles(), Dependencies{Recorder: recorder, Sink: sink})
		_, err := w.AddFiles(context.Background(), []string{"/in/a.pdf"})
		require.NoError(t, err)

		_, err = w.ExportAll(context.Background(), ExportOptions{FileName: "out"})
		assert.ErrorContains(t, err, "bucket unavailable")
		assert.Equal(t, []string{"start out", "fail rec-1"}, recorder.events)
	})

	t.Run("published uri is reported", func(t *testing.T) {
		sink := sinkFunc(func(_ context.Context, _, fileName string) (string, error) {
			return "gs://bucket/exports/" + fileName, nil
		})
		w := newTestWorkspace(defaultFiles(), Dependencies{Sink: sink})
		_, err := w.AddFiles(context.Background(), []string{"/in/a.pdf"})
		require.NoError(t, err)

		resp, err := w.ExportAll(context.Background(), ExportOptions{FileName: "out"})
		require.NoError(t, err)
		assert.Equal(t, "gs://bucket/exports/out.pdf", resp.PublishedURI)
	})

	t.Run("unknown document", func(t *testing.T) {
		w := newTestWorkspace(defaultFiles(), Dependencies{})
		_, err := w.ExportDocument(context.Background(), "ghost", ExportOptions{})
		assert.ErrorIs(t, err, store.ErrDocumentNotFound)
	})
}

func TestRenderPage(t *testing.T) {
	backend := defaultFiles()
	w := newTestWorkspace(backend, Dependencies{})
	ctx := context.Background()
	_, err := w.AddFiles(ctx, []string{"/in/secret.pdf"})
	require.NoError(t, err)
	secret := byName(t, w, "secret.pdf")
	require.NoError(t, w.Unlock(ctx, secret.ID, "pw"))

	img, err := w.RenderPage(ctx, secret.ID+"_0")
	require.NoError(t, err)
	assert.Equal(t, pdfMIMEType, img.MIMEType)
	require.Len(t, backend.renders, 1)
	assert.Equal(t, models.RenderRequest{FilePath: "/in/secret.pdf", PageIndex: 0, Password: "pw"}, backend.renders[0])

	_, err = w.RenderPage(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrPageNotFound)
}

func TestDocumentEditing(t *testing.T) {
	w := newTestWorkspace(defaultFiles(), Dependencies{})
	_, err := w.AddFiles(context.Background(), []string{"/in/a.pdf", "/in/b.pdf"})
	require.NoError(t, err)
	a := byName(t, w, "a.pdf")
	b := byName(t, w, "b.pdf")

	require.NoError(t, w.RenameDocument(a.ID, "chapter one"))
	assert.Equal(t, "chapter one", w.Snapshot().Documents[a.ID].DisplayName)

	dup, err := w.DuplicatePage(a.ID, a.Pages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.Pages[0].ID, a.Pages[1].ID, dup}, w.Current().Membership[a.ID])

	require.NoError(t, w.RemovePage(a.ID, a.Pages[1].ID))
	assert.Equal(t, []string{a.Pages[0].ID, dup}, w.Current().Membership[a.ID])

	require.NoError(t, w.RemoveDocument(b.ID))
	assert.Equal(t, []string{a.ID}, w.Snapshot().Order)

	w.Reset()
	assert.Empty(t, w.Snapshot().Order)
	assert.Empty(t, w.Current().PageLookup)

	require.NoError(t, w.Settings().SetLanguage("de"))
	assert.Equal(t, "de", w.Settings().Language())
}

func TestLoadWorkspaceConfig(t *testing.T) {
	t.Setenv("OUTPUT_DIR", "/tmp/out")
	t.Setenv("MAX_CONCURRENT_EXTRACTIONS", "2")
	t.Setenv("STRICT_LOCK_POLICY", "false")

	config := loadWorkspaceConfig()
	assert.Equal(t, "/tmp/out", config.OutputDir)
	assert.Equal(t, 2, config.MaxConcurrentExtractions)
	assert.False(t, config.StrictLockPolicy)
	assert.Equal(t, "exports", config.ExportCollection)
}
