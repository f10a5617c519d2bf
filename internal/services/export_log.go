package services

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/pdfassembler/internal/models"
)

// ExportRecorder tracks the lifecycle of exports: EXPORTING, then COMPLETE or
// FAILED.
type ExportRecorder interface {
	Start(ctx context.Context, req models.ExportRequest) (string, error)
	Complete(ctx context.Context, recordID string, resp *models.ExportResponse) error
	Fail(ctx context.Context, recordID, details string) error
}

// NopRecorder records nothing.
type NopRecorder struct{}

func (NopRecorder) Start(context.Context, models.ExportRequest) (string, error) { return "", nil }

func (NopRecorder) Complete(context.Context, string, *models.ExportResponse) error { return nil }

func (NopRecorder) Fail(context.Context, string, string) error { return nil }

// FirestoreRecorder keeps one document per export in a collection.
type FirestoreRecorder struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreRecorder(client *firestore.Client, collection string) *FirestoreRecorder {
	return &FirestoreRecorder{client: client, collection: collection}
}

func (r *FirestoreRecorder) Start(ctx context.Context, req models.ExportRequest) (string, error) {
	record := models.ExportRecord{
		FileName:  req.FileName,
		Status:    models.ExportStatusExporting,
		PageCount: len(req.Pages),
		Encrypted: req.Password != "",
		CreatedAt: time.Now(),
	}
	docRef, _, err := r.client.Collection(r.collection).Add(ctx, record)
	if err != nil {
		return "", fmt.Errorf("failed to create export record: %w", err)
	}
	return docRef.ID, nil
}

func (r *FirestoreRecorder) Complete(ctx context.Context, recordID string, resp *models.ExportResponse) error {
	updates := []firestore.Update{
		{Path: "status", Value: models.ExportStatusComplete},
		{Path: "outputPath", Value: resp.OutputPath},
		{Path: "pageCount", Value: resp.PageCount},
	}
	if resp.PublishedURI != "" {
		updates = append(updates, firestore.Update{Path: "publishedUri", Value: resp.PublishedURI})
	}
	return r.update(ctx, recordID, updates)
}

func (r *FirestoreRecorder) Fail(ctx context.Context, recordID, details string) error {
	updates := []firestore.Update{
		{Path: "status", Value: models.ExportStatusFailed},
	}
	if details != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: details})
	}
	return r.update(ctx, recordID, updates)
}

func (r *FirestoreRecorder) update(ctx context.Context, recordID string, updates []firestore.Update) error {
	if _, err := r.client.Collection(r.collection).Doc(recordID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update export record %s: %w", recordID, err)
	}
	return nil
}
