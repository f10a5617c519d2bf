package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/pdfassembler/internal/gcp"
	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/afero"
)

// ExportSink publishes a finished export and returns where it can be found.
type ExportSink interface {
	Publish(ctx context.Context, localPath, fileName string) (string, error)
}

// LocalSink leaves exports where the backend wrote them.
type LocalSink struct{}

func (LocalSink) Publish(_ context.Context, localPath, _ string) (string, error) {
	return localPath, nil
}

type objectWriter func(ctx context.Context, objectName string, content []byte) error

// GCSSink uploads exports to a bucket under a content hash segment, so an
// existing object always holds the same bytes. Uploads never overwrite and are
// retried with exponential backoff.
type GCSSink struct {
	fs         afero.Fs
	bucketName string
	prefix     string
	write      objectWriter
	newBackOff func() backoff.BackOff
}

// NewGCSSink returns a sink writing to gs://bucketName/prefix/.
func NewGCSSink(client *storage.Client, fs afero.Fs, bucketName, prefix string) *GCSSink {
	bucket := client.Bucket(bucketName)
	return &GCSSink{
		fs:         fs,
		bucketName: bucketName,
		prefix:     prefix,
		write: func(ctx context.Context, objectName string, content []byte) error {
			writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
			defer cancel()
			return gcp.SaveToGCSAtomically(writeCtx, bucket, objectName, content, pdfMIMEType)
		},
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return backoff.WithMaxRetries(b, 4)
}

func (s *GCSSink) Publish(ctx context.Context, localPath, fileName string) (string, error) {
	content, err := afero.ReadFile(s.fs, localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read export %s: %w", localPath, err)
	}
	contentHash := hashContent(content)
	objectName := path.Join(s.prefix, contentHash, fileName)
	logCtx := slog.With("gcsBucket", s.bucketName, "gcsObject", objectName, "contentHash", contentHash)

	attempt := 0
	operation := func() error {
		attempt++
		err := s.write(ctx, objectName, content)
		if errors.Is(err, gcp.ErrObjectExists) {
			logCtx.Info("Identical export already published. Skipping.")
			return nil
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logCtx.Warn("Upload failed, will retry.", "attempt", attempt, "backoff", wait.String(), "error", err)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(s.newBackOff(), ctx), notify); err != nil {
		logCtx.Error("Upload failed after all retries.", "error", err)
		return "", fmt.Errorf("upload for %s failed after all retries: %w", objectName, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", s.bucketName, objectName)
	logCtx.Info("Export published.", "uri", uri)
	return uri, nil
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
