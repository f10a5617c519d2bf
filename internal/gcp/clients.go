package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/hashicorp/go-multierror"
)

// Clients holds the optional cloud clients of a workspace. A nil field means
// the matching feature is disabled.
type Clients struct {
	Firestore *firestore.Client
	Storage   *storage.Client
}

// NewClients opens a Firestore client when projectID is set and a Storage
// client when withStorage is true. On error, whatever was opened is closed.
func NewClients(ctx context.Context, projectID string, withStorage bool) (*Clients, error) {
	c := &Clients{}
	if projectID != "" {
		fc, err := firestore.NewClient(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore client: %w", err)
		}
		c.Firestore = fc
	}
	if withStorage {
		sc, err := storage.NewClient(ctx)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to create Storage client: %w", err)
		}
		c.Storage = sc
	}
	return c, nil
}

// Close closes every open client and reports all failures.
func (c *Clients) Close() error {
	var result *multierror.Error
	if c.Firestore != nil {
		if err := c.Firestore.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close Firestore client: %w", err))
		}
	}
	if c.Storage != nil {
		if err := c.Storage.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close Storage client: %w", err))
		}
	}
	return result.ErrorOrNil()
}
