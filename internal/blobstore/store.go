// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package blobstore provides the blob-storage handle the Resource Manager
// pools: documents are addressed by owner-id-prefixed paths (§6) and
// retrieved as raw bytes for the ingestion pipeline's text-extraction step.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var ErrNotFound = errors.New("blobstore: object not found")

// ObjectStore is the narrow interface the engine needs from blob storage.
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader) (etag string, err error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// DocumentKey builds the owner-id-prefixed path §6 requires for blob
// addressing: <owner_id>/<document_id>/<filename>.
func DocumentKey(ownerID, documentID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", ownerID, documentID, filename)
}
