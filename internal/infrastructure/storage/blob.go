// Package storage holds the content-addressed payload stores. Payloads are
// sealed before they reach a store, so stores only ever see ciphertext.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
)

// ErrBlobNotFound is returned when no blob exists for a reference.
var ErrBlobNotFound = errors.New("blob not found")

// ErrInvalidRef is returned for malformed content references.
var ErrInvalidRef = errors.New("invalid content reference")

// BlobStore stores immutable blobs under their content reference.
type BlobStore interface {
	// Put stores data and returns its content reference. Putting the same
	// bytes twice yields the same reference.
	Put(ctx context.Context, data []byte) (string, error)
	// Get returns the blob or ErrBlobNotFound.
	Get(ctx context.Context, ref string) ([]byte, error)
	// Exists reports whether the reference is stored.
	Exists(ctx context.Context, ref string) (bool, error)
}

var contentIDPattern = regexp.MustCompile(`^Qm[0-9a-f]{44}$`)

// ContentID returns the reference for data: "Qm" followed by the first 44 hex
// characters of its SHA-256 digest.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return "Qm" + hex.EncodeToString(sum[:])[:44]
}

// IsContentID reports whether ref has the shape produced by ContentID.
func IsContentID(ref string) bool {
	return contentIDPattern.MatchString(ref)
}
