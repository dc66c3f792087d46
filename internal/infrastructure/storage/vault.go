package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Sealer encrypts payloads before they are stored.
type Sealer interface {
	Seal(plaintext, associatedData []byte) ([]byte, error)
	Open(sealed, associatedData []byte) ([]byte, error)
}

// Vault stores JSON documents sealed under a purpose label. The label is bound
// as associated data, so a KYC ref cannot be opened as an emergency contact
// list.
type Vault struct {
	blobs  BlobStore
	sealer Sealer
}

// NewVault creates a Vault
func NewVault(blobs BlobStore, sealer Sealer) *Vault {
	return &Vault{blobs: blobs, sealer: sealer}
}

// PutJSON seals v and returns the content reference of the sealed blob
func (v *Vault) PutJSON(ctx context.Context, purpose string, doc any) (string, error) {
	plaintext, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", purpose, err)
	}
	sealed, err := v.sealer.Seal(plaintext, []byte(purpose))
	if err != nil {
		return "", fmt.Errorf("seal %s payload: %w", purpose, err)
	}
	return v.blobs.Put(ctx, sealed)
}

// GetJSON opens the blob under ref into out
func (v *Vault) GetJSON(ctx context.Context, purpose, ref string, out any) error {
	sealed, err := v.blobs.Get(ctx, ref)
	if err != nil {
		return err
	}
	plaintext, err := v.sealer.Open(sealed, []byte(purpose))
	if err != nil {
		return fmt.Errorf("open %s payload: %w", purpose, err)
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", purpose, err)
	}
	return nil
}
