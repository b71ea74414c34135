package stash

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
)

const envelopeVersion = 1

var (
	// ErrWrongDocument is returned when a sealed document was written under a
	// different key than the one it was read from.
	ErrWrongDocument = errors.New("stash: sealed document belongs to another key")
	// ErrUnsupportedEnvelope is returned for an envelope version this code
	// cannot read.
	ErrUnsupportedEnvelope = errors.New("stash: unsupported envelope version")
)

// envelope is the on-disk form of a sealed document.
type envelope struct {
	Version int     `cbor:"1,keyasint"`
	Box     box.Box `cbor:"2,keyasint"`
}

// sealedDoc is the plaintext inside an envelope. Binding the key name stops
// a sealed document from being replayed under another key.
type sealedDoc struct {
	Key  string `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint"`
}

// EncryptedDisk seals every document with a data key before it reaches the
// underlying Disk. Decrypted documents are cached.
type EncryptedDisk struct {
	disk   Disk
	source KeySource
	cache  *LRUCache

	mu  sync.Mutex
	dek []byte
}

// NewEncryptedDisk wraps disk. The data key is fetched from source on first
// use.
func NewEncryptedDisk(disk Disk, source KeySource) *EncryptedDisk {
	return &EncryptedDisk{
		disk:   disk,
		source: source,
		cache:  NewLRUCache(16),
	}
}

func (d *EncryptedDisk) key(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dek != nil {
		return d.dek, nil
	}
	dek, err := d.source.DataKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get data key: %w", err)
	}
	if len(dek) != box.KeySize {
		return nil, fmt.Errorf("data key must be %d bytes, got %d", box.KeySize, len(dek))
	}
	d.dek = dek
	return dek, nil
}

// SetKey replaces the data key and drops every cached document.
func (d *EncryptedDisk) SetKey(dek []byte) error {
	if len(dek) != box.KeySize {
		return fmt.Errorf("data key must be %d bytes", box.KeySize)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dek = box.Clone(dek)
	d.cache.Clear()
	return nil
}

func (d *EncryptedDisk) Get(ctx context.Context, key string) ([]byte, error) {
	if cached, ok := d.cache.Get(key); ok {
		return cached, nil
	}

	raw, err := d.disk.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	dek, err := d.key(ctx)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := cbor.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedEnvelope, env.Version)
	}
	plaintext, err := box.Decrypt(&env.Box, dek)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	var doc sealedDoc
	if err := cbor.Unmarshal(plaintext, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode sealed document: %w", err)
	}
	if doc.Key != key {
		return nil, fmt.Errorf("%w: %q", ErrWrongDocument, doc.Key)
	}

	d.cache.Put(key, doc.Data)
	return doc.Data, nil
}

func (d *EncryptedDisk) Put(ctx context.Context, key string, data []byte) error {
	dek, err := d.key(ctx)
	if err != nil {
		return err
	}

	plaintext, err := cbor.Marshal(sealedDoc{Key: key, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	sealed, err := box.Encrypt(plaintext, dek)
	if err != nil {
		return fmt.Errorf("encryption failed: %w", err)
	}
	raw, err := cbor.Marshal(envelope{Version: envelopeVersion, Box: *sealed})
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	if err := d.disk.Put(ctx, key, raw); err != nil {
		return err
	}
	d.cache.Put(key, data)
	return nil
}

func (d *EncryptedDisk) Delete(ctx context.Context, key string) error {
	d.cache.Delete(key)
	return d.disk.Delete(ctx, key)
}
