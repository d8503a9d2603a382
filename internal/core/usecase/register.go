package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

// RegisterDocumentUseCase is the document registry: an idempotent upsert
// keyed by content fingerprint.
type RegisterDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewRegisterDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *RegisterDocumentUseCase {
	return &RegisterDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

// Register computes the content fingerprint and creates a pending Document
// unless one already exists for these bytes. Re-registering identical
// bytes returns the existing record untouched.
func (uc *RegisterDocumentUseCase) Register(ctx context.Context, path string, raw []byte) (*domain.Document, error) {
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "register document", fmt.Errorf("empty document: %s", path))
	}

	fingerprint := Fingerprint(raw)

	existing, err := uc.repo.GetByFingerprint(ctx, fingerprint)
	if err == nil {
		return existing, nil
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup fingerprint: %w", err)
	}

	filename := filepath.Base(path)
	storageKey := fmt.Sprintf("%s_%s", fingerprint[:16], sanitizeFilename(filename))
	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		Fingerprint: fingerprint,
		Filename:    filename,
		StoragePath: storageKey,
		Status:      domain.StatusPending,
		Disease:     "malaria",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	if err := uc.queue.PublishDocumentRegistered(ctx, fingerprint); err != nil {
		return nil, fmt.Errorf("publish registration event: %w", err)
	}
	return doc, nil
}

// Fingerprint is the dedup key: hex-encoded SHA-256 of the raw bytes.
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.pdf"
	}
	return base
}
