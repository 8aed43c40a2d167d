package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"landsale/documents"
	"landsale/metrics"
	"landsale/models"
	"landsale/storage"
)

// ErrDocumentBusy is returned by Attach when another attempt holds the
// contract's document claim.
var ErrDocumentBusy = errors.New("document attempt already in progress")

// Uploader stores a rendered document and returns its reference.
type Uploader interface {
	Put(ctx context.Context, name string, data io.Reader, contentType string) (string, error)
}

// DocumentStore is an Uploader that can also read its documents back.
type DocumentStore interface {
	Uploader
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// DocumentService renders contract documents and records the outcome on the
// contract row. It runs outside any lifecycle transaction.
type DocumentService struct {
	store    storage.Store
	renderer documents.Renderer
	docs     DocumentStore
	log      *zap.Logger
	now      func() time.Time
}

func NewDocumentService(store storage.Store, renderer documents.Renderer, docs DocumentStore, log *zap.Logger) *DocumentService {
	return &DocumentService{store: store, renderer: renderer, docs: docs, log: log, now: time.Now}
}

// Attach renders and uploads the document of one contract. The attempt is
// claimed on the contract row first, so two callers never upload the same
// document at once. A failure is stored on the contract and also returned.
func (s *DocumentService) Attach(ctx context.Context, contractID uuid.UUID) (string, error) {
	q := storage.New(s.store)

	contract, err := q.GetContract(ctx, contractID)
	if err != nil {
		return "", fmt.Errorf("get contract: %w", err)
	}
	if contract == nil {
		return "", &models.NotFoundError{Entity: "contract", ID: contractID.String()}
	}
	if contract.DocumentRef != nil {
		return *contract.DocumentRef, nil
	}
	if !contract.NeedsDocument() {
		return "", fmt.Errorf("document gave up after %d attempts", contract.DocumentAttempts)
	}

	now := s.now().UTC()
	claimed, err := q.ClaimContractDocument(ctx, contractID, now, now.Add(-models.DocumentClaimTTL))
	if err != nil {
		return "", fmt.Errorf("claim document: %w", err)
	}
	if !claimed {
		return "", ErrDocumentBusy
	}

	ref, err := s.produce(ctx, q, contractID)
	if err != nil {
		metrics.Documents.WithLabelValues("failed").Inc()
		if recErr := q.RecordContractDocumentError(ctx, contractID, err.Error()); recErr != nil {
			s.log.Error("record document error", zap.Stringer("contract", contractID), zap.Error(recErr))
		}
		return "", err
	}

	if err := q.SetContractDocument(ctx, contractID, ref); err != nil {
		metrics.Documents.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("store document ref: %w", err)
	}
	metrics.Documents.WithLabelValues("ok").Inc()
	return ref, nil
}

func (s *DocumentService) produce(ctx context.Context, q *storage.Queries, contractID uuid.UUID) (string, error) {
	ledger := NewLedger(q)
	bundle, err := NewContracts(q, ledger, NewReservations(q, ledger)).Bundle(ctx, contractID)
	if err != nil {
		return "", fmt.Errorf("resolve contract: %w", err)
	}

	data, err := s.renderer.Render(ctx, bundle)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}

	name := path.Join(bundle.Land.ID.String(), contractID.String()+s.renderer.Extension())
	ref, err := s.docs.Put(ctx, name, bytes.NewReader(data), s.renderer.ContentType())
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return ref, nil
}

// Pending returns contracts that still need a document and are not held by
// a running attempt.
func (s *DocumentService) Pending(ctx context.Context, limit int) ([]models.Contract, error) {
	staleBefore := s.now().UTC().Add(-models.DocumentClaimTTL)
	return storage.New(s.store).ListContractsNeedingDocument(ctx, staleBefore, limit)
}

// Open streams the stored document of a contract.
func (s *DocumentService) Open(ctx context.Context, contractID uuid.UUID) (io.ReadCloser, error) {
	contract, err := storage.New(s.store).GetContract(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("get contract: %w", err)
	}
	if contract == nil {
		return nil, &models.NotFoundError{Entity: "contract", ID: contractID.String()}
	}
	if contract.DocumentRef == nil {
		return nil, &models.ValidationError{Field: "document", Message: "contract has no document yet"}
	}
	return s.docs.Open(ctx, *contract.DocumentRef)
}
