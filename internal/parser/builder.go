package parser

import (
	"fmt"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
)

// Store is the slice of persistence the builder needs to commit a batch
type Store interface {
	CreateBatch(batch *domain.Batch, commands []*domain.BatchCommand) error
}

// BatchBuilder holds a parsed batch and its commands in memory until an
// explicit commit persists both atomically.
type BatchBuilder struct {
	Batch    *domain.Batch
	Commands []*domain.BatchCommand
}

// NewV1 parses line notation into a preview batch
func NewV1(name, username, text string) *BatchBuilder {
	return &BatchBuilder{
		Batch: &domain.Batch{
			Name:     name,
			Username: username,
			Status:   domain.BatchPreview,
		},
		Commands: ParseV1(text),
	}
}

// NewGrid parses grid notation into a preview batch. A header error fails
// the whole batch before any row is processed.
func NewGrid(name, username, text string) (*BatchBuilder, error) {
	commands, err := ParseGrid(text)
	if err != nil {
		return nil, err
	}
	return &BatchBuilder{
		Batch: &domain.Batch{
			Name:     name,
			Username: username,
			Status:   domain.BatchPreview,
		},
		Commands: commands,
	}, nil
}

// Empty reports whether the builder holds no commands
func (b *BatchBuilder) Empty() bool {
	return len(b.Commands) == 0
}

// Commit persists the batch and its commands together, moving the batch
// from Preview to Initial. A builder commits at most once.
func (b *BatchBuilder) Commit(store Store) error {
	if b.Batch.Status != domain.BatchPreview {
		return fmt.Errorf("batch already committed (status %s)", b.Batch.Status)
	}
	if b.Empty() {
		return fmt.Errorf("batch has no commands")
	}
	b.Batch.Status = domain.BatchInitial
	if err := store.CreateBatch(b.Batch, b.Commands); err != nil {
		b.Batch.Status = domain.BatchPreview
		return err
	}
	return nil
}
