// Package exporter writes batch results out as CSV
package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
)

// Store is the slice of persistence the exporter needs
type Store interface {
	GetBatch(id int) (*domain.Batch, error)
	Commands(batchID int) ([]*domain.BatchCommand, error)
}

// Header is the column layout of an exported batch
var Header = []string{
	"index", "raw", "operation", "action", "status",
	"error_kind", "error_message", "response", "summary",
}

// WriteBatch writes all commands of a batch to w as CSV, in command order
func WriteBatch(store Store, batchID int, w io.Writer) error {
	if _, err := store.GetBatch(batchID); err != nil {
		return fmt.Errorf("loading batch %d: %w", batchID, err)
	}
	commands, err := store.Commands(batchID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, cmd := range commands {
		if err := cw.Write(record(cmd)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func record(cmd *domain.BatchCommand) []string {
	var kind, message string
	if cmd.Error != nil {
		kind = string(cmd.Error.Kind)
		message = cmd.Error.Message
	}
	return []string{
		strconv.Itoa(cmd.Index),
		cmd.Raw,
		string(cmd.Operation),
		string(cmd.Action),
		string(cmd.Status),
		kind,
		message,
		string(cmd.Response),
		cmd.UserSummary,
	}
}
