package exporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
)

type fakeStore struct {
	batch    *domain.Batch
	commands []*domain.BatchCommand
}

func (f *fakeStore) GetBatch(id int) (*domain.Batch, error) {
	if f.batch == nil || f.batch.ID != id {
		return nil, errors.New("batch not found")
	}
	return f.batch, nil
}

func (f *fakeStore) Commands(batchID int) ([]*domain.BatchCommand, error) {
	return f.commands, nil
}

func TestWriteBatch(t *testing.T) {
	store := &fakeStore{
		batch: &domain.Batch{ID: 3, Name: "test", Status: domain.BatchDone},
		commands: []*domain.BatchCommand{
			{
				Index:     0,
				Raw:       "CREATE",
				Operation: domain.OpCreateItem,
				Action:    domain.ActionCreate,
				Status:    domain.CommandDone,
				Response:  json.RawMessage(`{"id":"Q100"}`),
			},
			{
				Index:       1,
				Raw:         `LAST|Len|"Regina Phalange"`,
				Operation:   domain.OpSetLabel,
				Action:      domain.ActionAdd,
				Status:      domain.CommandFailed,
				Error:       &domain.CommandError{Kind: domain.ErrAPIUserError, Message: "label too long"},
				UserSummary: "importing people",
			},
		},
	}

	var buf bytes.Buffer
	if err := WriteBatch(store, 3, &buf); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if len(rows[0]) != len(Header) || rows[0][0] != "index" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][2] != string(domain.OpCreateItem) || rows[1][7] != `{"id":"Q100"}` {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[2][5] != string(domain.ErrAPIUserError) || rows[2][6] != "label too long" {
		t.Errorf("row 2 error columns = %v", rows[2])
	}
	if rows[2][8] != "importing people" {
		t.Errorf("row 2 summary = %q", rows[2][8])
	}
}

func TestWriteBatchUnknownBatch(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteBatch(&fakeStore{}, 99, &buf); err == nil {
		t.Error("expected error for unknown batch")
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes for unknown batch", buf.Len())
	}
}
