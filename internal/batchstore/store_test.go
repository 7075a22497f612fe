package batchstore

import (
	"testing"
	"time"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testBatch(t *testing.T, store *Store, status domain.BatchStatus) *domain.Batch {
	t.Helper()
	batch := &domain.Batch{Name: "test", Username: "alice", Status: status}
	commands := []*domain.BatchCommand{
		domain.NewCommand(0, "Q42\tP31\tQ5", &domain.SetStatement{
			Entity:   domain.NewEntityRef("Q42"),
			Property: "P31",
			Value:    domain.EntityValue("Q5"),
		}),
		domain.NewCommand(1, "Q42\tLen\t\"Douglas Adams\"", &domain.SetLabel{
			Entity:   domain.NewEntityRef("Q42"),
			Language: "en",
			Text:     "Douglas Adams",
		}),
	}
	if err := store.CreateBatch(batch, commands); err != nil {
		t.Fatal(err)
	}
	return batch
}

func TestCreateAndGetBatch(t *testing.T) {
	store := testStore(t)
	batch := testBatch(t, store, domain.BatchInitial)

	if batch.ID == 0 {
		t.Fatal("batch id not assigned")
	}

	got, err := store.GetBatch(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "test" || got.Username != "alice" || got.Status != domain.BatchInitial {
		t.Errorf("got %+v", got)
	}
}

func TestCommands_RoundTrip(t *testing.T) {
	store := testStore(t)
	batch := testBatch(t, store, domain.BatchInitial)

	commands, err := store.Commands(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(commands) != 2 {
		t.Fatalf("got %d commands", len(commands))
	}

	stmt, ok := commands[0].Op.(*domain.SetStatement)
	if !ok {
		t.Fatalf("command 0 op = %T", commands[0].Op)
	}
	if stmt.Entity.ID != "Q42" || stmt.Property != "P31" || !stmt.Value.Equal(domain.EntityValue("Q5")) {
		t.Errorf("statement = %+v", stmt)
	}

	label, ok := commands[1].Op.(*domain.SetLabel)
	if !ok {
		t.Fatalf("command 1 op = %T", commands[1].Op)
	}
	if label.Language != "en" || label.Text != "Douglas Adams" {
		t.Errorf("label = %+v", label)
	}
	if commands[1].Operation != domain.OpSetLabel {
		t.Errorf("operation = %s", commands[1].Operation)
	}
}

func TestListBatches_Filters(t *testing.T) {
	store := testStore(t)
	testBatch(t, store, domain.BatchInitial)
	b2 := testBatch(t, store, domain.BatchInitial)
	if err := store.UpdateBatchStatus(b2.ID, domain.BatchDone, ""); err != nil {
		t.Fatal(err)
	}

	all, err := store.ListBatches(ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("got %d batches", len(all))
	}

	done, err := store.ListBatches(ListOptions{Status: domain.BatchDone})
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 1 || done[0].ID != b2.ID {
		t.Errorf("done filter returned %d batches", len(done))
	}

	none, err := store.ListBatches(ListOptions{Username: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("username filter returned %d batches", len(none))
	}
}

func TestClaimBatch(t *testing.T) {
	store := testStore(t)
	b1 := testBatch(t, store, domain.BatchInitial)
	b2 := testBatch(t, store, domain.BatchInitial)

	claimed, err := store.ClaimBatch()
	if err != nil {
		t.Fatal(err)
	}
	if claimed == nil || claimed.ID != b1.ID {
		t.Fatalf("claimed = %+v, want batch %d", claimed, b1.ID)
	}
	if claimed.Status != domain.BatchRunning {
		t.Errorf("status = %s", claimed.Status)
	}

	second, err := store.ClaimBatch()
	if err != nil {
		t.Fatal(err)
	}
	if second == nil || second.ID != b2.ID {
		t.Fatalf("second claim = %+v", second)
	}

	third, err := store.ClaimBatch()
	if err != nil {
		t.Fatal(err)
	}
	if third != nil {
		t.Errorf("third claim = %+v, want nil", third)
	}
}

func TestClaimBatchByID(t *testing.T) {
	store := testStore(t)
	batch := testBatch(t, store, domain.BatchInitial)

	claimed, err := store.ClaimBatchByID(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if claimed == nil || claimed.Status != domain.BatchRunning {
		t.Fatalf("claimed = %+v", claimed)
	}

	// A second claim sees the batch already Running
	again, err := store.ClaimBatchByID(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again != nil {
		t.Errorf("re-claim = %+v, want nil", again)
	}
}

func TestStopAndRestartBatch(t *testing.T) {
	store := testStore(t)
	batch := testBatch(t, store, domain.BatchInitial)

	if err := store.StopBatch(batch.ID); err == nil {
		t.Error("stopping an initial batch should fail")
	}

	if _, err := store.ClaimBatchByID(batch.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.StopBatch(batch.ID); err != nil {
		t.Fatal(err)
	}

	status, err := store.BatchStatus(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if status != domain.BatchStopped {
		t.Errorf("status = %s", status)
	}

	if err := store.RestartBatch(batch.ID); err != nil {
		t.Fatal(err)
	}
	status, _ = store.BatchStatus(batch.ID)
	if status != domain.BatchInitial {
		t.Errorf("status after restart = %s", status)
	}

	if err := store.RestartBatch(batch.ID); err == nil {
		t.Error("restarting an initial batch should fail")
	}
}

func TestUpdateCommand(t *testing.T) {
	store := testStore(t)
	batch := testBatch(t, store, domain.BatchInitial)

	commands, err := store.Commands(batch.ID)
	if err != nil {
		t.Fatal(err)
	}

	cmd := commands[0]
	cmd.Status = domain.CommandFailed
	cmd.Error = &domain.CommandError{Kind: domain.ErrAPIUserError, Message: "bad value"}
	cmd.ValueTypeVerified = true
	cmd.Response = []byte(`{"id":"Q42$abc"}`)
	if err := store.UpdateCommand(cmd); err != nil {
		t.Fatal(err)
	}

	reloaded, err := store.Commands(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	got := reloaded[0]
	if got.Status != domain.CommandFailed {
		t.Errorf("status = %s", got.Status)
	}
	if got.Error == nil || got.Error.Kind != domain.ErrAPIUserError || got.Error.Message != "bad value" {
		t.Errorf("error = %+v", got.Error)
	}
	if !got.ValueTypeVerified {
		t.Error("value_type_verified not persisted")
	}
	if string(got.Response) != `{"id":"Q42$abc"}` {
		t.Errorf("response = %s", got.Response)
	}
}

func TestSweepStaleRunning(t *testing.T) {
	store := testStore(t)
	batch := testBatch(t, store, domain.BatchInitial)
	fresh := testBatch(t, store, domain.BatchInitial)

	if _, err := store.ClaimBatchByID(batch.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ClaimBatchByID(fresh.ID); err != nil {
		t.Fatal(err)
	}

	// Backdate the first batch so only it looks abandoned
	_, err := store.db.Exec(`UPDATE batches SET updated_at = ? WHERE id = ?`,
		time.Now().Add(-2*time.Hour), batch.ID)
	if err != nil {
		t.Fatal(err)
	}

	n, err := store.SweepStaleRunning(time.Hour, "worker died")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("swept %d batches, want 1", n)
	}

	got, err := store.GetBatch(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.BatchInitial || got.Message != "worker died" {
		t.Errorf("swept batch = %s %q", got.Status, got.Message)
	}

	untouched, _ := store.GetBatch(fresh.ID)
	if untouched.Status != domain.BatchRunning {
		t.Errorf("fresh batch = %s, want running", untouched.Status)
	}
}
