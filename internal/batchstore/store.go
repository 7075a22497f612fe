package batchstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed batch and command persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateBatch persists a batch and all of its commands in one transaction
func (s *Store) CreateBatch(batch *domain.Batch, commands []*domain.BatchCommand) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	batch.CreatedAt = now
	batch.UpdatedAt = now

	res, err := tx.Exec(`
		INSERT INTO batches (name, username, status, message, block_on_errors, combine_commands, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		batch.Name,
		batch.Username,
		string(batch.Status),
		batch.Message,
		batch.BlockOnErrors,
		batch.CombineCommands,
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		return err
	}
	batchID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	batch.ID = int(batchID)

	stmt, err := tx.Prepare(`
		INSERT INTO commands (batch_id, idx, raw, operation, action, payload, status, error_kind, error_message, value_type_verified, response, user_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, cmd := range commands {
		cmd.BatchID = batch.ID
		var payload []byte
		if cmd.Op != nil {
			payload, err = domain.MarshalPayload(cmd.Op)
			if err != nil {
				return fmt.Errorf("command %d: %w", cmd.Index, err)
			}
		}
		errKind, errMessage := "", ""
		if cmd.Error != nil {
			errKind = string(cmd.Error.Kind)
			errMessage = cmd.Error.Message
		}
		res, err := stmt.Exec(
			cmd.BatchID,
			cmd.Index,
			cmd.Raw,
			string(cmd.Operation),
			string(cmd.Action),
			string(payload),
			string(cmd.Status),
			errKind,
			errMessage,
			cmd.ValueTypeVerified,
			string(cmd.Response),
			cmd.UserSummary,
		)
		if err != nil {
			return fmt.Errorf("command %d: %w", cmd.Index, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		cmd.ID = int(id)
	}

	return tx.Commit()
}

// GetBatch retrieves a batch by id
func (s *Store) GetBatch(id int) (*domain.Batch, error) {
	row := s.db.QueryRow(`
		SELECT id, name, username, status, message, block_on_errors, combine_commands, created_at, updated_at
		FROM batches WHERE id = ?
	`, id)
	return scanBatch(row)
}

// BatchStatus reads only the persisted status of a batch. The runner calls
// this before each command to observe owner-initiated stops.
func (s *Store) BatchStatus(id int) (domain.BatchStatus, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM batches WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return "", err
	}
	return domain.BatchStatus(status), nil
}

// ListOptions specifies filters for listing batches
type ListOptions struct {
	Username string
	Status   domain.BatchStatus
}

// ListBatches returns batches matching the given options
func (s *Store) ListBatches(opts ListOptions) ([]*domain.Batch, error) {
	query := `SELECT id, name, username, status, message, block_on_errors, combine_commands, created_at, updated_at FROM batches WHERE 1=1`
	var args []interface{}

	if opts.Username != "" {
		query += " AND username = ?"
		args = append(args, opts.Username)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*domain.Batch
	for rows.Next() {
		batch, err := scanBatchRows(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// UpdateBatchStatus updates a batch's status and message
func (s *Store) UpdateBatchStatus(id int, status domain.BatchStatus, message string) error {
	_, err := s.db.Exec(`UPDATE batches SET status = ?, message = ?, updated_at = ? WHERE id = ?`,
		string(status), message, time.Now(), id)
	return err
}

// ClaimBatch atomically claims the oldest Initial batch, marking it
// Running. Returns nil when no batch is claimable. The conditional update
// guarantees two workers never claim the same batch.
func (s *Store) ClaimBatch() (*domain.Batch, error) {
	for {
		var id int
		err := s.db.QueryRow(`SELECT id FROM batches WHERE status = ? ORDER BY id LIMIT 1`,
			string(domain.BatchInitial)).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		res, err := s.db.Exec(`UPDATE batches SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(domain.BatchRunning), time.Now(), id, string(domain.BatchInitial))
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 1 {
			return s.GetBatch(id)
		}
		// Another worker won the claim; try the next candidate.
	}
}

// ClaimBatchByID atomically claims one specific batch if it is Initial.
// Returns nil when the batch is in any other state.
func (s *Store) ClaimBatchByID(id int) (*domain.Batch, error) {
	res, err := s.db.Exec(`UPDATE batches SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(domain.BatchRunning), time.Now(), id, string(domain.BatchInitial))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetBatch(id)
}

// StopBatch moves a Running batch to Stopped. Only the owner calls this.
func (s *Store) StopBatch(id int) error {
	res, err := s.db.Exec(`UPDATE batches SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(domain.BatchStopped), time.Now(), id, string(domain.BatchRunning))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("batch %d is not running", id)
	}
	return nil
}

// RestartBatch moves a Stopped batch back to Initial so a worker can
// re-claim it. Stopped is the only state a restart is valid from.
func (s *Store) RestartBatch(id int) error {
	res, err := s.db.Exec(`UPDATE batches SET status = ?, message = '', updated_at = ? WHERE id = ? AND status = ?`,
		string(domain.BatchInitial), time.Now(), id, string(domain.BatchStopped))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("batch %d is not stopped", id)
	}
	return nil
}

// SweepStaleRunning resets Running batches whose last update is older than
// the threshold back to Initial, recording the reason. Done, Blocked and
// Stopped batches are never touched.
func (s *Store) SweepStaleRunning(olderThan time.Duration, reason string) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.Exec(`UPDATE batches SET status = ?, message = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		string(domain.BatchInitial), reason, time.Now(), string(domain.BatchRunning), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Commands returns a batch's commands in stable index order
func (s *Store) Commands(batchID int) ([]*domain.BatchCommand, error) {
	rows, err := s.db.Query(`
		SELECT id, batch_id, idx, raw, operation, action, payload, status, error_kind, error_message, value_type_verified, response, user_summary
		FROM commands WHERE batch_id = ? ORDER BY idx
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []*domain.BatchCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}
	return commands, rows.Err()
}

// UpdateCommand persists a command's mutable execution fields and touches
// the owning batch so the staleness sweep sees progress.
func (s *Store) UpdateCommand(cmd *domain.BatchCommand) error {
	errKind, errMessage := "", ""
	if cmd.Error != nil {
		errKind = string(cmd.Error.Kind)
		errMessage = cmd.Error.Message
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE commands SET status = ?, error_kind = ?, error_message = ?, value_type_verified = ?, response = ?
		WHERE id = ?
	`,
		string(cmd.Status), errKind, errMessage, cmd.ValueTypeVerified, string(cmd.Response), cmd.ID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`UPDATE batches SET updated_at = ? WHERE id = ?`, time.Now(), cmd.BatchID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func scanBatch(row *sql.Row) (*domain.Batch, error) {
	var batch domain.Batch
	var status string
	var message sql.NullString

	err := row.Scan(&batch.ID, &batch.Name, &batch.Username, &status, &message,
		&batch.BlockOnErrors, &batch.CombineCommands, &batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		return nil, err
	}

	batch.Status = domain.BatchStatus(status)
	if message.Valid {
		batch.Message = message.String
	}
	return &batch, nil
}

func scanBatchRows(rows *sql.Rows) (*domain.Batch, error) {
	var batch domain.Batch
	var status string
	var message sql.NullString

	err := rows.Scan(&batch.ID, &batch.Name, &batch.Username, &status, &message,
		&batch.BlockOnErrors, &batch.CombineCommands, &batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		return nil, err
	}

	batch.Status = domain.BatchStatus(status)
	if message.Valid {
		batch.Message = message.String
	}
	return &batch, nil
}

func scanCommand(rows *sql.Rows) (*domain.BatchCommand, error) {
	var cmd domain.BatchCommand
	var operation, action, status string
	var raw, payload, errKind, errMessage, response, summary sql.NullString

	err := rows.Scan(&cmd.ID, &cmd.BatchID, &cmd.Index, &raw, &operation, &action,
		&payload, &status, &errKind, &errMessage, &cmd.ValueTypeVerified, &response, &summary)
	if err != nil {
		return nil, err
	}

	cmd.Raw = raw.String
	cmd.Operation = domain.Operation(operation)
	cmd.Action = domain.Action(action)
	cmd.Status = domain.CommandStatus(status)
	cmd.UserSummary = summary.String
	if response.Valid && response.String != "" {
		cmd.Response = []byte(response.String)
	}
	if errKind.Valid && errKind.String != "" {
		cmd.Error = &domain.CommandError{
			Kind:    domain.ErrorKind(errKind.String),
			Message: errMessage.String,
		}
	}
	if payload.Valid && payload.String != "" {
		op, err := domain.UnmarshalPayload([]byte(payload.String))
		if err != nil {
			return nil, fmt.Errorf("command %d payload: %w", cmd.ID, err)
		}
		cmd.Op = op
	}
	return &cmd, nil
}
