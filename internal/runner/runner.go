// Package runner executes batches against the remote API: precondition
// checks, the value-type verification pre-pass, strictly ordered command
// dispatch, LAST resolution and command combination.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/wikibase"
)

// Store is the slice of persistence the runner needs
type Store interface {
	ClaimBatchByID(id int) (*domain.Batch, error)
	BatchStatus(id int) (domain.BatchStatus, error)
	UpdateBatchStatus(id int, status domain.BatchStatus, message string) error
	Commands(batchID int) ([]*domain.BatchCommand, error)
	UpdateCommand(cmd *domain.BatchCommand) error
}

// API is the remote client contract the runner depends on
type API interface {
	CreateItem(ctx context.Context, doc *domain.Document) (string, json.RawMessage, error)
	CreateProperty(ctx context.Context, dataType string) (string, json.RawMessage, error)
	CreateStatement(ctx context.Context, ref domain.EntityRef, st domain.Statement) (json.RawMessage, error)
	GetDocument(ctx context.Context, ref domain.EntityRef) (*domain.Document, error)
	GetStatements(ctx context.Context, ref domain.EntityRef, property string) ([]domain.Statement, error)
	DeleteStatement(ctx context.Context, statementID string) (json.RawMessage, error)
	ReplaceStatement(ctx context.Context, statementID string, st domain.Statement) (json.RawMessage, error)
	PatchDocument(ctx context.Context, ref domain.EntityRef, ops []wikibase.PatchOp) (json.RawMessage, error)
	SetLabel(ctx context.Context, ref domain.EntityRef, language, text string) (json.RawMessage, error)
	DeleteLabel(ctx context.Context, ref domain.EntityRef, language string) (json.RawMessage, error)
	SetDescription(ctx context.Context, ref domain.EntityRef, language, text string) (json.RawMessage, error)
	DeleteDescription(ctx context.Context, ref domain.EntityRef, language string) (json.RawMessage, error)
	AddAlias(ctx context.Context, ref domain.EntityRef, language, text string) (json.RawMessage, error)
	RemoveAlias(ctx context.Context, ref domain.EntityRef, language, text string) (json.RawMessage, error)
	SetSitelink(ctx context.Context, ref domain.EntityRef, site, title string) (json.RawMessage, error)
	DeleteSitelink(ctx context.Context, ref domain.EntityRef, site string) (json.RawMessage, error)
	DataType(ctx context.Context, property string) (string, error)
	IsAutoconfirmed(ctx context.Context) (bool, error)
}

// ClientFactory resolves a batch owner's credential into an API client
type ClientFactory func(username string) (API, error)

// Event is emitted whenever a batch or command changes status
type Event struct {
	Kind    string `json:"kind"` // "batch" or "command"
	BatchID int    `json:"batch_id"`
	Index   int    `json:"index,omitempty"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// Runner executes one batch at a time, strictly in command index order
type Runner struct {
	store     Store
	clientFor ClientFactory
	onEvent   func(Event)
}

// New creates a Runner
func New(store Store, clientFor ClientFactory) *Runner {
	return &Runner{store: store, clientFor: clientFor}
}

// OnEvent registers a hook called for every status change
func (r *Runner) OnEvent(fn func(Event)) {
	r.onEvent = fn
}

func (r *Runner) emit(e Event) {
	if r.onEvent != nil {
		r.onEvent(e)
	}
}

// Run claims the batch and executes it. A batch not in Initial is a no-op.
func (r *Runner) Run(ctx context.Context, batchID int) error {
	batch, err := r.store.ClaimBatchByID(batchID)
	if err != nil {
		return err
	}
	if batch == nil {
		return nil
	}
	return r.RunClaimed(ctx, batch)
}

// RunClaimed executes a batch that has already been atomically claimed
// (status Running).
func (r *Runner) RunClaimed(ctx context.Context, batch *domain.Batch) error {
	if batch.Status != domain.BatchRunning {
		return fmt.Errorf("batch %d is not claimed (status %s)", batch.ID, batch.Status)
	}
	log.Printf("batch %d: running", batch.ID)
	r.emit(Event{Kind: "batch", BatchID: batch.ID, Status: string(domain.BatchRunning)})

	api, err := r.clientFor(batch.Username)
	if err != nil {
		return r.block(batch, fmt.Sprintf("no API credential for user %q: %v", batch.Username, err))
	}
	autoconfirmed, err := api.IsAutoconfirmed(ctx)
	if err != nil {
		return r.block(batch, fmt.Sprintf("could not verify autoconfirmed status: %v", err))
	}
	if !autoconfirmed {
		return r.block(batch, fmt.Sprintf("user %q is not an autoconfirmed user", batch.Username))
	}

	commands, err := r.store.Commands(batch.ID)
	if err != nil {
		return err
	}

	if batch.BlockOnErrors {
		if msg := r.verifyPass(ctx, api, commands); msg != "" {
			return r.block(batch, msg)
		}
	}

	if err := r.runCommands(ctx, api, batch, commands); err != nil {
		return err
	}
	return nil
}

func (r *Runner) block(batch *domain.Batch, message string) error {
	log.Printf("batch %d: blocked: %s", batch.ID, message)
	r.emit(Event{Kind: "batch", BatchID: batch.ID, Status: string(domain.BatchBlocked), Error: message})
	return r.store.UpdateBatchStatus(batch.ID, domain.BatchBlocked, message)
}

// verifyPass checks value-type compatibility of every not-yet-verified add
// statement command before anything executes. Returns the blocking
// diagnostic for the first incompatibility, or "" when all pass. Commands
// verified on an earlier run are skipped via the memoized flag.
func (r *Runner) verifyPass(ctx context.Context, api API, commands []*domain.BatchCommand) string {
	for _, cmd := range commands {
		if cmd.ValueTypeVerified || cmd.Status == domain.CommandDone {
			continue
		}
		stmt, ok := cmd.Op.(*domain.SetStatement)
		if !ok {
			continue
		}
		if err := verifyValueType(ctx, api, stmt); err != nil {
			return fmt.Sprintf("command %d: %v", cmd.Index, err)
		}
		cmd.ValueTypeVerified = true
		if err := r.store.UpdateCommand(cmd); err != nil {
			return fmt.Sprintf("command %d: persisting verification: %v", cmd.Index, err)
		}
	}
	return ""
}

// runCommands is the main loop: strictly in index order, re-reading batch
// status before each command so an owner-initiated stop takes effect at
// the next iteration boundary.
func (r *Runner) runCommands(ctx context.Context, api API, batch *domain.Batch, commands []*domain.BatchCommand) error {
	var lastCreated string
	var chain *combineChain

	// A chain still open on exit holds edits of members already marked
	// Done; they must be written, not dropped.
	defer func() {
		if err := r.flushChain(ctx, api, chain); err != nil {
			log.Printf("batch %d: writing combined edits on exit: %v", batch.ID, err)
		}
	}()

	for i, cmd := range commands {
		status, err := r.store.BatchStatus(batch.ID)
		if err != nil {
			return err
		}
		if status == domain.BatchStopped {
			log.Printf("batch %d: stopped by owner at command %d", batch.ID, cmd.Index)
			r.emit(Event{Kind: "batch", BatchID: batch.ID, Status: string(domain.BatchStopped)})
			return nil
		}

		if cmd.Status == domain.CommandDone {
			continue
		}
		if cmd.Status == domain.CommandFailed {
			// Parse-time error recorded when the batch was authored.
			if batch.BlockOnErrors {
				return r.block(batch, fmt.Sprintf("command %d failed: %s", cmd.Index, cmd.Error.Message))
			}
			continue
		}

		cmd.Status = domain.CommandRunning
		if err := r.store.UpdateCommand(cmd); err != nil {
			return err
		}

		if err := resolveLast(cmd.Op, lastCreated); err != nil {
			r.failCommand(cmd, err)
			if batch.BlockOnErrors {
				return r.block(batch, fmt.Sprintf("command %d failed: %s", cmd.Index, cmd.Error.Message))
			}
			continue
		}

		var next *domain.BatchCommand
		if i+1 < len(commands) {
			next = commands[i+1]
		}
		combinable := batch.CombineCommands && combinesWithNext(cmd, next, lastCreated)

		created, err := r.execute(ctx, api, cmd, &chain, combinable)
		if err != nil {
			r.failCommand(cmd, err)
			if batch.BlockOnErrors {
				return r.block(batch, fmt.Sprintf("command %d failed: %s", cmd.Index, cmd.Error.Message))
			}
			continue
		}
		if created != "" {
			lastCreated = created
		}

		cmd.Status = domain.CommandDone
		cmd.Error = nil
		if err := r.store.UpdateCommand(cmd); err != nil {
			return err
		}
		r.emit(Event{Kind: "command", BatchID: batch.ID, Index: cmd.Index, Status: string(domain.CommandDone)})
	}

	log.Printf("batch %d: done", batch.ID)
	r.emit(Event{Kind: "batch", BatchID: batch.ID, Status: string(domain.BatchDone)})
	return r.store.UpdateBatchStatus(batch.ID, domain.BatchDone, "")
}

// failCommand records a terminal error on the command. Every failure is a
// *domain.CommandError; anything else (transport failures mostly) is
// classified as a server-side API error.
func (r *Runner) failCommand(cmd *domain.BatchCommand, err error) {
	cmdErr, ok := err.(*domain.CommandError)
	if !ok {
		cmdErr = &domain.CommandError{Kind: domain.ErrAPIServerError, Message: err.Error()}
	}
	cmd.Status = domain.CommandFailed
	cmd.Error = cmdErr
	if updateErr := r.store.UpdateCommand(cmd); updateErr != nil {
		log.Printf("command %d: persisting error state: %v", cmd.ID, updateErr)
	}
	r.emit(Event{Kind: "command", BatchID: cmd.BatchID, Index: cmd.Index,
		Status: string(domain.CommandFailed), Error: cmdErr.Message})
}

// resolveLast substitutes the most recent successful create's id for LAST
// placeholders in the command's entity and entity-valued operands. An
// unresolvable LAST is a hard error and is never retried.
func resolveLast(op domain.Op, lastCreated string) error {
	resolve := func(ref *domain.EntityRef) error {
		if !ref.IsLast() {
			return nil
		}
		if lastCreated == "" {
			return &domain.CommandError{
				Kind:    domain.ErrLastNotEvaluated,
				Message: "LAST used before any successful create in this batch",
			}
		}
		*ref = domain.NewEntityRef(lastCreated)
		return nil
	}

	if eop, ok := op.(domain.EntityOp); ok {
		if err := resolve(eop.EntityRef()); err != nil {
			return err
		}
	}
	resolveValue := func(v *domain.Value) error {
		if v.IsLast() {
			return resolve(v.Entity)
		}
		return nil
	}
	switch o := op.(type) {
	case *domain.SetStatement:
		if err := resolveValue(&o.Value); err != nil {
			return err
		}
		for i := range o.Qualifiers {
			if err := resolveValue(&o.Qualifiers[i].Value); err != nil {
				return err
			}
		}
		for i := range o.References {
			for j := range o.References[i].Parts {
				if err := resolveValue(&o.References[i].Parts[j].Value); err != nil {
					return err
				}
			}
		}
	case *domain.RemoveStatementByValue:
		return resolveValue(&o.Value)
	case *domain.RemoveQualifier:
		return resolveValue(&o.Value)
	case *domain.RemoveReference:
		return resolveValue(&o.Value)
	}
	return nil
}

// usesLast reports whether the operation references LAST in its entity or
// any entity-valued operand.
func usesLast(op domain.Op) bool {
	if eop, ok := op.(domain.EntityOp); ok && eop.EntityRef().IsLast() {
		return true
	}
	switch o := op.(type) {
	case *domain.SetStatement:
		if o.Value.IsLast() {
			return true
		}
		for i := range o.Qualifiers {
			if o.Qualifiers[i].Value.IsLast() {
				return true
			}
		}
		for i := range o.References {
			for j := range o.References[i].Parts {
				if o.References[i].Parts[j].Value.IsLast() {
					return true
				}
			}
		}
	case *domain.RemoveStatementByValue:
		return o.Value.IsLast()
	case *domain.RemoveQualifier:
		return o.Value.IsLast()
	case *domain.RemoveReference:
		return o.Value.IsLast()
	}
	return false
}

// combinesWithNext decides whether a command may be coalesced with its
// successor: both must be entity-document-mutating kinds targeting the
// same resolved entity.
func combinesWithNext(cmd, next *domain.BatchCommand, lastCreated string) bool {
	if next == nil || next.Status == domain.CommandDone || next.Status == domain.CommandFailed {
		return false
	}
	// A successor whose LAST cannot resolve will fail before contributing;
	// the current member must write instead of holding the chain open.
	if lastCreated == "" && usesLast(next.Op) {
		return false
	}
	cur, ok := mutatingTarget(cmd.Op, lastCreated)
	if !ok {
		return false
	}
	nxt, ok := mutatingTarget(next.Op, lastCreated)
	if !ok {
		return false
	}
	return cur != "" && cur == nxt
}

// mutatingTarget returns the resolved target id of a document-mutating
// operation (set statement, add alias), or ok=false for any other kind.
func mutatingTarget(op domain.Op, lastCreated string) (string, bool) {
	var ref domain.EntityRef
	switch o := op.(type) {
	case *domain.SetStatement:
		ref = o.Entity
	case *domain.AddAlias:
		ref = o.Entity
	default:
		return "", false
	}
	if ref.IsLast() {
		return lastCreated, true
	}
	return ref.ID, true
}
