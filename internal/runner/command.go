package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
)

// combineChain carries the state of a run of coalesced commands targeting
// one entity: the entity's original remote document (fetched once) and the
// accumulated in-memory document each member updates. Only the last member
// writes, sending the difference between original and accumulated.
type combineChain struct {
	entity   string
	original *domain.Document
	acc      *domain.Document
	failed   *domain.CommandError
}

// execute runs one command. Every failure it returns is (or is classified
// by the caller into) a *domain.CommandError; nothing else escapes.
func (r *Runner) execute(ctx context.Context, api API, cmd *domain.BatchCommand, chainp **combineChain, combinable bool) (string, error) {
	// Value-type verification is memoized: a command checked on a previous
	// run (or by the blocking pre-pass) is not re-checked.
	if stmt, ok := cmd.Op.(*domain.SetStatement); ok && !cmd.ValueTypeVerified {
		if err := verifyValueType(ctx, api, stmt); err != nil {
			r.poisonChain(chainp, combinable, err)
			return "", err
		}
		cmd.ValueTypeVerified = true
	}

	entityID, mutating := mutatingTarget(cmd.Op, "")
	chainMember := mutating && (combinable || (*chainp != nil && (*chainp).entity == entityID))
	if chainMember {
		return "", r.runCombined(ctx, api, cmd, chainp, combinable, entityID)
	}

	raw, created, err := dispatch(ctx, api, cmd.Op)
	if err != nil {
		return "", err
	}
	cmd.Response = raw
	return created, nil
}

// flushChain writes the accumulated document of a chain left open by an
// early loop exit. Poisoned chains have nothing valid to write.
func (r *Runner) flushChain(ctx context.Context, api API, c *combineChain) error {
	if c == nil || c.failed != nil || c.original == nil {
		return nil
	}
	ops := diffDocuments(c.original, c.acc)
	if len(ops) == 0 {
		return nil
	}
	_, err := api.PatchDocument(ctx, domain.NewEntityRef(c.entity), ops)
	return err
}

// poisonChain marks an open chain as failed so later members report
// combining_command_failed instead of proceeding on a stale document.
func (r *Runner) poisonChain(chainp **combineChain, combinable bool, err error) {
	c := *chainp
	if c == nil {
		return
	}
	if c.failed == nil {
		c.failed = toCommandError(err)
	}
	if !combinable {
		*chainp = nil
	}
}

// runCombined executes one member of a combined chain. Members other than
// the last update the accumulated document and make no network call; the
// last member sends the structural difference between the original and the
// accumulated document in a single write.
func (r *Runner) runCombined(ctx context.Context, api API, cmd *domain.BatchCommand, chainp **combineChain, combinable bool, entityID string) error {
	c := *chainp
	if c == nil || c.entity != entityID {
		c = &combineChain{entity: entityID}
		*chainp = c
		ref := domain.NewEntityRef(entityID)
		original, err := api.GetDocument(ctx, ref)
		if err != nil {
			cmdErr := toCommandError(err)
			c.failed = cmdErr
			if !combinable {
				*chainp = nil
			}
			return cmdErr
		}
		c.original = original
		c.acc = original.Clone()
	}

	if c.failed != nil {
		if !combinable {
			*chainp = nil
		}
		return &domain.CommandError{
			Kind:    domain.ErrCombiningCommandFailed,
			Message: "an earlier command in the combined chain failed: " + c.failed.Message,
		}
	}

	applyToDocument(c.acc, cmd.Op)

	if combinable {
		// Contribution recorded; the write happens at the end of the chain.
		cmd.Response = nil
		return nil
	}

	*chainp = nil
	ops := diffDocuments(c.original, c.acc)
	raw, err := api.PatchDocument(ctx, domain.NewEntityRef(entityID), ops)
	if err != nil {
		return toCommandError(err)
	}
	cmd.Response = raw
	return nil
}

// applyToDocument folds a document-mutating operation into the
// accumulated document.
func applyToDocument(doc *domain.Document, op domain.Op) {
	switch o := op.(type) {
	case *domain.SetStatement:
		doc.UpsertStatement(domain.Statement{
			Property:   o.Property,
			Value:      o.Value,
			Qualifiers: o.Qualifiers,
			References: o.References,
			Rank:       o.Rank,
		})
	case *domain.AddAlias:
		doc.AddAlias(o.Language, o.Text)
	}
}

func toCommandError(err error) *domain.CommandError {
	if cmdErr, ok := err.(*domain.CommandError); ok {
		return cmdErr
	}
	return &domain.CommandError{Kind: domain.ErrAPIServerError, Message: err.Error()}
}

// verifyValueType checks a statement's value against the target property's
// data type. somevalue and novalue are compatible with every data type;
// unknown data types are not checked.
func verifyValueType(ctx context.Context, api API, stmt *domain.SetStatement) error {
	if stmt.Value.Type == domain.ValueSomeValue || stmt.Value.Type == domain.ValueNoValue {
		return nil
	}
	dataType, err := api.DataType(ctx, stmt.Property)
	if err != nil {
		return toCommandError(err)
	}
	expected, ok := domain.ExpectedValueType(dataType)
	if !ok {
		return nil
	}
	if expected != stmt.Value.Type {
		return &domain.CommandError{
			Kind: domain.ErrAPIUserError,
			Message: fmt.Sprintf("value type mismatch for %s: property data type %q expects %s, got %s",
				stmt.Property, dataType, expected, stmt.Value.Type),
		}
	}
	return nil
}

var sitelinkRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var sitelinkSuffixes = []string{
	"wiki", "wikisource", "wikibooks", "wikinews", "wikiquote",
	"wikiversity", "wikivoyage", "wiktionary",
}

func validSitelinkSite(site string) bool {
	if !sitelinkRegex.MatchString(site) {
		return false
	}
	for _, suffix := range sitelinkSuffixes {
		if strings.HasSuffix(site, suffix) {
			return true
		}
	}
	return false
}

// dispatch builds and sends the operation-specific request. One case per
// operation kind; kinds with no remote mapping report op_not_implemented.
func dispatch(ctx context.Context, api API, op domain.Op) (json.RawMessage, string, error) {
	switch o := op.(type) {
	case domain.CreateItem:
		id, raw, err := api.CreateItem(ctx, &domain.Document{})
		return raw, id, err

	case domain.CreateProperty:
		id, raw, err := api.CreateProperty(ctx, o.DataType)
		return raw, id, err

	case domain.Merge:
		return nil, "", &domain.CommandError{
			Kind:    domain.ErrOpNotImplemented,
			Message: fmt.Sprintf("merging %s into %s is not supported by the remote API", o.Item2, o.Item1),
		}

	case *domain.SetStatement:
		raw, err := api.CreateStatement(ctx, o.Entity, domain.Statement{
			Property:   o.Property,
			Value:      o.Value,
			Qualifiers: o.Qualifiers,
			References: o.References,
			Rank:       o.Rank,
		})
		return raw, "", err

	case *domain.RemoveStatementByID:
		raw, err := api.DeleteStatement(ctx, o.StatementID)
		return raw, "", err

	case *domain.RemoveStatementByValue:
		st, err := findStatement(ctx, api, o.Entity, o.Property, o.Value)
		if err != nil {
			return nil, "", err
		}
		raw, err := api.DeleteStatement(ctx, st.ID)
		return raw, "", err

	case *domain.RemoveQualifier:
		raw, err := removeQualifiers(ctx, api, o)
		return raw, "", err

	case *domain.RemoveReference:
		raw, err := removeReferenceParts(ctx, api, o)
		return raw, "", err

	case *domain.SetLabel:
		raw, err := api.SetLabel(ctx, o.Entity, o.Language, o.Text)
		return raw, "", err

	case *domain.RemoveLabel:
		raw, err := api.DeleteLabel(ctx, o.Entity, o.Language)
		return raw, "", err

	case *domain.SetDescription:
		raw, err := api.SetDescription(ctx, o.Entity, o.Language, o.Text)
		return raw, "", err

	case *domain.RemoveDescription:
		raw, err := api.DeleteDescription(ctx, o.Entity, o.Language)
		return raw, "", err

	case *domain.AddAlias:
		raw, err := api.AddAlias(ctx, o.Entity, o.Language, o.Text)
		return raw, "", err

	case *domain.RemoveAlias:
		raw, err := api.RemoveAlias(ctx, o.Entity, o.Language, o.Text)
		return raw, "", err

	case *domain.SetSitelink:
		if !validSitelinkSite(o.Site) {
			return nil, "", &domain.CommandError{
				Kind:    domain.ErrSitelinkInvalid,
				Message: fmt.Sprintf("invalid sitelink site %q", o.Site),
			}
		}
		raw, err := api.SetSitelink(ctx, o.Entity, o.Site, o.Title)
		return raw, "", err

	case *domain.RemoveSitelink:
		if !validSitelinkSite(o.Site) {
			return nil, "", &domain.CommandError{
				Kind:    domain.ErrSitelinkInvalid,
				Message: fmt.Sprintf("invalid sitelink site %q", o.Site),
			}
		}
		raw, err := api.DeleteSitelink(ctx, o.Entity, o.Site)
		return raw, "", err
	}

	return nil, "", &domain.CommandError{
		Kind:    domain.ErrOpNotImplemented,
		Message: fmt.Sprintf("operation %q is not implemented", op.Kind()),
	}
}

// findStatement fetches the target property's statements and selects the
// first whose value matches, in remote order. Zero statements for the
// property and zero matches are distinct error kinds.
func findStatement(ctx context.Context, api API, ref domain.EntityRef, property string, value domain.Value) (*domain.Statement, error) {
	statements, err := api.GetStatements(ctx, ref, property)
	if err != nil {
		return nil, toCommandError(err)
	}
	if len(statements) == 0 {
		return nil, &domain.CommandError{
			Kind:    domain.ErrNoStatementsForProperty,
			Message: fmt.Sprintf("%s has no statements for property %s", ref.ID, property),
		}
	}
	for i := range statements {
		if statements[i].Value.Equal(value) {
			return &statements[i], nil
		}
	}
	return nil, &domain.CommandError{
		Kind:    domain.ErrNoStatementsWithValue,
		Message: fmt.Sprintf("%s has no %s statement with the requested value", ref.ID, property),
	}
}

func removeQualifiers(ctx context.Context, api API, o *domain.RemoveQualifier) (json.RawMessage, error) {
	st, err := findStatement(ctx, api, o.Entity, o.Property, o.Value)
	if err != nil {
		return nil, err
	}

	kept := st.Qualifiers[:0]
	removed := 0
	for _, q := range st.Qualifiers {
		if matchesSnak(q, o.Qualifiers) {
			removed++
			continue
		}
		kept = append(kept, q)
	}
	if removed == 0 {
		return nil, &domain.CommandError{
			Kind:    domain.ErrNoQualifiersMatched,
			Message: fmt.Sprintf("no qualifiers matched on %s statement of %s", o.Property, o.Entity.ID),
		}
	}
	st.Qualifiers = kept
	raw, err := api.ReplaceStatement(ctx, st.ID, *st)
	if err != nil {
		return nil, toCommandError(err)
	}
	return raw, nil
}

func removeReferenceParts(ctx context.Context, api API, o *domain.RemoveReference) (json.RawMessage, error) {
	st, err := findStatement(ctx, api, o.Entity, o.Property, o.Value)
	if err != nil {
		return nil, err
	}

	removed := 0
	var keptRefs []domain.Reference
	for _, ref := range st.References {
		kept := ref.Parts[:0]
		for _, part := range ref.Parts {
			if matchesSnak(part, o.Parts) {
				removed++
				continue
			}
			kept = append(kept, part)
		}
		if len(kept) > 0 {
			keptRefs = append(keptRefs, domain.Reference{Parts: kept})
		}
	}
	if removed == 0 {
		return nil, &domain.CommandError{
			Kind:    domain.ErrNoReferencePartsMatched,
			Message: fmt.Sprintf("no reference parts matched on %s statement of %s", o.Property, o.Entity.ID),
		}
	}
	st.References = keptRefs
	raw, err := api.ReplaceStatement(ctx, st.ID, *st)
	if err != nil {
		return nil, toCommandError(err)
	}
	return raw, nil
}

func matchesSnak(snak domain.Snak, wanted []domain.Snak) bool {
	for _, w := range wanted {
		if snak.Property == w.Property && snak.Value.Equal(w.Value) {
			return true
		}
	}
	return false
}
