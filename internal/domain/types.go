package domain

// BatchStatus represents the lifecycle state of a batch
type BatchStatus string

const (
	BatchPreview BatchStatus = "preview"
	BatchInitial BatchStatus = "initial"
	BatchRunning BatchStatus = "running"
	BatchDone    BatchStatus = "done"
	BatchBlocked BatchStatus = "blocked"
	BatchStopped BatchStatus = "stopped"
)

// CommandStatus represents the execution state of a single command
type CommandStatus string

const (
	CommandInitial CommandStatus = "initial"
	CommandRunning CommandStatus = "running"
	CommandDone    CommandStatus = "done"
	CommandFailed  CommandStatus = "error"
)

// Operation identifies the concrete edit a command performs
type Operation string

const (
	OpCreateItem             Operation = "create_item"
	OpCreateProperty         Operation = "create_property"
	OpMerge                  Operation = "merge"
	OpSetStatement           Operation = "set_statement"
	OpRemoveStatementByID    Operation = "remove_statement_by_id"
	OpRemoveStatementByValue Operation = "remove_statement_by_value"
	OpRemoveQualifier        Operation = "remove_qualifier"
	OpRemoveReference        Operation = "remove_reference"
	OpSetLabel               Operation = "set_label"
	OpRemoveLabel            Operation = "remove_label"
	OpSetDescription         Operation = "set_description"
	OpRemoveDescription      Operation = "remove_description"
	OpSetSitelink            Operation = "set_sitelink"
	OpRemoveSitelink         Operation = "remove_sitelink"
	OpAddAlias               Operation = "add_alias"
	OpRemoveAlias            Operation = "remove_alias"
)

// Action is the coarse grouping kept for display purposes
type Action string

const (
	ActionCreate Action = "create"
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	ActionMerge  Action = "merge"
)

// Rank of a statement
type Rank string

const (
	RankPreferred  Rank = "preferred"
	RankNormal     Rank = "normal"
	RankDeprecated Rank = "deprecated"
)

// ErrorKind is the closed taxonomy of command failures
type ErrorKind string

const (
	ErrOpNotImplemented        ErrorKind = "op_not_implemented"
	ErrNoStatementsForProperty ErrorKind = "no_statements_for_property"
	ErrNoStatementsWithValue   ErrorKind = "no_statements_with_value"
	ErrNoQualifiersMatched     ErrorKind = "no_qualifiers_matched"
	ErrNoReferencePartsMatched ErrorKind = "no_reference_parts_matched"
	ErrSitelinkInvalid         ErrorKind = "sitelink_invalid"
	ErrCombiningCommandFailed  ErrorKind = "combining_command_failed"
	ErrAPIUserError            ErrorKind = "api_user_error"
	ErrAPIServerError          ErrorKind = "api_server_error"
	ErrLastNotEvaluated        ErrorKind = "last_not_evaluated"

	// ErrParse is recorded at parse time for a malformed line or row.
	// The runner never produces it.
	ErrParse ErrorKind = "parse_error"
)

// CommandError is the only error type the runner records on a command.
// Every failure inside command execution is mapped to one of these.
type CommandError struct {
	Kind    ErrorKind
	Message string
}

func (e *CommandError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// PropertyDataTypes is the allow-list accepted by CREATE_PROPERTY
var PropertyDataTypes = map[string]bool{
	"commonsMedia":      true,
	"globe-coordinate":  true,
	"wikibase-item":     true,
	"wikibase-property": true,
	"string":            true,
	"monolingualtext":   true,
	"external-id":       true,
	"quantity":          true,
	"time":              true,
	"url":               true,
	"math":              true,
	"geo-shape":         true,
	"musical-notation":  true,
	"tabular-data":      true,
	"wikibase-lexeme":   true,
	"wikibase-form":     true,
	"wikibase-sense":    true,
	"entity-schema":     true,
}
