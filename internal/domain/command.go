package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snak is a property/value pair used for qualifiers and reference parts
type Snak struct {
	Property string `json:"property"`
	Value    Value  `json:"value"`
}

// Reference is one source block attached to a statement
type Reference struct {
	Parts []Snak `json:"parts"`
}

// Op is implemented by every operation payload. The concrete type carries
// exactly the operands that operation needs; serialization to the stable
// wire shape happens only at the persistence boundary.
type Op interface {
	Kind() Operation
}

// EntityOp is implemented by operations that target one entity. The
// returned pointer lets the runner resolve a LAST placeholder in place.
type EntityOp interface {
	Op
	EntityRef() *EntityRef
}

type CreateItem struct{}

type CreateProperty struct {
	DataType string
}

type Merge struct {
	Item1 string
	Item2 string
}

type SetStatement struct {
	Entity     EntityRef
	Property   string
	Value      Value
	Qualifiers []Snak
	References []Reference
	Rank       Rank
}

type RemoveStatementByID struct {
	Entity      EntityRef
	StatementID string
}

type RemoveStatementByValue struct {
	Entity   EntityRef
	Property string
	Value    Value
}

type RemoveQualifier struct {
	Entity     EntityRef
	Property   string
	Value      Value
	Qualifiers []Snak
}

type RemoveReference struct {
	Entity   EntityRef
	Property string
	Value    Value
	Parts    []Snak
}

type SetLabel struct {
	Entity   EntityRef
	Language string
	Text     string
}

type RemoveLabel struct {
	Entity   EntityRef
	Language string
	Text     string
}

type SetDescription struct {
	Entity   EntityRef
	Language string
	Text     string
}

type RemoveDescription struct {
	Entity   EntityRef
	Language string
	Text     string
}

type AddAlias struct {
	Entity   EntityRef
	Language string
	Text     string
}

type RemoveAlias struct {
	Entity   EntityRef
	Language string
	Text     string
}

type SetSitelink struct {
	Entity EntityRef
	Site   string
	Title  string
}

type RemoveSitelink struct {
	Entity EntityRef
	Site   string
	Title  string
}

func (CreateItem) Kind() Operation             { return OpCreateItem }
func (CreateProperty) Kind() Operation         { return OpCreateProperty }
func (Merge) Kind() Operation                  { return OpMerge }
func (*SetStatement) Kind() Operation          { return OpSetStatement }
func (*RemoveStatementByID) Kind() Operation   { return OpRemoveStatementByID }
func (*RemoveStatementByValue) Kind() Operation { return OpRemoveStatementByValue }
func (*RemoveQualifier) Kind() Operation       { return OpRemoveQualifier }
func (*RemoveReference) Kind() Operation       { return OpRemoveReference }
func (*SetLabel) Kind() Operation              { return OpSetLabel }
func (*RemoveLabel) Kind() Operation           { return OpRemoveLabel }
func (*SetDescription) Kind() Operation        { return OpSetDescription }
func (*RemoveDescription) Kind() Operation     { return OpRemoveDescription }
func (*AddAlias) Kind() Operation              { return OpAddAlias }
func (*RemoveAlias) Kind() Operation           { return OpRemoveAlias }
func (*SetSitelink) Kind() Operation           { return OpSetSitelink }
func (*RemoveSitelink) Kind() Operation        { return OpRemoveSitelink }

func (o *SetStatement) EntityRef() *EntityRef           { return &o.Entity }
func (o *RemoveStatementByID) EntityRef() *EntityRef    { return &o.Entity }
func (o *RemoveStatementByValue) EntityRef() *EntityRef { return &o.Entity }
func (o *RemoveQualifier) EntityRef() *EntityRef        { return &o.Entity }
func (o *RemoveReference) EntityRef() *EntityRef        { return &o.Entity }
func (o *SetLabel) EntityRef() *EntityRef               { return &o.Entity }
func (o *RemoveLabel) EntityRef() *EntityRef            { return &o.Entity }
func (o *SetDescription) EntityRef() *EntityRef         { return &o.Entity }
func (o *RemoveDescription) EntityRef() *EntityRef      { return &o.Entity }
func (o *AddAlias) EntityRef() *EntityRef               { return &o.Entity }
func (o *RemoveAlias) EntityRef() *EntityRef            { return &o.Entity }
func (o *SetSitelink) EntityRef() *EntityRef            { return &o.Entity }
func (o *RemoveSitelink) EntityRef() *EntityRef         { return &o.Entity }

// ActionOf returns the coarse display action for an operation
func ActionOf(op Operation) Action {
	switch op {
	case OpCreateItem, OpCreateProperty:
		return ActionCreate
	case OpMerge:
		return ActionMerge
	case OpRemoveStatementByID, OpRemoveStatementByValue, OpRemoveQualifier,
		OpRemoveReference, OpRemoveLabel, OpRemoveDescription, OpRemoveSitelink,
		OpRemoveAlias:
		return ActionRemove
	default:
		return ActionAdd
	}
}

// payloadWire is the persisted JSON shape shared by all operation kinds.
// Key set is fixed; fields not used by an operation are omitted.
type payloadWire struct {
	Operation   Operation   `json:"operation"`
	Entity      *EntityRef  `json:"entity,omitempty"`
	Property    string      `json:"property,omitempty"`
	Value       *Value      `json:"value,omitempty"`
	Qualifiers  []Snak      `json:"qualifiers,omitempty"`
	References  []Reference `json:"references,omitempty"`
	Parts       []Snak      `json:"parts,omitempty"`
	Rank        Rank        `json:"rank,omitempty"`
	DataType    string      `json:"datatype,omitempty"`
	StatementID string      `json:"statement_id,omitempty"`
	Item1       string      `json:"item1,omitempty"`
	Item2       string      `json:"item2,omitempty"`
	Language    string      `json:"language,omitempty"`
	Site        string      `json:"site,omitempty"`
	Text        string      `json:"text,omitempty"`
}

// MarshalPayload serializes an operation payload to its wire shape
func MarshalPayload(op Op) ([]byte, error) {
	w := payloadWire{Operation: op.Kind()}
	switch o := op.(type) {
	case CreateItem:
	case CreateProperty:
		w.DataType = o.DataType
	case Merge:
		w.Item1, w.Item2 = o.Item1, o.Item2
	case *SetStatement:
		w.Entity, w.Property = &o.Entity, o.Property
		v := o.Value
		w.Value = &v
		w.Qualifiers, w.References, w.Rank = o.Qualifiers, o.References, o.Rank
	case *RemoveStatementByID:
		w.Entity, w.StatementID = &o.Entity, o.StatementID
	case *RemoveStatementByValue:
		w.Entity, w.Property = &o.Entity, o.Property
		v := o.Value
		w.Value = &v
	case *RemoveQualifier:
		w.Entity, w.Property = &o.Entity, o.Property
		v := o.Value
		w.Value = &v
		w.Qualifiers = o.Qualifiers
	case *RemoveReference:
		w.Entity, w.Property = &o.Entity, o.Property
		v := o.Value
		w.Value = &v
		w.Parts = o.Parts
	case *SetLabel:
		w.Entity, w.Language, w.Text = &o.Entity, o.Language, o.Text
	case *RemoveLabel:
		w.Entity, w.Language, w.Text = &o.Entity, o.Language, o.Text
	case *SetDescription:
		w.Entity, w.Language, w.Text = &o.Entity, o.Language, o.Text
	case *RemoveDescription:
		w.Entity, w.Language, w.Text = &o.Entity, o.Language, o.Text
	case *AddAlias:
		w.Entity, w.Language, w.Text = &o.Entity, o.Language, o.Text
	case *RemoveAlias:
		w.Entity, w.Language, w.Text = &o.Entity, o.Language, o.Text
	case *SetSitelink:
		w.Entity, w.Site, w.Text = &o.Entity, o.Site, o.Title
	case *RemoveSitelink:
		w.Entity, w.Site, w.Text = &o.Entity, o.Site, o.Title
	default:
		return nil, fmt.Errorf("unknown operation payload %T", op)
	}
	return json.Marshal(w)
}

// UnmarshalPayload reads a wire payload back into its typed operation
func UnmarshalPayload(data []byte) (Op, error) {
	var w payloadWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	entity := func() EntityRef {
		if w.Entity != nil {
			return *w.Entity
		}
		return EntityRef{}
	}
	value := func() Value {
		if w.Value != nil {
			return *w.Value
		}
		return Value{}
	}
	switch w.Operation {
	case OpCreateItem:
		return CreateItem{}, nil
	case OpCreateProperty:
		return CreateProperty{DataType: w.DataType}, nil
	case OpMerge:
		return Merge{Item1: w.Item1, Item2: w.Item2}, nil
	case OpSetStatement:
		return &SetStatement{Entity: entity(), Property: w.Property, Value: value(),
			Qualifiers: w.Qualifiers, References: w.References, Rank: w.Rank}, nil
	case OpRemoveStatementByID:
		return &RemoveStatementByID{Entity: entity(), StatementID: w.StatementID}, nil
	case OpRemoveStatementByValue:
		return &RemoveStatementByValue{Entity: entity(), Property: w.Property, Value: value()}, nil
	case OpRemoveQualifier:
		return &RemoveQualifier{Entity: entity(), Property: w.Property, Value: value(),
			Qualifiers: w.Qualifiers}, nil
	case OpRemoveReference:
		return &RemoveReference{Entity: entity(), Property: w.Property, Value: value(),
			Parts: w.Parts}, nil
	case OpSetLabel:
		return &SetLabel{Entity: entity(), Language: w.Language, Text: w.Text}, nil
	case OpRemoveLabel:
		return &RemoveLabel{Entity: entity(), Language: w.Language, Text: w.Text}, nil
	case OpSetDescription:
		return &SetDescription{Entity: entity(), Language: w.Language, Text: w.Text}, nil
	case OpRemoveDescription:
		return &RemoveDescription{Entity: entity(), Language: w.Language, Text: w.Text}, nil
	case OpAddAlias:
		return &AddAlias{Entity: entity(), Language: w.Language, Text: w.Text}, nil
	case OpRemoveAlias:
		return &RemoveAlias{Entity: entity(), Language: w.Language, Text: w.Text}, nil
	case OpSetSitelink:
		return &SetSitelink{Entity: entity(), Site: w.Site, Title: w.Text}, nil
	case OpRemoveSitelink:
		return &RemoveSitelink{Entity: entity(), Site: w.Site, Title: w.Text}, nil
	}
	return nil, fmt.Errorf("unknown operation %q", w.Operation)
}

// BatchCommand is one edit instruction inside a batch
type BatchCommand struct {
	ID                int
	BatchID           int
	Index             int
	Raw               string
	Op                Op
	Operation         Operation
	Action            Action
	Status            CommandStatus
	Error             *CommandError
	ValueTypeVerified bool
	Response          json.RawMessage
	UserSummary       string
}

// NewCommand builds a command around a typed payload
func NewCommand(index int, raw string, op Op) *BatchCommand {
	return &BatchCommand{
		Index:     index,
		Raw:       raw,
		Op:        op,
		Operation: op.Kind(),
		Action:    ActionOf(op.Kind()),
		Status:    CommandInitial,
	}
}

// NewErrorCommand records a parse failure at a fixed index so the rest of
// the batch keeps its ordering.
func NewErrorCommand(index int, raw string, message string) *BatchCommand {
	return &BatchCommand{
		Index:  index,
		Raw:    raw,
		Status: CommandFailed,
		Error:  &CommandError{Kind: ErrParse, Message: message},
	}
}

// Fail moves the command to Error with the given kind and message
func (c *BatchCommand) Fail(kind ErrorKind, message string) {
	c.Status = CommandFailed
	c.Error = &CommandError{Kind: kind, Message: message}
}

// Batch groups an ordered command sequence with its execution policy
type Batch struct {
	ID              int
	Name            string
	Username        string
	Status          BatchStatus
	Message         string
	BlockOnErrors   bool
	CombineCommands bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
