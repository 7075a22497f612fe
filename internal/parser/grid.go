package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
)

type columnKind int

const (
	colEntity columnKind = iota
	colProperty
	colTerm
	colComment
	colQualifier
	colSource
)

type gridColumn struct {
	kind     columnKind
	remove   bool
	property string // qualifier/source/statement property id
	code     string // term code letter
	suffix   string // term language or site id
	newBlock bool   // uppercase S starts a reference block, lowercase s continues
}

// ParseGrid parses the tabular notation: a CSV header row plus data rows.
// A bad header is a hard failure for the whole batch; bad cells only
// affect their own command.
func ParseGrid(text string) ([]*domain.BatchCommand, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	columns, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	var commands []*domain.BatchCommand
	index := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		index = parseRow(columns, record, index, &commands)
	}
	return commands, nil
}

// parseHeader validates that every comment, qualifier and source column is
// preceded by a property-like column.
func parseHeader(header []string) ([]gridColumn, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("empty header")
	}
	columns := make([]gridColumn, len(header))
	columns[0] = gridColumn{kind: colEntity}

	seenProperty := false
	for i, cell := range header[1:] {
		cell = strings.TrimSpace(cell)
		col, err := parseHeaderCell(cell)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+2, err)
		}
		switch col.kind {
		case colProperty, colTerm:
			seenProperty = true
		case colComment, colQualifier, colSource:
			if !seenProperty {
				return nil, fmt.Errorf("column %d (%q) must follow a property column", i+2, cell)
			}
		}
		columns[i+1] = col
	}
	return columns, nil
}

func parseHeaderCell(cell string) (gridColumn, error) {
	if cell == "#" {
		return gridColumn{kind: colComment}, nil
	}
	if strings.HasPrefix(cell, "qal") {
		property := strings.ToUpper(cell[3:])
		if !allDigits(cell[3:]) {
			return gridColumn{}, fmt.Errorf("malformed qualifier column %q", cell)
		}
		return gridColumn{kind: colQualifier, property: "P" + property}, nil
	}
	if m := sourceRegex.FindStringSubmatch(cell); m != nil && m[1] == "" {
		return gridColumn{
			kind:     colSource,
			property: "P" + m[2],
			newBlock: strings.HasPrefix(cell, "S"),
		}, nil
	}

	remove := false
	name := cell
	if strings.HasPrefix(name, "-") {
		remove = true
		name = name[1:]
	}
	if propertyRegex.MatchString(strings.ToUpper(name)) {
		return gridColumn{kind: colProperty, remove: remove,
			property: strings.ToUpper(name)}, nil
	}
	if m := termRegex.FindStringSubmatch(name); m != nil {
		return gridColumn{kind: colTerm, remove: remove, code: m[1], suffix: m[2]}, nil
	}
	return gridColumn{}, fmt.Errorf("unrecognized column %q", cell)
}

// parseRow walks one data row left to right. A property-like column with a
// nonempty cell starts a new command; comment, qualifier and source cells
// attach to the command currently being built.
func parseRow(columns []gridColumn, record []string, index int, commands *[]*domain.BatchCommand) int {
	cell := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	entityID := cell(0)
	if entityID == "" {
		*commands = append(*commands, domain.NewCommand(index, "", domain.CreateItem{}))
		index++
		entityID = domain.LastPlaceholder
	} else {
		id, ok := parseEntityID(entityID)
		if !ok {
			*commands = append(*commands, domain.NewErrorCommand(index, "",
				fmt.Sprintf("malformed entity id %q", entityID)))
			return index + 1
		}
		entityID = id
	}
	entity := domain.NewEntityRef(entityID)

	var current *domain.BatchCommand
	for i := 1; i < len(columns); i++ {
		col := columns[i]
		text := cell(i)
		if text == "" {
			continue
		}

		switch col.kind {
		case colProperty, colTerm:
			op, err := gridCommandOp(col, entity, text)
			if err != nil {
				current = domain.NewErrorCommand(index, "", err.Error())
			} else {
				current = domain.NewCommand(index, "", op)
			}
			*commands = append(*commands, current)
			index++

		case colComment:
			if current == nil {
				continue
			}
			if current.UserSummary != "" {
				current.UserSummary += "; " + text
			} else {
				current.UserSummary = text
			}

		case colQualifier:
			current = attachSnak(current, col, text, false)

		case colSource:
			current = attachSnak(current, col, text, true)
		}
	}
	return index
}

func gridCommandOp(col gridColumn, entity domain.EntityRef, text string) (domain.Op, error) {
	if col.kind == colTerm {
		fields := []string{entity.ID, col.code + col.suffix, `"` + text + `"`}
		if col.remove {
			fields[0] = "-" + fields[0]
		}
		return parseEditLine(fields)
	}

	// Cell values are not specially validated: anything the value grammar
	// rejects falls through to a generic string value.
	value, ok := ParseValue(text)
	if !ok {
		value = domain.StringValue(text)
	}
	if col.remove {
		return &domain.RemoveStatementByValue{Entity: entity,
			Property: col.property, Value: value}, nil
	}
	return &domain.SetStatement{Entity: entity, Property: col.property,
		Value: value}, nil
}

// attachSnak appends a qualifier or reference part to the statement being
// built. Attaching to anything but an add-statement command is a cell
// error recorded on that command.
func attachSnak(current *domain.BatchCommand, col gridColumn, text string, source bool) *domain.BatchCommand {
	if current == nil || current.Status == domain.CommandFailed {
		return current
	}
	stmt, ok := current.Op.(*domain.SetStatement)
	if !ok {
		current.Fail(domain.ErrParse,
			fmt.Sprintf("column %q requires a preceding add-statement column", col.property))
		return current
	}

	value, ok2 := ParseValue(text)
	if !ok2 {
		value = domain.StringValue(text)
	}
	snak := domain.Snak{Property: col.property, Value: value}

	if !source {
		stmt.Qualifiers = append(stmt.Qualifiers, snak)
		return current
	}
	if col.newBlock || len(stmt.References) == 0 {
		stmt.References = append(stmt.References, domain.Reference{})
	}
	last := &stmt.References[len(stmt.References)-1]
	last.Parts = append(last.Parts, snak)
	return current
}
