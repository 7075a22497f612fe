package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
)

var (
	propertyRegex  = regexp.MustCompile(`^P\d+$`)
	sourceRegex    = regexp.MustCompile(`^(!?)[Ss](\d+)$`)
	statementRegex = regexp.MustCompile(`^([A-Za-z]\d+(?:-[FS]\d+)?)\$[0-9A-Fa-f-]+$`)
	termRegex      = regexp.MustCompile(`^([LDAS])([a-z][a-z0-9-]*)$`)
	itemRegex      = regexp.MustCompile(`^Q(\d+)$`)
	commentRegex   = regexp.MustCompile(`/\*\s*(.*?)\s*\*/`)
)

var rankTokens = map[string]domain.Rank{
	"R+":          domain.RankPreferred,
	"R0":          domain.RankNormal,
	"R-":          domain.RankDeprecated,
	"Rpreferred":  domain.RankPreferred,
	"Rnormal":     domain.RankNormal,
	"Rdeprecated": domain.RankDeprecated,
}

// ParseV1 parses the line notation. Commands are separated by newlines (or
// the compact `||` sentinel) and fields by tabs (or `|`). Each line parses
// independently: a malformed line becomes one Error command carrying the
// diagnostic and parsing continues at the next index.
func ParseV1(text string) []*domain.BatchCommand {
	text = strings.ReplaceAll(text, "||", "\n")
	text = strings.ReplaceAll(text, "|", "\t")

	var commands []*domain.BatchCommand
	index := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cmd := parseLine(line, index)
		commands = append(commands, cmd)
		index++
	}
	return commands
}

func parseLine(line string, index int) *domain.BatchCommand {
	summary := ""
	if m := commentRegex.FindStringSubmatch(line); m != nil {
		summary = m[1]
		line = strings.TrimSpace(commentRegex.ReplaceAllString(line, ""))
	}

	fields := strings.Split(line, "\t")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	op, err := parseFields(fields)
	if err != nil {
		return domain.NewErrorCommand(index, line, err.Error())
	}
	cmd := domain.NewCommand(index, line, op)
	cmd.UserSummary = summary
	return cmd
}

func parseFields(fields []string) (domain.Op, error) {
	switch fields[0] {
	case "CREATE":
		if len(fields) != 1 {
			return nil, fmt.Errorf("CREATE accepts no extra fields")
		}
		return domain.CreateItem{}, nil

	case "CREATE_PROPERTY":
		if len(fields) != 2 {
			return nil, fmt.Errorf("CREATE_PROPERTY requires exactly one datatype field")
		}
		if !domain.PropertyDataTypes[fields[1]] {
			return nil, fmt.Errorf("unknown property datatype %q", fields[1])
		}
		return domain.CreateProperty{DataType: fields[1]}, nil

	case "MERGE":
		if len(fields) != 3 {
			return nil, fmt.Errorf("MERGE requires exactly two items")
		}
		return parseMerge(fields[1], fields[2])

	case "-STATEMENT":
		if len(fields) != 2 {
			return nil, fmt.Errorf("-STATEMENT requires exactly one statement id")
		}
		m := statementRegex.FindStringSubmatch(fields[1])
		if m == nil {
			return nil, fmt.Errorf("malformed statement id %q", fields[1])
		}
		entity := strings.ToUpper(m[1])
		if !domain.IsEntityID(entity) {
			return nil, fmt.Errorf("malformed statement id %q", fields[1])
		}
		return &domain.RemoveStatementByID{
			Entity:      domain.NewEntityRef(entity),
			StatementID: strings.ToUpper(m[1]) + fields[1][len(m[1]):],
		}, nil
	}

	return parseEditLine(fields)
}

// parseMerge normalizes item order so the numerically smaller id is always
// item1: merges always target the older entity.
func parseMerge(a, b string) (domain.Op, error) {
	ma := itemRegex.FindStringSubmatch(strings.ToUpper(a))
	mb := itemRegex.FindStringSubmatch(strings.ToUpper(b))
	if ma == nil || mb == nil {
		return nil, fmt.Errorf("MERGE requires two item ids, got %q and %q", a, b)
	}
	na, _ := strconv.Atoi(ma[1])
	nb, _ := strconv.Atoi(mb[1])
	if nb < na {
		na, nb = nb, na
	}
	return domain.Merge{
		Item1: "Q" + strconv.Itoa(na),
		Item2: "Q" + strconv.Itoa(nb),
	}, nil
}

// parseEditLine handles the generic shape: an entity (optionally
// `-`-prefixed for removal), a property or term code, a value, then
// qualifier/source pairs and an optional rank token.
func parseEditLine(fields []string) (domain.Op, error) {
	if len(fields) < 3 {
		return nil, fmt.Errorf("expected at least entity, property and value")
	}

	remove := false
	entityField := fields[0]
	if strings.HasPrefix(entityField, "-") {
		remove = true
		entityField = entityField[1:]
	}
	entityID, ok := parseEntityID(entityField)
	if !ok {
		return nil, fmt.Errorf("malformed entity id %q", entityField)
	}
	entity := domain.NewEntityRef(entityID)

	if m := termRegex.FindStringSubmatch(fields[1]); m != nil {
		return parseTermOp(entity, m[1], m[2], fields, remove)
	}

	property := strings.ToUpper(fields[1])
	if !propertyRegex.MatchString(property) {
		return nil, fmt.Errorf("malformed property id %q", fields[1])
	}

	value, ok := ParseValue(fields[2])
	if !ok {
		return nil, fmt.Errorf("malformed value %q", fields[2])
	}

	qualifiers, references, parts, rank, err := parseTail(fields[3:])
	if err != nil {
		return nil, err
	}

	if remove {
		switch {
		case len(qualifiers) > 0:
			return &domain.RemoveQualifier{Entity: entity, Property: property,
				Value: value, Qualifiers: qualifiers}, nil
		case len(parts) > 0:
			return &domain.RemoveReference{Entity: entity, Property: property,
				Value: value, Parts: parts}, nil
		default:
			return &domain.RemoveStatementByValue{Entity: entity,
				Property: property, Value: value}, nil
		}
	}

	return &domain.SetStatement{
		Entity:     entity,
		Property:   property,
		Value:      value,
		Qualifiers: qualifiers,
		References: references,
		Rank:       rank,
	}, nil
}

// parseTail walks trailing fields in pairs. P<id> pairs are qualifiers;
// S<n> pairs append to the current reference block, with !S<n> starting an
// additional block; a standalone rank token may close the line.
func parseTail(fields []string) (qualifiers []domain.Snak, references []domain.Reference, parts []domain.Snak, rank domain.Rank, err error) {
	i := 0
	for i < len(fields) {
		field := fields[i]
		if field == "" {
			i++
			continue
		}

		if r, ok := rankTokens[field]; ok {
			rank = r
			i++
			continue
		}

		if i+1 >= len(fields) {
			return nil, nil, nil, "", fmt.Errorf("dangling field %q", field)
		}
		value, ok := ParseValue(fields[i+1])
		if !ok {
			return nil, nil, nil, "", fmt.Errorf("malformed value %q", fields[i+1])
		}

		if propertyRegex.MatchString(strings.ToUpper(field)) {
			qualifiers = append(qualifiers, domain.Snak{
				Property: strings.ToUpper(field), Value: value})
			i += 2
			continue
		}

		if m := sourceRegex.FindStringSubmatch(field); m != nil {
			snak := domain.Snak{Property: "P" + m[2], Value: value}
			if len(references) == 0 || m[1] == "!" {
				references = append(references, domain.Reference{})
			}
			last := &references[len(references)-1]
			last.Parts = append(last.Parts, snak)
			parts = append(parts, snak)
			i += 2
			continue
		}

		return nil, nil, nil, "", fmt.Errorf("unexpected field %q", field)
	}
	return qualifiers, references, parts, rank, nil
}

// parseTermOp handles the label (L), description (D), alias (A) and
// sitelink (S) code families. The suffix is a language code or a site id.
func parseTermOp(entity domain.EntityRef, code, suffix string, fields []string, remove bool) (domain.Op, error) {
	if len(fields) != 3 {
		return nil, fmt.Errorf("term edits take exactly one value")
	}
	text, ok := quotedString(fields[2])
	if !ok {
		return nil, fmt.Errorf("term value must be a quoted string, got %q", fields[2])
	}

	switch code {
	case "L":
		if remove {
			return &domain.RemoveLabel{Entity: entity, Language: suffix, Text: text}, nil
		}
		return &domain.SetLabel{Entity: entity, Language: suffix, Text: text}, nil
	case "D":
		if remove {
			return &domain.RemoveDescription{Entity: entity, Language: suffix, Text: text}, nil
		}
		return &domain.SetDescription{Entity: entity, Language: suffix, Text: text}, nil
	case "A":
		if remove {
			return &domain.RemoveAlias{Entity: entity, Language: suffix, Text: text}, nil
		}
		return &domain.AddAlias{Entity: entity, Language: suffix, Text: text}, nil
	case "S":
		if remove {
			return &domain.RemoveSitelink{Entity: entity, Site: suffix, Title: text}, nil
		}
		return &domain.SetSitelink{Entity: entity, Site: suffix, Title: text}, nil
	}
	return nil, fmt.Errorf("unknown term code %q", code)
}

func quotedString(s string) (string, bool) {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1], true
	}
	return "", false
}
