package domain

import "encoding/json"

// Statement is a property/value assertion attached to an entity
type Statement struct {
	ID         string      `json:"id,omitempty"`
	Property   string      `json:"property"`
	Value      Value       `json:"value"`
	Qualifiers []Snak      `json:"qualifiers,omitempty"`
	References []Reference `json:"references,omitempty"`
	Rank       Rank        `json:"rank,omitempty"`
}

// Document is an entity document as served by the remote API. Statements
// are keyed by property id, in remote order.
type Document struct {
	ID           string                 `json:"id,omitempty"`
	Labels       map[string]string      `json:"labels,omitempty"`
	Descriptions map[string]string      `json:"descriptions,omitempty"`
	Aliases      map[string][]string    `json:"aliases,omitempty"`
	Statements   map[string][]Statement `json:"statements,omitempty"`
	Sitelinks    map[string]string      `json:"sitelinks,omitempty"`
}

// Clone returns a deep copy. The accumulated document of a combined chain
// is always a clone of the original, never the original itself.
func (d *Document) Clone() *Document {
	raw, _ := json.Marshal(d)
	out := &Document{}
	_ = json.Unmarshal(raw, out)
	return out
}

// UpsertStatement merges a statement into the document. A statement with
// equal value content for the same property is extended: qualifiers and
// references are appended, rank is replaced if set. Otherwise the
// statement is appended to the property's list.
func (d *Document) UpsertStatement(s Statement) {
	if d.Statements == nil {
		d.Statements = make(map[string][]Statement)
	}
	existing := d.Statements[s.Property]
	for i := range existing {
		if existing[i].Value.Equal(s.Value) {
			existing[i].Qualifiers = append(existing[i].Qualifiers, s.Qualifiers...)
			existing[i].References = append(existing[i].References, s.References...)
			if s.Rank != "" {
				existing[i].Rank = s.Rank
			}
			return
		}
	}
	d.Statements[s.Property] = append(existing, s)
}

// AddAlias appends an alias to a language's list unless already present
func (d *Document) AddAlias(language, text string) {
	if d.Aliases == nil {
		d.Aliases = make(map[string][]string)
	}
	for _, a := range d.Aliases[language] {
		if a == text {
			return
		}
	}
	d.Aliases[language] = append(d.Aliases[language], text)
}
