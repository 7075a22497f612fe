package parser

import (
	"testing"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
)

func TestParseGrid_Basic(t *testing.T) {
	commands, err := ParseGrid("qid,P31,Len\nQ42,Q5,Douglas Adams\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(commands) != 2 {
		t.Fatalf("got %d commands, want 2", len(commands))
	}

	stmt := commands[0].Op.(*domain.SetStatement)
	if stmt.Entity.ID != "Q42" || stmt.Property != "P31" || stmt.Value.Entity.ID != "Q5" {
		t.Errorf("statement = %+v", stmt)
	}
	label := commands[1].Op.(*domain.SetLabel)
	if label.Language != "en" || label.Text != "Douglas Adams" {
		t.Errorf("label = %+v", label)
	}

	// Grid-derived commands carry no raw text
	for i, c := range commands {
		if c.Raw != "" {
			t.Errorf("command %d: raw = %q, want empty", i, c.Raw)
		}
	}
}

func TestParseGrid_EmptyEntitySynthesizesCreate(t *testing.T) {
	commands, err := ParseGrid("qid,Len,P31\n,New item,Q5\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(commands) != 3 {
		t.Fatalf("got %d commands, want 3", len(commands))
	}
	if commands[0].Operation != domain.OpCreateItem {
		t.Errorf("command 0 = %s, want create_item", commands[0].Operation)
	}
	label := commands[1].Op.(*domain.SetLabel)
	if label.Entity.ID != domain.LastPlaceholder {
		t.Errorf("label entity = %s, want LAST", label.Entity.ID)
	}
	stmt := commands[2].Op.(*domain.SetStatement)
	if !stmt.Entity.IsLast() {
		t.Errorf("statement entity = %s, want LAST", stmt.Entity.ID)
	}
}

func TestParseGrid_HeaderValidation(t *testing.T) {
	// A qualifier column before any property column fails the whole batch
	for _, header := range []string{"qid,qal580,P31", "qid,#,P31", "qid,S854,P31", "qid,bogus"} {
		if _, err := ParseGrid(header + "\nQ42,x,Q5\n"); err == nil {
			t.Errorf("header %q should be rejected", header)
		}
	}
}

func TestParseGrid_QualifiersAndSources(t *testing.T) {
	text := "qid,P39,qal580,S854,s813,S143\n" +
		"Q42,Q11696,+2009-01-20T00:00:00Z,\"\"\"https://example.org\"\"\",+2020-01-01T00:00:00Z,Q328\n"
	commands, err := ParseGrid(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(commands) != 1 {
		t.Fatalf("got %d commands", len(commands))
	}
	stmt := commands[0].Op.(*domain.SetStatement)
	if len(stmt.Qualifiers) != 1 || stmt.Qualifiers[0].Property != "P580" {
		t.Errorf("qualifiers = %+v", stmt.Qualifiers)
	}
	// S854 opens a block, lowercase s813 continues it, S143 opens another
	if len(stmt.References) != 2 {
		t.Fatalf("got %d reference blocks, want 2", len(stmt.References))
	}
	if len(stmt.References[0].Parts) != 2 || len(stmt.References[1].Parts) != 1 {
		t.Errorf("reference parts = %d/%d", len(stmt.References[0].Parts), len(stmt.References[1].Parts))
	}
}

func TestParseGrid_CommentColumn(t *testing.T) {
	commands, err := ParseGrid("qid,P31,#\nQ42,Q5,adding class\n")
	if err != nil {
		t.Fatal(err)
	}
	if commands[0].UserSummary != "adding class" {
		t.Errorf("summary = %q", commands[0].UserSummary)
	}
}

func TestParseGrid_UnparseableCellFallsBackToString(t *testing.T) {
	commands, err := ParseGrid("qid,P2093\nQ42,some author name\n")
	if err != nil {
		t.Fatal(err)
	}
	stmt := commands[0].Op.(*domain.SetStatement)
	if stmt.Value.Type != domain.ValueString || stmt.Value.Str != "some author name" {
		t.Errorf("value = %+v", stmt.Value)
	}
}

func TestParseGrid_BadEntityID(t *testing.T) {
	commands, err := ParseGrid("qid,P31\nnotanid,Q5\nQ42,Q5\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(commands) != 2 {
		t.Fatalf("got %d commands, want 2", len(commands))
	}
	if commands[0].Status != domain.CommandFailed {
		t.Errorf("command 0 status = %s", commands[0].Status)
	}
	if commands[1].Status != domain.CommandInitial {
		t.Errorf("command 1 status = %s", commands[1].Status)
	}
}

func TestParseGrid_RemoveColumn(t *testing.T) {
	commands, err := ParseGrid("qid,-P31\nQ42,Q5\n")
	if err != nil {
		t.Fatal(err)
	}
	if commands[0].Operation != domain.OpRemoveStatementByValue {
		t.Errorf("operation = %s", commands[0].Operation)
	}
}

func TestNewGrid_HeaderFailure(t *testing.T) {
	if _, err := NewGrid("b", "user", "qid,qal123\nQ1,Q2\n"); err == nil {
		t.Error("expected header error")
	}
}
