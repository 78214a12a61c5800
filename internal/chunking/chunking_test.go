// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunking

import (
	"context"
	"strings"
	"testing"
)

func TestDispatchSplitter_EmptyText(t *testing.T) {
	s := NewSplitter(nil)
	pieces, err := s.Split(context.Background(), "", Plan{Strategy: StrategyRecursive})
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) != 0 {
		t.Errorf("expected 0 pieces for empty text, got %d", len(pieces))
	}
}

func TestDispatchSplitter_UnknownStrategy(t *testing.T) {
	s := NewSplitter(nil)
	_, err := s.Split(context.Background(), "hello", Plan{Strategy: "nonsense"})
	if err == nil {
		t.Fatal("expected an error for an unknown strategy")
	}
}

func TestDispatchSplitter_SemanticFallsBackWithNoLLM(t *testing.T) {
	s := NewSplitter(nil)
	text := strings.Repeat("This is sentence one. This is sentence two. ", 50)
	pieces, err := s.Split(context.Background(), text, Plan{Strategy: StrategySemantic, Size: 500, Overlap: 50})
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) == 0 {
		t.Fatal("expected semantic fallback to recursive splitting to produce pieces")
	}
}

func TestRecursive_ShortTextSingleChunk(t *testing.T) {
	text := "This is a short text that should not be split."
	pieces, err := splitRecursive(text, Plan{Size: 1000, Overlap: 100})
	if err != nil {
		t.Fatalf("splitRecursive failed: %v", err)
	}
	if len(pieces) != 1 {
		t.Fatalf("expected 1 chunk for short text, got %d", len(pieces))
	}
	if pieces[0].Index != 0 {
		t.Errorf("expected index 0, got %d", pieces[0].Index)
	}
	if pieces[0].Text != text {
		t.Errorf("chunk content mismatch. expected %q, got %q", text, pieces[0].Text)
	}
}

func TestRecursive_LongTextMultipleChunksDenseIndices(t *testing.T) {
	paragraph := "This is a sample paragraph. It contains multiple sentences. Each sentence ends with a period. "
	text := strings.Repeat(paragraph, 40) // ~3700 chars
	pieces, err := splitRecursive(text, Plan{Size: 1000, Overlap: 100})
	if err != nil {
		t.Fatalf("splitRecursive failed: %v", err)
	}
	if len(pieces) < 2 {
		t.Fatalf("expected at least 2 chunks for long text, got %d", len(pieces))
	}
	for i, p := range pieces {
		if p.Index != i {
			t.Errorf("chunk indices are not dense: piece %d has Index %d", i, p.Index)
		}
	}
}

func TestRecursive_EmptyText(t *testing.T) {
	pieces, err := splitRecursive("", Plan{Size: 1000, Overlap: 100})
	if err != nil {
		t.Fatalf("splitRecursive failed: %v", err)
	}
	if len(pieces) != 0 {
		t.Errorf("expected 0 chunks for empty text, got %d", len(pieces))
	}
}

func TestRecursive_DefaultsAppliedOnInvalidPlan(t *testing.T) {
	text := strings.Repeat("word ", 10)
	pieces, err := splitRecursive(text, Plan{Size: 0, Overlap: -1})
	if err != nil {
		t.Fatalf("splitRecursive failed: %v", err)
	}
	if len(pieces) != 1 {
		t.Fatalf("expected defaults to keep short text in one chunk, got %d", len(pieces))
	}
}

func TestSliceAtBoundaries_SortsOutOfOrderBoundaries(t *testing.T) {
	text := "0123456789ABCDEFGHIJ"
	pieces := sliceAtBoundaries(text, []int{15, 5})
	if len(pieces) != 3 {
		t.Fatalf("expected 3 chunks from 2 sorted boundaries, got %d: %+v", len(pieces), pieces)
	}
	joined := pieces[0].Text + pieces[1].Text + pieces[2].Text
	if joined != text {
		t.Errorf("reassembled chunks %q do not reproduce the original text %q", joined, text)
	}
	for i, p := range pieces {
		if p.Index != i {
			t.Errorf("piece %d has non-dense index %d", i, p.Index)
		}
	}
}

func TestToken_ProducesDenseOrderedChunks(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 100)
	pieces, err := splitToken(text, Plan{Size: 50, Overlap: 5})
	if err != nil {
		t.Fatalf("splitToken failed: %v", err)
	}
	if len(pieces) < 2 {
		t.Fatalf("expected multiple token chunks, got %d", len(pieces))
	}
	for i, p := range pieces {
		if p.Index != i {
			t.Errorf("token chunk indices not dense at %d: got %d", i, p.Index)
		}
		if strings.TrimSpace(p.Text) == "" {
			t.Errorf("token chunk %d is empty", i)
		}
	}
}

func TestToken_EmptyText(t *testing.T) {
	pieces, err := splitToken("", Plan{Size: 50, Overlap: 5})
	if err != nil {
		t.Fatalf("splitToken failed: %v", err)
	}
	if len(pieces) != 0 {
		t.Errorf("expected 0 chunks for empty text, got %d", len(pieces))
	}
}

func TestHeaderStructured_PreservesHeadingPath(t *testing.T) {
	text := "# Title\n\nIntro paragraph.\n\n## Section A\n\nContent of section A.\n\n### Subsection A.1\n\nDeep content.\n"
	pieces, err := splitHeaderStructured(text, Plan{Size: 1500, Overlap: 100})
	if err != nil {
		t.Fatalf("splitHeaderStructured failed: %v", err)
	}
	if len(pieces) == 0 {
		t.Fatal("expected at least one chunk")
	}

	var sawSubsectionPath bool
	for i, p := range pieces {
		if p.Index != i {
			t.Errorf("header chunk indices not dense at %d: got %d", i, p.Index)
		}
		if strings.Contains(p.Text, "Title > Section A > Subsection A.1") {
			sawSubsectionPath = true
		}
	}
	if !sawSubsectionPath {
		t.Error("expected a chunk carrying the full heading path for the deepest section")
	}
}

func TestHeaderStructured_NoHeadingsFallsBackToRecursive(t *testing.T) {
	text := strings.Repeat("plain text with no markdown headings at all. ", 50)
	pieces, err := splitHeaderStructured(text, Plan{Size: 500, Overlap: 50})
	if err != nil {
		t.Fatalf("splitHeaderStructured failed: %v", err)
	}
	if len(pieces) == 0 {
		t.Fatal("expected fallback to recursive splitting to produce chunks")
	}
}

func TestHeadingLevel(t *testing.T) {
	cases := []struct {
		line      string
		wantLevel int
		wantTitle string
	}{
		{"# Title", 1, "Title"},
		{"### Deep Section", 3, "Deep Section"},
		{"####### Too Deep", 0, ""},
		{"not a heading", 0, ""},
		{"#NoSpace", 0, ""},
	}
	for _, c := range cases {
		level, title := headingLevel(c.line)
		if level != c.wantLevel || title != c.wantTitle {
			t.Errorf("headingLevel(%q) = (%d, %q), want (%d, %q)", c.line, level, title, c.wantLevel, c.wantTitle)
		}
	}
}
