package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		prev LineType
		want LineType
	}{
		{name: "timestamp after caption", line: "   Mon Oct 19 2026  06:00AM", prev: Caption, want: Timestamp},
		{name: "blank after timestamp", line: "", prev: Timestamp, want: Blank},
		{name: "whitespace only is blank", line: "   \t", prev: Blank, want: Blank},
		{name: "header after blank", line: "Central 741.5 SMI .b1234567x", prev: Blank, want: BlockLine1},
		{name: "title after header", line: "Some Title / Some Author.", prev: BlockLine1, want: BlockLine2},
		{name: "indented title after header", line: "  continued title", prev: BlockLine1, want: BlockLine2},
		{name: "publisher after title", line: "Publisher, 2020.", prev: BlockLine2, want: BlockLine3},
		{name: "empty publisher slot", line: "", prev: BlockLine2, want: BlockLine3},
		{name: "pickup after publisher", line: "Central Library", prev: BlockLine3, want: BlockLine4},
		{name: "fifth body line", line: "Central Library", prev: BlockLine4, want: BlockLine5},
		{name: "blank closes block", line: "", prev: BlockLine4, want: Blank},
		{name: "page mark", line: "Page 2", prev: Blank, want: PageMark},
		{name: "caption after page mark", line: "     Title Paging List", prev: PageMark, want: Caption},
		{name: "carriage return trimmed", line: "Page 12\r", prev: BlockLine5, want: PageMark},
		{name: "sixth body line", line: "too many", prev: BlockLine5, want: Invalid},
		{name: "content after timestamp", line: "Central", prev: Timestamp, want: Invalid},
		{name: "indented after blank", line: "  stray", prev: Blank, want: Invalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.line, tt.prev); got != tt.want {
				t.Errorf("Classify(%q, %s) = %s, want %s", tt.line, tt.prev, got, tt.want)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	line := "Publisher, 2020."
	first := Classify(line, BlockLine2)

	// interleave unrelated calls
	Classify("", BlockLine4)
	Classify("Page 3", Blank)

	assert.Equal(t, first, Classify(line, BlockLine2))
}

func TestLineTypeString(t *testing.T) {
	assert.Equal(t, "block-line-3", BlockLine3.String())
	assert.Equal(t, "unknown", LineType(99).String())
	assert.True(t, BlockLine5.IsBlockLine())
	assert.False(t, Blank.IsBlockLine())
}
