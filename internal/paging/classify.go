package paging

import (
	"regexp"
	"strings"
	"unicode"
)

// LineType is the role a physical line plays in a title paging list
type LineType int

const (
	Invalid LineType = iota
	Caption
	Timestamp
	Blank
	BlockLine1 // LOCATION CALL_NUMBER .bBIB_NUMBER
	BlockLine2 // TITLE / AUTHOR.
	BlockLine3 // PUBLISHER, YEAR. or VOLUME
	BlockLine4 // PICKUP_LOCATION, or PUBLISHER when a volume line is present
	BlockLine5 // PICKUP_LOCATION when a volume line is present
	PageMark
)

var lineTypeNames = map[LineType]string{
	Invalid:    "invalid",
	Caption:    "caption",
	Timestamp:  "timestamp",
	Blank:      "blank",
	BlockLine1: "block-line-1",
	BlockLine2: "block-line-2",
	BlockLine3: "block-line-3",
	BlockLine4: "block-line-4",
	BlockLine5: "block-line-5",
	PageMark:   "page-mark",
}

func (t LineType) String() string {
	if name, ok := lineTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsBlockLine reports whether t is one of the record block lines
func (t LineType) IsBlockLine() bool {
	return t >= BlockLine1 && t <= BlockLine5
}

var pageMarkPattern = regexp.MustCompile(`^Page\s\d+$`)

// Transitions keyed by the previous line type. Anything missing classifies as Invalid.
var (
	blankTransitions = map[LineType]LineType{
		BlockLine2: BlockLine3,
	}
	indentedTransitions = map[LineType]LineType{
		BlockLine1: BlockLine2,
		Caption:    Timestamp,
		PageMark:   Caption,
	}
	contentTransitions = map[LineType]LineType{
		Blank:      BlockLine1,
		BlockLine1: BlockLine2,
		BlockLine2: BlockLine3,
		BlockLine3: BlockLine4,
		BlockLine4: BlockLine5,
	}
)

// Classify determines the type of line given the type of the line before it.
// It depends on nothing but its arguments.
func Classify(line string, prev LineType) LineType {
	line = strings.TrimRight(line, "\r\n")

	switch {
	case isBlank(line):
		// an empty third line is the publishing slot of a block
		if next, ok := blankTransitions[prev]; ok {
			return next
		}
		return Blank
	case isIndented(line):
		return indentedTransitions[prev]
	case isPageMark(line):
		return PageMark
	default:
		return contentTransitions[prev]
	}
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func isIndented(line string) bool {
	return line != "" && unicode.IsSpace(rune(line[0]))
}

func isPageMark(line string) bool {
	return pageMarkPattern.MatchString(line)
}
