// Package itemlist parses Millennium item paging lists: one labelled notice per
// physical item that a branch has to pull.
package itemlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// TransitHeader opens a notice for an item that must be sent to another branch
const TransitHeader = "Please pull this item and check it in to place in transit:"

// Item is one notice of an item paging list
type Item struct {
	Author     string `json:"author"`
	Title      string `json:"title"`
	Imprint    string `json:"imprint,omitempty"`
	PubDate    string `json:"pub_date,omitempty"`
	Desc       string `json:"desc,omitempty"`
	CallNumber string `json:"call_number"`
	Volume     string `json:"volume,omitempty"`
	Barcode    string `json:"barcode"`
	Status     string `json:"status,omitempty"`
	RecNo      string `json:"rec_no,omitempty"`
	Location   string `json:"location"`
	PickupAt   string `json:"pickup_at,omitempty"`
	OpacMsg    string `json:"opac_msg,omitempty"`
}

type field int

const (
	fieldNone field = iota
	fieldAuthor
	fieldTitle
	fieldImprint
	fieldPubDate
	fieldDesc
	fieldCallNumber
	fieldVolume
	fieldBarcode
	fieldStatus
	fieldRecNo
	fieldLocation
	fieldPickupAt
	fieldOpacMsg
)

var labels = []struct {
	label string
	field field
}{
	{"AUTHOR:", fieldAuthor},
	{"TITLE:", fieldTitle},
	{"IMPRINT:", fieldImprint},
	{"PUB DATE:", fieldPubDate},
	{"DESC:", fieldDesc},
	{"CALL NO:", fieldCallNumber},
	{"VOLUME:", fieldVolume},
	{"BARCODE:", fieldBarcode},
	{"STATUS:", fieldStatus},
	{"REC NO:", fieldRecNo},
	{"LOCATION:", fieldLocation},
	{"PICKUP AT:", fieldPickupAt},
	{"OPACMSG:", fieldOpacMsg},
}

func (it *Item) slot(f field) *string {
	switch f {
	case fieldAuthor:
		return &it.Author
	case fieldTitle:
		return &it.Title
	case fieldImprint:
		return &it.Imprint
	case fieldPubDate:
		return &it.PubDate
	case fieldDesc:
		return &it.Desc
	case fieldCallNumber:
		return &it.CallNumber
	case fieldVolume:
		return &it.Volume
	case fieldBarcode:
		return &it.Barcode
	case fieldStatus:
		return &it.Status
	case fieldRecNo:
		return &it.RecNo
	case fieldLocation:
		return &it.Location
	case fieldPickupAt:
		return &it.PickupAt
	case fieldOpacMsg:
		return &it.OpacMsg
	}
	return nil
}

// ParseFile parses the item paging list at path
func ParseFile(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open item list: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads every notice in r. Lines before the first notice are ignored and
// unlabelled lines continue the field above them. Items are sorted by call number.
func Parse(r io.Reader) ([]Item, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		items   []Item
		current *Item
		last    = fieldNone
		opened  bool // current was opened by a transit header and has no fields yet
	)

	flush := func() {
		if current != nil {
			current.Barcode = FormatBarcode(current.Barcode)
			items = append(items, *current)
		}
		current = nil
		last = fieldNone
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if rest, ok := strings.CutPrefix(line, TransitHeader); ok {
			flush()
			current = &Item{}
			opened = true
			line = strings.TrimSpace(rest)
			if line == "" {
				continue
			}
			if !strings.HasPrefix(line, "AUTHOR:") {
				current.Author = line
				last = fieldAuthor
				opened = false
				continue
			}
		}

		f, value := splitLabel(line)
		if f == fieldAuthor && !opened {
			flush()
			current = &Item{}
		}
		if current == nil {
			continue
		}
		opened = false

		if f == fieldNone {
			if slot := current.slot(last); slot != nil {
				*slot = strings.TrimSpace(*slot + " " + value)
			}
			continue
		}

		*current.slot(f) = value
		last = f
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read item list: %w", err)
	}
	flush()

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CallNumber < items[j].CallNumber
	})
	return items, nil
}

func splitLabel(line string) (field, string) {
	for _, l := range labels {
		if rest, ok := strings.CutPrefix(line, l.label); ok {
			return l.field, strings.TrimSpace(rest)
		}
	}
	return fieldNone, line
}

// FormatBarcode groups long barcodes as "1 2345 67890 1234" for easier reading
func FormatBarcode(barcode string) string {
	barcode = strings.TrimSpace(barcode)
	if len(barcode) <= 13 {
		return barcode
	}
	return fmt.Sprintf("%s %s %s %s", barcode[:1], barcode[1:5], barcode[5:10], barcode[10:])
}
