package export

import (
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alivesay/squire/internal/paging"
)

// TitleOptions toggles the optional title list columns
type TitleOptions struct {
	IncludeLocation       bool
	IncludePublishing     bool
	IncludePickupLocation bool
	WriteBOM              bool
}

type column struct {
	header string
	value  func(*paging.Record) string
}

var (
	locationColumn = column{"Location", func(r *paging.Record) string { return r.Location }}
	baseColumns    = []column{
		{"# Requested", func(r *paging.Record) string { return strconv.Itoa(r.RequestedCount) }},
		{"# Available", func(r *paging.Record) string { return strconv.Itoa(r.AvailableCount) }},
		{"Call #", func(r *paging.Record) string { return r.CallNumber }},
		{"Author", func(r *paging.Record) string { return r.Author }},
		{"Title", func(r *paging.Record) string { return r.Title }},
		{"Volume", func(r *paging.Record) string { return r.Volume }},
		{"Bib #", func(r *paging.Record) string { return r.BibNumber }},
		{"Flags", func(r *paging.Record) string { return r.Flags.String() }},
	}
	publishingColumn = column{"Publishing", func(r *paging.Record) string { return r.Publishing }}
	pickupColumn     = column{"Pickup Location", func(r *paging.Record) string { return r.PickupLocation }}
)

func (o TitleOptions) columns() []column {
	var cols []column
	if o.IncludeLocation {
		cols = append(cols, locationColumn)
	}
	cols = append(cols, baseColumns...)
	if o.IncludePublishing {
		cols = append(cols, publishingColumn)
	}
	if o.IncludePickupLocation {
		cols = append(cols, pickupColumn)
	}
	return cols
}

// sorted returns a copy of records in output order
func sorted(records []*paging.Record) []*paging.Record {
	out := make([]*paging.Record, len(records))
	copy(out, records)
	paging.SortForOutput(out)
	return out
}

// WriteTitleCSV writes a header row and one row per record
func WriteTitleCSV(w io.Writer, records []*paging.Record, opts TitleOptions) error {
	if opts.WriteBOM {
		if _, err := io.WriteString(w, utf8BOM); err != nil {
			return fmt.Errorf("failed to write csv: %w", err)
		}
	}

	cols := opts.columns()
	cw := csv.NewWriter(w)

	row := make([]string, len(cols))
	for i, c := range cols {
		row[i] = c.header
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, r := range sorted(records) {
		for i, c := range cols {
			row[i] = c.value(r)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// TitleList is the XML document consumed by the title stylesheet
type TitleList struct {
	XMLName       xml.Name      `xml:"paging_list"`
	Location      string        `xml:"location,attr"`
	Timestamp     string        `xml:"timestamp,attr"`
	SearchID      string        `xml:"search_id,attr"`
	Count         int           `xml:"count,attr"`
	SearchBaseURL string        `xml:"search_baseurl,attr"`
	Records       []titleRecord `xml:"record"`
}

type titleRecord struct {
	Location       string `xml:"location"`
	CallNumber     string `xml:"call_number"`
	BibNumber      string `xml:"bib_number"`
	Title          string `xml:"title"`
	Author         string `xml:"author"`
	Publishing     string `xml:"publishing"`
	Volume         string `xml:"volume"`
	PickupLocation string `xml:"pickup_location"`
	RequestedCount int    `xml:"requested_count"`
	AvailableCount int    `xml:"available_count"`
	Flags          string `xml:"flags"`
}

// TitleMeta describes the list as a whole
type TitleMeta struct {
	Location      string
	Timestamp     time.Time
	SearchID      string
	SearchBaseURL string
}

// NewTitleList builds the XML document for records in output order
func NewTitleList(records []*paging.Record, meta TitleMeta) *TitleList {
	list := &TitleList{
		Location:      meta.Location,
		Timestamp:     meta.Timestamp.Format(TimestampLayout),
		SearchID:      meta.SearchID,
		Count:         len(records),
		SearchBaseURL: meta.SearchBaseURL,
	}

	for _, r := range sorted(records) {
		list.Records = append(list.Records, titleRecord{
			Location:       strings.TrimSpace(r.Location),
			CallNumber:     strings.TrimSpace(r.CallNumber),
			BibNumber:      r.BibNumber,
			Title:          strings.TrimSpace(r.Title),
			Author:         strings.TrimSpace(r.Author),
			Publishing:     strings.TrimSpace(r.Publishing),
			Volume:         strings.TrimSpace(r.Volume),
			PickupLocation: strings.TrimSpace(r.PickupLocation),
			RequestedCount: r.RequestedCount,
			AvailableCount: r.AvailableCount,
			Flags:          r.Flags.String(),
		})
	}
	return list
}

// WriteXML writes any list document with an XML declaration
func WriteXML(w io.Writer, doc any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write xml: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "   ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode xml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode xml: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// GuessLocation names the branch a list belongs to: the first record's location
// cut down to the longest configured branch it starts with.
func GuessLocation(records []*paging.Record, branches []string) string {
	if len(records) == 0 {
		return ""
	}
	location := records[0].Location

	candidates := append([]string(nil), branches...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})
	for _, b := range candidates {
		if b != "" && strings.HasPrefix(location, b) {
			return b
		}
	}
	return location
}

// ScopeID finds the search scope whose display name matches location, ignoring spaces and dots
func ScopeID(location string, scopes map[string]string) string {
	want := normalizeName(location)
	for name, id := range scopes {
		if normalizeName(name) == want {
			return id
		}
	}
	return ""
}
