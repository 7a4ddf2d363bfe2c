package paging

import (
	"sort"
	"strings"
)

// Flag marks a shelving condition reported by the catalog for one of a record's items
type Flag string

const (
	FlagInvalid      Flag = "E"
	FlagClosedStacks Flag = "C"
	FlagOversized    Flag = "O"
	FlagShortStories Flag = "S"
	FlagNew          Flag = "N"
)

// FlagSet is an unordered set of flags
type FlagSet map[Flag]struct{}

// Add inserts f, ignoring duplicates
func (s *FlagSet) Add(f Flag) {
	if *s == nil {
		*s = make(FlagSet)
	}
	(*s)[f] = struct{}{}
}

// Has reports whether f is in the set
func (s FlagSet) Has(f Flag) bool {
	_, ok := s[f]
	return ok
}

// String renders the set as a comma-joined list in code order, "" when empty
func (s FlagSet) String() string {
	if len(s) == 0 {
		return ""
	}
	codes := make([]string, 0, len(s))
	for f := range s {
		codes = append(codes, string(f))
	}
	sort.Strings(codes)
	return strings.Join(codes, ",")
}

// Record is one entry of a title paging list
type Record struct {
	Location       string  `json:"location"`
	CallNumber     string  `json:"call_number"`
	BibNumber      string  `json:"bib_number"`
	Title          string  `json:"title"`
	Author         string  `json:"author,omitempty"`
	Publishing     string  `json:"publishing,omitempty"`
	Volume         string  `json:"volume"`
	PickupLocation string  `json:"pickup_location,omitempty"`
	RequestedCount int     `json:"requested_count"`
	AvailableCount int     `json:"available_count"`
	Flags          FlagSet `json:"-"`
}

// Report holds the finalized records of one paging list in finalization order
type Report struct {
	records []*Record
	index   map[string]*Record
}

// NewReport creates an empty report
func NewReport() *Report {
	return &Report{index: make(map[string]*Record)}
}

// add inserts r, or bumps the requested count of the record already holding its bib number.
// Reports whether r was inserted.
func (rep *Report) add(r *Record) bool {
	if existing, ok := rep.index[r.BibNumber]; ok {
		existing.RequestedCount++
		return false
	}
	r.RequestedCount = 1
	rep.index[r.BibNumber] = r
	rep.records = append(rep.records, r)
	return true
}

// Has reports whether a record with the given bib number was finalized
func (rep *Report) Has(bib string) bool {
	_, ok := rep.index[bib]
	return ok
}

// Get returns the record for a bib number
func (rep *Report) Get(bib string) (*Record, bool) {
	r, ok := rep.index[bib]
	return r, ok
}

// Len returns the number of distinct records
func (rep *Report) Len() int {
	return len(rep.records)
}

// Records returns the records in finalization order
func (rep *Report) Records() []*Record {
	out := make([]*Record, len(rep.records))
	copy(out, rep.records)
	return out
}

// SortForOutput orders records by flags, ties broken by call number.
// Two stable passes: call number first, then flags.
func SortForOutput(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CallNumber < records[j].CallNumber
	})
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Flags.String() < records[j].Flags.String()
	})
}
