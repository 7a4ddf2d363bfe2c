package paging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alivesay/squire/internal/catalog"
)

// ItemSource returns the current items attached to a bib record
type ItemSource interface {
	FetchItems(ctx context.Context, bibNumber string) ([]catalog.Item, error)
}

// AvailabilityEnricher derives availability counts and shelving flags from the catalog
type AvailabilityEnricher struct {
	Source ItemSource

	// LocationFilter, when set, keeps only items whose location contains it.
	LocationFilter string
	// FilterByRecordLocation uses the record's own location as the filter when
	// LocationFilter is empty.
	FilterByRecordLocation bool
	// FavorLiveData overwrites location and call number from available items.
	FavorLiveData bool
}

// Enrich never fails: catalog errors are logged and leave the record without flags
func (e *AvailabilityEnricher) Enrich(ctx context.Context, r *Record) {
	r.Flags = nil
	r.AvailableCount = 0

	if r.BibNumber == ErrorValue {
		r.Flags.Add(FlagInvalid)
		return
	}

	items, err := e.Source.FetchItems(ctx, r.BibNumber)
	if err != nil {
		slog.Warn("Failed to fetch catalog items", "bib", r.BibNumber, "error", err)
		return
	}

	filter := strings.ToUpper(e.LocationFilter)
	if filter == "" && e.FilterByRecordLocation && r.Location != ErrorValue {
		filter = strings.ToUpper(r.Location)
	}

	var flags FlagSet
	available := 0
	for _, item := range items {
		loc := strings.ToUpper(item.Location)
		if filter != "" && !strings.Contains(loc, filter) {
			continue
		}

		if item.Availability != "AVAILABLE" && strings.ToUpper(item.Availability) != "RECENTLY RETURNED" {
			continue
		}

		if e.FavorLiveData {
			r.Location = item.Location
			r.CallNumber = item.CallNumber
		}
		if item.Availability == "AVAILABLE" {
			available++
		}
		if f, ok := LocationFlag(loc); ok {
			flags.Add(f)
		}
	}

	r.Flags = flags
	r.AvailableCount = available
}

// LocationFlag picks the single flag an item location earns, by priority
func LocationFlag(location string) (Flag, bool) {
	loc := strings.ToUpper(location)
	switch {
	case strings.HasSuffix(loc, "NEW"):
		return FlagNew, true
	case strings.Contains(loc, "CLOSED STACK"):
		return FlagClosedStacks, true
	case strings.Contains(loc, "OVERSIZE"):
		return FlagOversized, true
	case strings.Contains(loc, "SHORT STOR"):
		return FlagShortStories, true
	}
	return "", false
}
