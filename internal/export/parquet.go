package export

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/alivesay/squire/internal/paging"
)

// TitleRow is the Parquet schema of a title list, one row per record
type TitleRow struct {
	Location       string `parquet:"location"`
	CallNumber     string `parquet:"call_number"`
	BibNumber      string `parquet:"bib_number"`
	Title          string `parquet:"title"`
	Author         string `parquet:"author"`
	Publishing     string `parquet:"publishing"`
	Volume         string `parquet:"volume"`
	PickupLocation string `parquet:"pickup_location"`
	RequestedCount int64  `parquet:"requested_count"`
	AvailableCount int64  `parquet:"available_count"`
	Flags          string `parquet:"flags"`
}

// WriteTitleParquet writes records in output order to path
func WriteTitleParquet(path string, records []*paging.Record) error {
	if path == "" {
		return fmt.Errorf("parquet output requires a file path")
	}

	rows := make([]TitleRow, 0, len(records))
	for _, r := range sorted(records) {
		rows = append(rows, TitleRow{
			Location:       r.Location,
			CallNumber:     r.CallNumber,
			BibNumber:      r.BibNumber,
			Title:          r.Title,
			Author:         r.Author,
			Publishing:     r.Publishing,
			Volume:         r.Volume,
			PickupLocation: r.PickupLocation,
			RequestedCount: int64(r.RequestedCount),
			AvailableCount: int64(r.AvailableCount),
			Flags:          r.Flags.String(),
		})
	}

	return WriteFile(path, func(w io.Writer) error {
		if err := parquet.Write(w, rows); err != nil {
			return fmt.Errorf("failed to encode parquet: %w", err)
		}
		return nil
	})
}
