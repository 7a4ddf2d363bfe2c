package export

import (
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alivesay/squire/internal/itemlist"
)

var itemHeaders = []string{"Location", "Call #", "Author", "Title", "Barcode"}

// WriteItemCSV writes items in the order given, which itemlist already sorts by call number
func WriteItemCSV(w io.Writer, items []itemlist.Item, writeBOM bool) error {
	if writeBOM {
		if _, err := io.WriteString(w, utf8BOM); err != nil {
			return fmt.Errorf("failed to write csv: %w", err)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(itemHeaders); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, it := range items {
		if err := cw.Write([]string{it.Location, it.CallNumber, it.Author, it.Title, it.Barcode}); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ItemList is the XML document consumed by the item stylesheet
type ItemList struct {
	XMLName   xml.Name     `xml:"paging_list"`
	Location  string       `xml:"location,attr"`
	Timestamp string       `xml:"timestamp,attr"`
	Count     int          `xml:"count,attr"`
	Records   []itemRecord `xml:"record"`
}

type itemRecord struct {
	Location   string `xml:"location"`
	CallNumber string `xml:"call_number"`
	Author     string `xml:"author"`
	Title      string `xml:"title"`
	Barcode    string `xml:"barcode"`
}

// NewItemList builds the XML document for a branch, named from the file basename
func NewItemList(items []itemlist.Item, basename string, ts time.Time) *ItemList {
	list := &ItemList{
		Location:  strings.ReplaceAll(basename, "_", " "),
		Timestamp: ts.Format(TimestampLayout),
		Count:     len(items),
	}
	for _, it := range items {
		list.Records = append(list.Records, itemRecord{
			Location:   it.Location,
			CallNumber: it.CallNumber,
			Author:     it.Author,
			Title:      it.Title,
			Barcode:    it.Barcode,
		})
	}
	return list
}
