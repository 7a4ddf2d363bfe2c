package export

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alivesay/squire/internal/itemlist"
	"github.com/alivesay/squire/internal/paging"
)

func sampleRecords() []*paging.Record {
	flagged := &paging.Record{
		Location:       "Central Media New",
		CallNumber:     "100 ABC",
		BibNumber:      "1111111",
		Title:          "Flagged",
		Author:         "Smith, Jane",
		Publishing:     "Press, 2020",
		PickupLocation: "North Hills",
		RequestedCount: 2,
		AvailableCount: 1,
	}
	flagged.Flags.Add(paging.FlagNew)

	plain := &paging.Record{
		Location:       "Central",
		CallNumber:     "900 XYZ",
		BibNumber:      "2222222",
		Title:          "Plain",
		RequestedCount: 1,
	}
	return []*paging.Record{flagged, plain}
}

func TestWriteTitleCSV(t *testing.T) {
	tests := []struct {
		name string
		opts TitleOptions
		want string
	}{
		{
			name: "default columns",
			opts: TitleOptions{},
			want: "# Requested,# Available,Call #,Author,Title,Volume,Bib #,Flags\n" +
				"1,0,900 XYZ,,Plain,,2222222,\n" +
				"2,1,100 ABC,\"Smith, Jane\",Flagged,,1111111,N\n",
		},
		{
			name: "all optional columns",
			opts: TitleOptions{IncludeLocation: true, IncludePublishing: true, IncludePickupLocation: true},
			want: "Location,# Requested,# Available,Call #,Author,Title,Volume,Bib #,Flags,Publishing,Pickup Location\n" +
				"Central,1,0,900 XYZ,,Plain,,2222222,,,\n" +
				"Central Media New,2,1,100 ABC,\"Smith, Jane\",Flagged,,1111111,N,\"Press, 2020\",North Hills\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteTitleCSV(&buf, sampleRecords(), tt.opts))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriteTitleCSVBOM(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTitleCSV(&buf, nil, TitleOptions{WriteBOM: true}))
	assert.True(t, strings.HasPrefix(buf.String(), utf8BOM+"# Requested"))
}

func TestTitleXML(t *testing.T) {
	ts := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	list := NewTitleList(sampleRecords(), TitleMeta{
		Location:      "Central",
		Timestamp:     ts,
		SearchID:      "4",
		SearchBaseURL: "http://catalog:80/search~S4/,?",
	})

	var buf bytes.Buffer
	require.NoError(t, WriteXML(&buf, list))
	assert.Contains(t, buf.String(), `<paging_list location="Central" timestamp="2026-10-19 06:00:00.000000" search_id="4" count="2" search_baseurl="http://catalog:80/search~S4/,?">`)

	var decoded TitleList
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Records, 2)
	assert.Equal(t, "Plain", decoded.Records[0].Title)
	assert.Equal(t, "N", decoded.Records[1].Flags)
	assert.Equal(t, 2, decoded.Records[1].RequestedCount)
}

func TestGuessLocation(t *testing.T) {
	records := []*paging.Record{{Location: "North Hills Media"}}

	assert.Equal(t, "North Hills", GuessLocation(records, []string{"North", "North Hills", "Central"}))
	assert.Equal(t, "North Hills Media", GuessLocation(records, []string{"Central"}))
	assert.Equal(t, "", GuessLocation(nil, []string{"Central"}))
}

func TestScopeID(t *testing.T) {
	scopes := map[string]string{
		"Entire Collection": "1",
		"St. Johns":         "9",
	}
	assert.Equal(t, "9", ScopeID("St Johns", scopes))
	assert.Equal(t, "", ScopeID("Central", scopes))
}

func TestItemOutputs(t *testing.T) {
	items := []itemlist.Item{
		{Location: "Central", CallNumber: "641.5 ADA", Author: "Adams, Ann", Title: "Cooking", Barcode: "1234"},
	}

	var csvBuf bytes.Buffer
	require.NoError(t, WriteItemCSV(&csvBuf, items, false))
	assert.Equal(t, "Location,Call #,Author,Title,Barcode\nCentral,641.5 ADA,\"Adams, Ann\",Cooking,1234\n", csvBuf.String())

	list := NewItemList(items, "North_Hills", time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC))
	var xmlBuf bytes.Buffer
	require.NoError(t, WriteXML(&xmlBuf, list))
	assert.Contains(t, xmlBuf.String(), `<paging_list location="North Hills" timestamp="2026-10-19 06:00:00.000000" count="1">`)
	assert.Contains(t, xmlBuf.String(), "<barcode>1234</barcode>")
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "CentralTitle_2026-10-19.csv")
	err := WriteFile(path, func(w io.Writer) error {
		return WriteTitleCSV(w, sampleRecords(), TitleOptions{})
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Requested"))
}

func TestWriteTitleParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "titles.parquet")
	require.NoError(t, WriteTitleParquet(path, sampleRecords()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)

	rows, err := parquet.Read[TitleRow](f, info.Size())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2222222", rows[0].BibNumber)
	assert.Equal(t, int64(2), rows[1].RequestedCount)
	assert.Equal(t, "N", rows[1].Flags)

	assert.Error(t, WriteTitleParquet("", nil))
}
