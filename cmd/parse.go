package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/alivesay/squire/internal/catalog"
	"github.com/alivesay/squire/internal/config"
	"github.com/alivesay/squire/internal/export"
	"github.com/alivesay/squire/internal/paging"
)

type parseOptions struct {
	file        string
	csv         bool
	csvPath     string
	xml         bool
	xmlPath     string
	parquet     bool
	parquetPath string
}

func newParseCmd(a *app) *cobra.Command {
	var opts parseOptions

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Convert a title paging list",
		Long: `Parses a Millennium title paging list, looks up live availability for each
title in the WebPAC and writes the result as CSV, XML and/or Parquet.

CSV and XML go to stdout when no output file is given.`,
		Example: `  # CSV to stdout
  squire parse --file North_Hills.paginglist.t261019.auton --csv

  # Both formats to files, as the daemon runs it
  squire parse --file list.auton --csv --output-file-csv out.csv --xml --output-file-xml out.xml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd.Context(), a.cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Title paging list to parse")
	cmd.Flags().BoolVar(&opts.csv, "csv", false, "Write CSV")
	cmd.Flags().StringVar(&opts.csvPath, "output-file-csv", "", "CSV output file")
	cmd.Flags().BoolVar(&opts.xml, "xml", false, "Write XML")
	cmd.Flags().StringVar(&opts.xmlPath, "output-file-xml", "", "XML output file")
	cmd.Flags().BoolVar(&opts.parquet, "parquet", false, "Write Parquet")
	cmd.Flags().StringVar(&opts.parquetPath, "output-file-parquet", "", "Parquet output file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runParse(ctx context.Context, cfg *config.Config, opts parseOptions) error {
	writeCSV := opts.csv || opts.csvPath != ""
	writeXML := opts.xml || opts.xmlPath != ""
	writeParquet := opts.parquet || opts.parquetPath != ""
	if writeParquet && opts.parquetPath == "" {
		return errors.New("--parquet requires --output-file-parquet")
	}
	if !writeCSV && !writeXML && !writeParquet {
		return errors.New("nothing to write: pass --csv, --xml or --parquet")
	}

	branches, sublocations, err := cfg.Locations.Names()
	if err != nil {
		return fmt.Errorf("failed to load location names: %w", err)
	}
	matcher := paging.NewMatcher(paging.Locations{
		Branches:     branches,
		Sublocations: sublocations,
		Suffixes:     cfg.Locations.Suffixes,
	})

	client := newCatalogClient(cfg.Catalog)
	enricher := &paging.AvailabilityEnricher{
		Source:                 client,
		LocationFilter:         cfg.Catalog.LocationFilter,
		FilterByRecordLocation: cfg.Catalog.FilterByRecordLocation,
		FavorLiveData:          cfg.Catalog.FavorLiveData,
	}

	started := time.Now()
	report, err := paging.NewLoader(matcher, enricher).LoadFile(ctx, opts.file)
	if err != nil {
		return err
	}
	records := report.Records()
	slog.Info("Title paging list parsed", "file", opts.file, "records", len(records), "duration", time.Since(started))

	if writeCSV {
		titleOpts := export.TitleOptions{
			IncludeLocation:       cfg.Output.IncludeLocation,
			IncludePublishing:     cfg.Output.IncludePublishing,
			IncludePickupLocation: cfg.Output.IncludePickupLocation,
			WriteBOM:              cfg.Output.WriteBOM,
		}
		if err := export.WriteFile(opts.csvPath, func(w io.Writer) error {
			return export.WriteTitleCSV(w, records, titleOpts)
		}); err != nil {
			return fmt.Errorf("failed to write title CSV: %w", err)
		}
	}

	if writeXML {
		meta := titleMeta(ctx, client, records, branches)
		if err := export.WriteFile(opts.xmlPath, func(w io.Writer) error {
			return export.WriteXML(w, export.NewTitleList(records, meta))
		}); err != nil {
			return fmt.Errorf("failed to write title XML: %w", err)
		}
	}

	if writeParquet {
		if err := export.WriteTitleParquet(opts.parquetPath, records); err != nil {
			return fmt.Errorf("failed to write title Parquet: %w", err)
		}
	}

	return nil
}

func newCatalogClient(cc config.CatalogConfig) *catalog.Client {
	return catalog.NewClient(cc.Host, cc.Port, cc.Timeout, cc.RequestsPerSecond)
}

// titleMeta names the list's branch and the WebPAC scope its links search.
// A scope lookup failure leaves the search id empty.
func titleMeta(ctx context.Context, client *catalog.Client, records []*paging.Record, branches []string) export.TitleMeta {
	location := export.GuessLocation(records, branches)

	var searchID string
	scopes, err := client.FetchSearchScopes(ctx)
	if err != nil {
		slog.Warn("Search scopes unavailable", "location", location, "error", err)
	} else {
		searchID = export.ScopeID(location, scopes)
		if searchID == "" {
			slog.Warn("Location not found in search scopes", "location", location)
		}
	}

	return export.TitleMeta{
		Location:      location,
		Timestamp:     time.Now(),
		SearchID:      searchID,
		SearchBaseURL: client.SearchBaseURL(searchID),
	}
}
