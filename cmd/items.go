package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alivesay/squire/internal/export"
	"github.com/alivesay/squire/internal/itemlist"
)

func newItemsCmd(a *app) *cobra.Command {
	var (
		file    string
		csv     bool
		csvPath string
		xml     bool
		xmlPath string
	)

	cmd := &cobra.Command{
		Use:   "items",
		Short: "Convert an item paging list",
		Long: `Parses a Millennium item paging list (in-transit notices) and writes it as
CSV and/or XML, sorted by call number. The branch name is taken from the
file name, as in North_Hills.itemlist.t261019.auton.`,
		Example: `  squire items --file North_Hills.itemlist.t261019.auton --csv --xml --output-file-xml items.xml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			writeCSV := csv || csvPath != ""
			writeXML := xml || xmlPath != ""
			if !writeCSV && !writeXML {
				return errors.New("nothing to write: pass --csv or --xml")
			}

			items, err := itemlist.ParseFile(file)
			if err != nil {
				return err
			}
			slog.Info("Item paging list parsed", "file", file, "items", len(items))

			if writeCSV {
				if err := export.WriteFile(csvPath, func(w io.Writer) error {
					return export.WriteItemCSV(w, items, a.cfg.Output.WriteBOM)
				}); err != nil {
					return fmt.Errorf("failed to write item CSV: %w", err)
				}
			}
			if writeXML {
				basename, _, _ := strings.Cut(filepath.Base(file), ".")
				if err := export.WriteFile(xmlPath, func(w io.Writer) error {
					return export.WriteXML(w, export.NewItemList(items, basename, time.Now()))
				}); err != nil {
					return fmt.Errorf("failed to write item XML: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Item paging list to parse")
	cmd.Flags().BoolVar(&csv, "csv", false, "Write CSV")
	cmd.Flags().StringVar(&csvPath, "output-file-csv", "", "CSV output file")
	cmd.Flags().BoolVar(&xml, "xml", false, "Write XML")
	cmd.Flags().StringVar(&xmlPath, "output-file-xml", "", "XML output file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
