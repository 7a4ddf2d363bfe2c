package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alivesay/squire/internal/config"
	"github.com/alivesay/squire/internal/daemon"
	"github.com/alivesay/squire/internal/ledger"
	"github.com/alivesay/squire/internal/notify"
	"github.com/alivesay/squire/internal/pidfile"
	"github.com/alivesay/squire/internal/publish"
	"github.com/alivesay/squire/internal/stats"
	"github.com/alivesay/squire/internal/supervise"
	"github.com/alivesay/squire/internal/watch"
)

func newDaemonCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Watch the drop directory and deliver paging lists",
		Long: `Watches the Millennium auto-notices directory for today's title and item
paging lists. Each title list is archived and parsed in a child process; once
it finishes it is paired with the branch's item list (or published alone after
the item list timeout), rendered to HTML, linked under the lists directory and
mailed to the branch.

Only one daemon may hold the pid file at a time.`,
		Example: `  # Run with the system configuration
  squire daemon

  # Run against a test drop box
  SQUIRE_DAEMON_DROP_DIR=/tmp/drop squire daemon --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg

			pid, err := pidfile.Acquire(cfg.Daemon.PidFile)
			if err != nil {
				return fmt.Errorf("failed to acquire pid file: %w", err)
			}
			defer func() {
				if err := pid.Release(); err != nil {
					slog.Error("Failed to release pid file", "err", err)
				}
			}()

			launcher, err := supervise.NewExecLauncher(cfg.Daemon.ParseCommand, a.configPath)
			if err != nil {
				return err
			}

			runs, err := ledger.Open(cfg.Ledger.Path)
			if err != nil {
				return err
			}
			defer runs.Close()

			publisher, cleanup, err := newPublisher(cfg, runs)
			if err != nil {
				return err
			}
			defer cleanup()

			// closed by the correlator on shutdown
			watcher, err := watch.New(cfg.Daemon.DropDir)
			if err != nil {
				return fmt.Errorf("failed to watch drop directory: %w", err)
			}

			correlator := daemon.New(daemon.Options{
				DropDir:         cfg.Daemon.DropDir,
				ArchiveDir:      cfg.Daemon.ArchiveDir,
				OutputDir:       cfg.Output.Dir,
				TitleExt:        cfg.Daemon.TitleExt,
				ItemExt:         cfg.Daemon.ItemExt,
				IgnoreDotfiles:  cfg.Daemon.IgnoreDotfiles,
				TimestampFormat: cfg.Output.TimestampFormat,
				TimestampActive: cfg.Output.TimestampActive,
				WriteBOM:        cfg.Output.WriteBOM,
				ItemListTimeout: cfg.Daemon.ItemListTimeout,
				StaleAfter:      cfg.Daemon.StaleAfter,
				PollInterval:    cfg.Daemon.PollInterval,
			}, watcher, launcher, publisher, runs)

			slog.Info("squired started", "pid_file", cfg.Daemon.PidFile, "archive", cfg.Daemon.ArchiveDir, "output", cfg.Output.Dir)
			return correlator.Run(cmd.Context())
		},
	}

	return cmd
}

// newPublisher wires post-processing from config. Statistics and mail are
// left out when disabled.
func newPublisher(cfg *config.Config, runs *ledger.Ledger) (*publish.Publisher, func(), error) {
	p := &publish.Publisher{
		ListsDir:        cfg.Publish.ListsDir,
		ListsURL:        cfg.Publish.ListsURL,
		TitleStylesheet: cfg.Publish.TitleStylesheet,
		ItemStylesheet:  cfg.Publish.ItemStylesheet,
		From:            cfg.Mail.From,
		HelpDeskEmail:   cfg.Mail.HelpDeskEmail,
		HelpDeskPhone:   cfg.Mail.HelpDeskPhone,
		Renderer:        publish.XSLTProc{Path: cfg.Publish.XSLTProc},
		Ledger:          runs,
	}
	cleanup := func() {}

	if cfg.Mail.Enabled {
		recipients, err := notify.LoadRecipients(cfg.Mail.RecipientsFile)
		if err != nil {
			return nil, nil, err
		}
		p.Recipients = recipients
		p.Mailer = notify.NewMailer(cfg.Mail.Host, cfg.Mail.Port)
	}

	if cfg.Stats.Enabled {
		recorder := stats.NewRecorder(cfg.Stats.Addr, cfg.Stats.DB, cfg.Stats.Key)
		p.Stats = recorder
		cleanup = func() {
			if err := recorder.Close(); err != nil {
				slog.Error("Failed to close stats connection", "err", err)
			}
		}
	}

	return p, cleanup, nil
}
