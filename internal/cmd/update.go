package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamancini/firmup/internal/backup"
	"github.com/adamancini/firmup/internal/interactive"
	"github.com/adamancini/firmup/internal/logging"
	"github.com/adamancini/firmup/internal/output"
	"github.com/adamancini/firmup/internal/plan"
	"github.com/adamancini/firmup/internal/update"
)

type updateOptions struct {
	devicePath string
	force      bool
	yes        bool
	noBackup   bool
}

func newUpdateCmd() *cobra.Command {
	var opts updateOptions

	cmd := &cobra.Command{
		Use:   "update <device-path>",
		Short: "Update the firmware components on a device",
		Long: `Update compares the components recorded on the device with the latest
release, lists the files that will be written and asks for confirmation
before writing them.

Every file is downloaded in full and its size checked against the release
before it is written. The first failure stops the update; files already
written stay written. Unless disabled, the files being replaced are backed
up first and can be put back with 'firmup backup restore'.

Updating firmware can brick your device. You do this at your own risk.

Examples:
  firmup update /media/RIDER
  firmup update /media/RIDER --yes
  firmup update /media/RIDER --force    # allow an unsupported model`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeDevicePath,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.devicePath = args[0]
			return runUpdate(cmd.Context(), opts, os.Stdin, os.Stdout, os.Stderr)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Update even if the device model is not supported")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&opts.noBackup, "no-backup", false, "Do not back up the files being replaced")

	return cmd
}

func runUpdate(ctx context.Context, opts updateOptions, stdin io.Reader, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.New("cmd")

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dev, err := openDevice(opts.devicePath, cfg)
	if err != nil {
		return err
	}

	u, fetcher, err := newUpdater(dev, cfg, opts.force)
	if err != nil {
		return err
	}

	consoleOut := consoleWriter(format, stdout, stderr)
	console := output.NewConsole(consoleOut,
		output.WithQuiet(quiet),
		output.WithVerbose(verbose),
		output.WithDestination(dev.Path),
	)

	prep, err := u.Prepare(ctx)
	if err != nil {
		return err
	}
	console.Preparation(prep)

	var confirmer update.Confirmer
	if opts.yes {
		confirmer = update.ConfirmFunc(func(p *plan.Plan) bool {
			console.Plan(p)
			return true
		})
	} else {
		if !prep.Plan.NoUpdateNeeded() && !stdinIsTerminal(stdin) {
			return errNotTerminal
		}
		confirmer = interactive.NewPrompterWithIO(stdin, consoleOut)
	}

	var persister update.Persister = dev
	var guard *backup.Guard
	var manager *backup.Manager
	if cfg.Backup.Enabled && !opts.noBackup {
		manager, err = newBackupManager(cfg)
		if err != nil {
			return err
		}
		guard = manager.Guard(dev, dev.Root(), prep.Model, "before firmup update")
		persister = guard
	}

	executor := update.NewExecutor(fetcher, confirmer, persister, update.WithObserver(console))
	summary, runErr := executor.Run(ctx, prep.Model, prep.Plan)

	if guard != nil && guard.Backup() != nil {
		b := guard.Backup()
		console.Infof("replaced files backed up as %s (restore with 'firmup backup restore %s %s')", b.ID, b.ID, dev.Root())
		if cfg.Backup.Keep > 0 {
			if _, err := manager.Prune(cfg.Backup.Keep); err != nil {
				log.WithError(err).Warn("failed to prune old backups")
			}
		}
	}

	console.Summary(summary)

	if format.Structured() {
		if err := output.NewWriter(stdout, format).Write(summary); err != nil {
			return err
		}
	}

	if runErr != nil {
		return fmt.Errorf("update aborted: %w", runErr)
	}
	return nil
}
