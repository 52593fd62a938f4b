package cmd

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamancini/firmup/internal/output"
)

func newPlanCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "plan <device-path>",
		Short: "Show what an update would write without changing the device",
		Long: `Plan downloads the release manifest and lists the components that differ
from the ones recorded on the device. Nothing is written to the device.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeDevicePath,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), args[0], force, os.Stdout)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Plan even if the device model is not supported")

	return cmd
}

func runPlan(ctx context.Context, devicePath string, force bool, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dev, err := openDevice(devicePath, cfg)
	if err != nil {
		return err
	}

	u, _, err := newUpdater(dev, cfg, force)
	if err != nil {
		return err
	}

	prep, err := u.Prepare(ctx)
	if err != nil {
		return err
	}

	if format.Structured() {
		return output.NewWriter(stdout, format).Write(prep)
	}

	console := output.NewConsole(stdout, output.WithQuiet(quiet), output.WithVerbose(verbose))
	console.Preparation(prep)
	if !verbose && !quiet {
		console.Checks(prep.Plan.Checks)
	}
	console.Plan(prep.Plan)
	return nil
}
