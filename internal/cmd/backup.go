package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adamancini/firmup/internal/backup"
	"github.com/adamancini/firmup/internal/interactive"
	"github.com/adamancini/firmup/internal/manifest"
	"github.com/adamancini/firmup/internal/output"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage backups of replaced device files",
		Long: `Before 'firmup update' overwrites a file on the device it saves the current
copy on this computer. Each update run produces one backup.

Backups are stored in ~/.cache/firmup/backups/ unless backup.dir is set in
the config file. Use 'firmup backup restore' to put the saved files back.`,
	}

	cmd.AddCommand(newBackupListCmd())
	cmd.AddCommand(newBackupShowCmd())
	cmd.AddCommand(newBackupRestoreCmd())
	cmd.AddCommand(newBackupDeleteCmd())
	cmd.AddCommand(newBackupPruneCmd())

	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all backups",
		Long:  `List displays all available backups with their creation time, model, notes, and size.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupList(os.Stdout)
		},
	}
}

func newBackupShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the files saved in a backup",
		Long:  `Show lists the files saved in a backup. Use 'latest' as the ID for the most recent backup.`,
		Args:  cobra.ExactArgs(1),

		ValidArgsFunction: completeBackupID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupShow(args[0], os.Stdout)
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "restore <id> <device-path>",
		Short: "Write the files of a backup back to a device",
		Long: `Restore writes every file saved in a backup back to the device.

Use 'latest' as the ID to restore the most recent backup. Files that the
update created, rather than replaced, are left on the device.

The model recorded in the backup must match the device.`,
		Args: cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return completeBackupID(cmd, args, toComplete)
			}
			return completeDevicePath(cmd, args[1:], toComplete)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupRestore(args[0], args[1], yes, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

func newBackupDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a backup",
		Long:  `Delete removes a backup by its ID.`,
		Args:  cobra.ExactArgs(1),

		ValidArgsFunction: completeBackupID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupDelete(args[0], os.Stdout)
		},
	}
}

func newBackupPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old backups",
		Long: `Prune deletes old backups, keeping only the most recent N backups.

Defaults to backup.keep from the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("keep") {
				keep = -1
			}
			return runBackupPrune(keep, os.Stdout)
		},
	}

	cmd.Flags().IntVar(&keep, "keep", backup.DefaultKeepCount, "Number of backups to keep")

	return cmd
}

func backupManager() (*backup.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newBackupManager(cfg)
}

// runBackupList lists all backups.
func runBackupList(stdout io.Writer) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	manager, err := backupManager()
	if err != nil {
		return err
	}

	backups, err := manager.List()
	if err != nil {
		return err
	}

	if format.Structured() {
		return output.NewWriter(stdout, format).Write(backups)
	}

	if len(backups) == 0 {
		_, _ = fmt.Fprintln(stdout, "No backups found.")
		_, _ = fmt.Fprintf(stdout, "Backup directory: %s\n", manager.BackupDir())
		return nil
	}

	_, _ = fmt.Fprintf(stdout, "Backups stored in %s:\n\n", manager.BackupDir())

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCreated\tModel\tFiles\tNote\tSize")
	for _, b := range backups {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			b.ID,
			b.CreatedAt.Format("2006-01-02 15:04:05"),
			b.Model,
			b.Files,
			dash(b.Note),
			formatSize(b.Size),
		)
	}
	return w.Flush()
}

// runBackupShow prints the contents of one backup.
func runBackupShow(id string, stdout io.Writer) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	manager, err := backupManager()
	if err != nil {
		return err
	}

	bak, err := manager.Get(id)
	if err != nil {
		return err
	}

	if format.Structured() {
		return output.NewWriter(stdout, format).Write(bak)
	}

	_, _ = fmt.Fprintf(stdout, "Backup:  %s\n", bak.ID)
	_, _ = fmt.Fprintf(stdout, "Created: %s\n", bak.CreatedAt.Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(stdout, "Device:  %s (%s)\n", bak.Device, bak.Model)
	if bak.Note != "" {
		_, _ = fmt.Fprintf(stdout, "Note:    %s\n", bak.Note)
	}
	_, _ = fmt.Fprintln(stdout)

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tSIZE\tSAVED")
	for _, f := range bak.Files {
		saved := "yes"
		size := formatSize(f.Size)
		if !f.Existed {
			saved = "no (created by update)"
			size = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", f.Path, size, saved)
	}
	return w.Flush()
}

// runBackupRestore writes a backup back to the device.
func runBackupRestore(id, devicePath string, skipConfirm bool, stdin io.Reader, stdout io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manager, err := newBackupManager(cfg)
	if err != nil {
		return err
	}

	bak, err := manager.Get(id)
	if err != nil {
		return err
	}

	dev, err := openDevice(devicePath, cfg)
	if err != nil {
		return err
	}

	if err := checkBackupModel(bak, dev.Manifest); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Restoring from backup: %s\n", bak.ID)
	_, _ = fmt.Fprintf(stdout, "Created: %s\n", bak.CreatedAt.Format("2006-01-02 15:04:05"))
	if bak.Note != "" {
		_, _ = fmt.Fprintf(stdout, "Note: %s\n", bak.Note)
	}
	_, _ = fmt.Fprintf(stdout, "Target: %s\n\n", dev.Root())

	if !skipConfirm {
		if !stdinIsTerminal(stdin) {
			return errNotTerminal
		}
		p := interactive.NewPrompterWithIO(stdin, stdout)
		if !p.YesNo("overwrite device files with this backup?") {
			_, _ = fmt.Fprintln(stdout, "Restore cancelled.")
			return nil
		}
	}

	result, err := manager.Restore(bak.ID, dev)
	if result != nil {
		for _, f := range result.Restored {
			_, _ = fmt.Fprintf(stdout, "  restored %s\n", f)
		}
	}
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	for _, f := range result.Skipped {
		_, _ = fmt.Fprintf(stdout, "  left %s in place (created by the update)\n", f)
	}

	_, _ = fmt.Fprintln(stdout, "Restored successfully. Unplug the device to let it pick up the restored files.")
	return nil
}

// checkBackupModel refuses to restore a backup onto a different model. A
// device whose manifest cannot be read is accepted, since a broken manifest
// is a reason to restore.
func checkBackupModel(bak *backup.Backup, readManifest func() (*manifest.Manifest, error)) error {
	m, err := readManifest()
	if err != nil {
		return nil
	}
	model, err := m.Model()
	if err != nil {
		return nil
	}
	if bak.Model != "" && model != bak.Model {
		return fmt.Errorf("backup %s was taken from a %s, but the device is a %s", bak.ID, bak.Model, model)
	}
	return nil
}

// runBackupDelete deletes a backup.
func runBackupDelete(id string, stdout io.Writer) error {
	manager, err := backupManager()
	if err != nil {
		return err
	}

	if err := manager.Delete(id); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Backup deleted: %s\n", id)
	return nil
}

// runBackupPrune removes old backups. A negative keep uses the configured count.
func runBackupPrune(keep int, stdout io.Writer) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if keep < 0 {
		keep = cfg.Backup.Keep
	}

	manager, err := newBackupManager(cfg)
	if err != nil {
		return err
	}

	result, err := manager.Prune(keep)
	if err != nil {
		return err
	}

	if format.Structured() {
		return output.NewWriter(stdout, format).Write(result)
	}

	if len(result.Deleted) == 0 {
		_, _ = fmt.Fprintf(stdout, "No backups to prune. Keeping %d backups.\n", result.Kept)
		return nil
	}

	_, _ = fmt.Fprintf(stdout, "Pruned %d backup(s), keeping %d:\n", len(result.Deleted), result.Kept)
	for _, b := range result.Deleted {
		_, _ = fmt.Fprintf(stdout, "  - %s (%s)\n", b.ID, b.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
