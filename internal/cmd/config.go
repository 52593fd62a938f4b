package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/adamancini/firmup/internal/config"
	"github.com/adamancini/firmup/internal/output"
	"github.com/adamancini/firmup/internal/templates"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and inspect the firmup config file",
		Long: `firmup reads an optional config file from --config, $FIRMUP_CONFIG,
$XDG_CONFIG_HOME/firmup/ or ~/.firmup/ (config.yaml, .yml, .toml or .json).
Without one, built-in defaults are used.`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigTemplatesCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		template string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file from a template",
		Long: `Init writes a config file from one of the built-in templates.

The file is written to the given path, to --config when set, or to
$XDG_CONFIG_HOME/firmup/config.yaml. An existing file is only replaced
with --force.

Examples:
  firmup config init
  firmup config init --template mirror
  firmup config init ./firmup.yaml --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) == 1 {
				path = args[0]
			}
			return runConfigInit(path, template, force, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&template, "template", "t", templates.DefaultTemplate, "Template to start from")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	_ = cmd.RegisterFlagCompletionFunc("template", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return templates.List(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Show prints the configuration firmup would use, after defaults and
environment variables are applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(os.Stdout)
		},
	}
}

func newConfigTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the built-in config templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigTemplates(os.Stdout)
		},
	}
}

func runConfigInit(path, template string, force bool, stdout io.Writer) error {
	tmpl, err := templates.Get(template)
	if err != nil {
		return err
	}

	if path == "" {
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, tmpl.Content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("written config does not load: %w", err)
	}

	_, _ = fmt.Fprintf(stdout, "Created %s from template %q\n", path, tmpl.Name)
	return nil
}

func runConfigShow(stdout io.Writer) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if format.Structured() {
		return output.NewWriter(stdout, format).Write(cfg)
	}

	source := "built-in defaults"
	if cfg.Path != "" {
		source = cfg.Path
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "# %s\n%s", source, data)
	return nil
}

func runConfigTemplates(stdout io.Writer) error {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, name := range templates.List() {
		marker := ""
		if name == templates.DefaultTemplate {
			marker = " (default)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s%s\n", name, templates.GetDescription(name), marker)
	}
	return w.Flush()
}
