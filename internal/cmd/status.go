package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adamancini/firmup/internal/manifest"
	"github.com/adamancini/firmup/internal/output"
	"github.com/adamancini/firmup/internal/update"
)

// DeviceStatus describes the components recorded on a device.
type DeviceStatus struct {
	Device     string            `json:"device" yaml:"device"`
	InfoFile   string            `json:"info_file" yaml:"info_file"`
	Model      string            `json:"model" yaml:"model"`
	Supported  bool              `json:"supported" yaml:"supported"`
	Components []ComponentStatus `json:"components" yaml:"components"`
}

// ComponentStatus is one section of the device manifest.
type ComponentStatus struct {
	Section string `json:"section" yaml:"section"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Size    string `json:"size,omitempty" yaml:"size,omitempty"`
}

func (s *DeviceStatus) String() string {
	var b strings.Builder
	supported := "yes"
	if !s.Supported {
		supported = "no (use --force to update anyway)"
	}
	fmt.Fprintf(&b, "Device:    %s\n", s.Device)
	fmt.Fprintf(&b, "Model:     %s\n", s.Model)
	fmt.Fprintf(&b, "Supported: %s\n\n", supported)

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SECTION\tVERSION\tSIZE\tFILE")
	for _, c := range s.Components {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Section, dash(c.Version), dash(c.Size), dash(c.Name))
	}
	_ = w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <device-path>",
		Short: "Show the model and component versions recorded on a device",
		Long: `Status reads the device manifest and shows the model, whether it is
supported, and the version of every component. No network access is needed.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeDevicePath,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(args[0], os.Stdout)
		},
	}
}

func runStatus(devicePath string, stdout io.Writer) error {
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

	m, err := dev.Manifest()
	if err != nil {
		return err
	}

	model, err := m.Model()
	if err != nil {
		return err
	}

	status := &DeviceStatus{
		Device:     dev.Root(),
		InfoFile:   dev.InfoFile(),
		Model:      model,
		Supported:  update.NewAllowlist(cfg.SupportedDevices...).Allows(model),
		Components: []ComponentStatus{},
	}
	for _, s := range m.Sections() {
		if s.Name() == manifest.SectionModel {
			continue
		}
		c := ComponentStatus{Section: s.Name()}
		c.Name, _ = s.Get(manifest.FieldName)
		c.Version, _ = s.Get(manifest.FieldVersion)
		c.Size, _ = s.Get(manifest.FieldSize)
		status.Components = append(status.Components, c)
	}

	return output.NewWriter(stdout, format).Write(status)
}
