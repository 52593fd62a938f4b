package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/adamancini/firmup/internal/output"
)

// Build information, set during command initialization
var (
	firmupVersion = "dev"
	firmupCommit  = "none"
	firmupDate    = "unknown"
)

// SetVersion records the build information used in output and backup metadata.
func SetVersion(version, commit, date string) {
	firmupVersion = version
	firmupCommit = commit
	firmupDate = date
}

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("firmup version %s (commit %s, built %s, %s %s)", v.Version, v.Commit, v.Date, v.GoVersion, v.Platform)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(os.Stdout)
		},
	}
}

func runVersion(stdout io.Writer) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	info := VersionInfo{
		Version:   firmupVersion,
		Commit:    firmupCommit,
		Date:      firmupDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	return output.NewWriter(stdout, format).Write(info)
}
