package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/adamancini/firmup/internal/plan"
	"github.com/adamancini/firmup/internal/update"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	labelColor   = color.New(color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

var _ update.Observer = (*Console)(nil)

// Console prints human-readable progress for an update run. It implements
// update.Observer.
type Console struct {
	w       io.Writer
	quiet   bool
	verbose bool
	dest    func(name string) string
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithQuiet suppresses everything but warnings, errors and the final result.
func WithQuiet(quiet bool) ConsoleOption {
	return func(c *Console) { c.quiet = quiet }
}

// WithVerbose prints per-component planning decisions.
func WithVerbose(verbose bool) ConsoleOption {
	return func(c *Console) { c.verbose = verbose }
}

// WithDestination maps device-relative names to the paths shown to the user.
func WithDestination(fn func(name string) string) ConsoleOption {
	return func(c *Console) { c.dest = fn }
}

// NewConsole creates a console writing to w.
func NewConsole(w io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{
		w:    w,
		dest: func(name string) string { return name },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Infof prints an informational line unless quiet.
func (c *Console) Infof(format string, args ...interface{}) {
	if c.quiet {
		return
	}
	_, _ = fmt.Fprintf(c.w, format+"\n", args...)
}

// Successf prints a success line.
func (c *Console) Successf(format string, args ...interface{}) {
	_, _ = successColor.Fprintf(c.w, format+"\n", args...)
}

// Warnf prints a warning line.
func (c *Console) Warnf(format string, args ...interface{}) {
	_, _ = warningColor.Fprintf(c.w, format+"\n", args...)
}

// Errorf prints an error line to stderr.
func (c *Console) Errorf(format string, args ...interface{}) {
	_, _ = errorColor.Fprintf(os.Stderr, format+"\n", args...)
}

// Preparation prints what was found on the device and what the release
// changes.
func (c *Console) Preparation(prep *update.Preparation) {
	if !prep.Supported {
		c.Warnf("UNSUPPORTED DEVICE %q, CONTINUING WITH --force", prep.Model)
	}
	if c.quiet {
		return
	}

	_, _ = labelColor.Fprint(c.w, "device model: ")
	_, _ = fmt.Fprintln(c.w, prep.Model)
	_, _ = dimColor.Fprintf(c.w, "update info from %s\n", prep.ReleaseURL)

	if c.verbose {
		c.Checks(prep.Plan.Checks)
	}
}

// Checks prints the planner's verdict for every sized section.
func (c *Console) Checks(checks []plan.Check) {
	_, _ = fmt.Fprintln(c.w, "examining sections for updates:")
	for _, chk := range checks {
		switch chk.Status {
		case plan.StatusNotUpdateable:
			_, _ = dimColor.Fprintf(c.w, "\t%q not updateable (zero size)\n", chk.Section)
		case plan.StatusCurrent:
			_, _ = dimColor.Fprintf(c.w, "\t%q version %s matches %s\n", chk.Section, chk.RemoteVersion, chk.LocalVersion)
		case plan.StatusUpdate:
			_, _ = infoColor.Fprintf(c.w, "\t%q version %s differs from %s\n", chk.Section, chk.RemoteVersion, chk.LocalVersion)
		}
	}
}

// Plan prints the files that will be written.
func (c *Console) Plan(p *plan.Plan) {
	if p.NoUpdateNeeded() {
		c.Infof("nothing to do")
		return
	}
	_, _ = fmt.Fprintln(c.w, "will attempt to update the following files:")
	for _, a := range p.Actions {
		_, _ = infoColor.Fprintf(c.w, "\t%s\n", a)
	}
}

// Fetching implements update.Observer.
func (c *Console) Fetching(a plan.Action, url string) {
	c.Infof("fetching %q", url)
}

// Fetched implements update.Observer.
func (c *Console) Fetched(a plan.Action, n int) {
	c.Infof("fetched %d bytes, writing to %q... THIS MAY TAKE SOME TIME", n, c.dest(a.File))
}

// Written implements update.Observer.
func (c *Console) Written(a plan.Action, n int) {
	if c.quiet {
		return
	}
	_, _ = successColor.Fprintln(c.w, "finished writing file to device")
}

// Summary prints the outcome of a run.
func (c *Console) Summary(s *update.Summary) {
	switch s.State {
	case update.StateCompleted:
		c.Successf("updated files have been loaded on device. unplug device to start update.")
	case update.StateUpToDate:
		c.Infof("nothing to do, exiting")
	case update.StateCancelled:
		c.Infof("update cancelled, no files were changed")
	case update.StateAborted:
		c.Warnf("%s", s)
	}
}
