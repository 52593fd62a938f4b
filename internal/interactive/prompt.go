// Package interactive provides interactive prompts for user confirmation.
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/adamancini/firmup/internal/plan"
)

var warningColor = color.New(color.FgRed, color.Bold)

// Prompter asks the user to confirm an update plan.
type Prompter struct {
	in      io.Reader
	out     io.Writer
	scanner *bufio.Scanner
}

// NewPrompterWithIO creates a prompter reading answers from in.
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:      in,
		out:     out,
		scanner: bufio.NewScanner(in),
	}
}

// IsTerminal reports whether r is a file attached to a terminal (TTY).
// Pipes, regular files and in-memory readers are not.
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Confirm prints the plan and the risk warning, then asks whether to
// proceed. Anything other than y or yes, including end of input, is a no.
func (p *Prompter) Confirm(pl *plan.Plan) bool {
	_, _ = fmt.Fprintln(p.out, pl)
	_, _ = warningColor.Fprintln(p.out, "note that this might brick your device, and you do this ENTIRELY AT YOUR OWN RISK.")
	return p.YesNo("proceed with update?")
}

// YesNo asks a question that defaults to no.
func (p *Prompter) YesNo(question string) bool {
	_, _ = fmt.Fprintf(p.out, "%s (y/N) ", question)
	if !p.scanner.Scan() {
		_, _ = fmt.Fprintln(p.out)
		return false
	}
	input := strings.ToLower(strings.TrimSpace(p.scanner.Text()))
	return input == "y" || input == "yes"
}
