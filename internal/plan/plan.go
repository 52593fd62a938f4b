// Package plan compares the device manifest against the remote release
// manifest and decides which components have to be fetched.
package plan

import (
	"fmt"
	"strings"
)

// RefreshFile is the manifest written back to the device after every
// component has been installed.
const RefreshFile = "update.ini"

// Status records what the planner decided for one remote section.
type Status string

const (
	StatusUpdate        Status = "update"         // Versions differ
	StatusCurrent       Status = "current"        // Versions match
	StatusNotUpdateable Status = "not-updateable" // Size is zero
)

// Check is the planner's verdict for a remote section that declares a Size.
type Check struct {
	Section       string `json:"section" yaml:"section"`
	Status        Status `json:"status" yaml:"status"`
	RemoteVersion string `json:"remote_version,omitempty" yaml:"remote_version,omitempty"`
	LocalVersion  string `json:"local_version,omitempty" yaml:"local_version,omitempty"`
}

// Action is one file to fetch and write to the device.
// The refresh action has an empty Section and no size or versions.
type Action struct {
	File          string `json:"file" yaml:"file"`
	Section       string `json:"section,omitempty" yaml:"section,omitempty"`
	RemoteVersion string `json:"remote_version,omitempty" yaml:"remote_version,omitempty"`
	LocalVersion  string `json:"local_version,omitempty" yaml:"local_version,omitempty"`
	Size          *int64 `json:"size,omitempty" yaml:"size,omitempty"`
}

// IsRefresh reports whether the action rewrites the device manifest.
func (a Action) IsRefresh() bool {
	return a.Section == ""
}

// ExpectedSize returns the declared payload size, if any.
func (a Action) ExpectedSize() (int64, bool) {
	if a.Size == nil {
		return 0, false
	}
	return *a.Size, true
}

func (a Action) String() string {
	if a.IsRefresh() {
		return a.File
	}
	return fmt.Sprintf("%s (%s from %s to %s), %d bytes", a.File, a.Section, a.LocalVersion, a.RemoteVersion, *a.Size)
}

// Plan is the ordered list of actions. It is never modified after Build.
type Plan struct {
	Actions []Action `json:"actions" yaml:"actions"`
	Checks  []Check  `json:"checks" yaml:"checks"`
}

// NoUpdateNeeded reports whether every component is already current.
func (p *Plan) NoUpdateNeeded() bool {
	return len(p.Actions) == 0
}

// Components returns the actions that install a component, without the refresh.
func (p *Plan) Components() []Action {
	var out []Action
	for _, a := range p.Actions {
		if !a.IsRefresh() {
			out = append(out, a)
		}
	}
	return out
}

// TotalBytes sums the declared sizes of all component payloads.
func (p *Plan) TotalBytes() int64 {
	var total int64
	for _, a := range p.Actions {
		if n, ok := a.ExpectedSize(); ok {
			total += n
		}
	}
	return total
}

func (p *Plan) String() string {
	if p.NoUpdateNeeded() {
		return "nothing to do"
	}
	var b strings.Builder
	b.WriteString("will attempt to update the following files:\n")
	for _, a := range p.Actions {
		fmt.Fprintf(&b, "\t%s\n", a)
	}
	return strings.TrimRight(b.String(), "\n")
}
