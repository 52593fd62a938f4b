package update

import "sort"

// DefaultSupportedDevices lists the models whose update behavior has been verified.
var DefaultSupportedDevices = []string{"Rider15neo"}

// Allowlist is the set of device models the updater will touch without --force.
type Allowlist map[string]struct{}

// NewAllowlist builds an allow-list from model names.
func NewAllowlist(models ...string) Allowlist {
	a := make(Allowlist, len(models))
	for _, m := range models {
		a[m] = struct{}{}
	}
	return a
}

// Allows reports whether model is on the list.
func (a Allowlist) Allows(model string) bool {
	_, ok := a[model]
	return ok
}

// Models returns the models in sorted order.
func (a Allowlist) Models() []string {
	out := make([]string, 0, len(a))
	for m := range a {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
