package update

import (
	"context"
	"fmt"

	"github.com/adamancini/firmup/internal/fetch"
	"github.com/adamancini/firmup/internal/logging"
	"github.com/adamancini/firmup/internal/manifest"
	"github.com/adamancini/firmup/internal/plan"
)

// Device is the part of a mounted device the updater reads from.
type Device interface {
	Root() string
	Manifest() (*manifest.Manifest, error)
}

// Preparation is everything known about an update before it is confirmed.
type Preparation struct {
	Device     string             `json:"device" yaml:"device"`
	Model      string             `json:"model" yaml:"model"`
	Supported  bool               `json:"supported" yaml:"supported"`
	ReleaseURL string             `json:"release_url" yaml:"release_url"`
	Local      *manifest.Manifest `json:"-" yaml:"-"`
	Remote     *manifest.Manifest `json:"-" yaml:"-"`
	Plan       *plan.Plan         `json:"plan" yaml:"plan"`
}

// Updater reads the device state and the published release and plans the
// update between them.
type Updater struct {
	device  Device
	fetcher Fetcher
	allow   Allowlist
	force   bool
	log     logging.Logger
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithAllowlist replaces the default supported models.
func WithAllowlist(a Allowlist) UpdaterOption {
	return func(u *Updater) {
		u.allow = a
	}
}

// WithForce lets unsupported models through with a warning.
func WithForce(force bool) UpdaterOption {
	return func(u *Updater) {
		u.force = force
	}
}

// WithUpdaterLogger sets the logger.
func WithUpdaterLogger(log logging.Logger) UpdaterOption {
	return func(u *Updater) {
		u.log = log
	}
}

// NewUpdater creates an updater for d that downloads through f.
func NewUpdater(d Device, f Fetcher, opts ...UpdaterOption) *Updater {
	u := &Updater{
		device:  d,
		fetcher: f,
		allow:   NewAllowlist(DefaultSupportedDevices...),
		log:     logging.New("updater"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Prepare reads the local manifest, checks the model against the
// allow-list, downloads the release manifest and builds the plan. Nothing is
// written to the device.
func (u *Updater) Prepare(ctx context.Context) (*Preparation, error) {
	local, err := u.device.Manifest()
	if err != nil {
		return nil, fmt.Errorf("failed to read device manifest: %w", err)
	}

	model, err := local.Model()
	if err != nil {
		return nil, fmt.Errorf("failed to identify device: %w", err)
	}
	log := u.log.WithField("model", model)

	supported := u.allow.Allows(model)
	if !supported {
		if !u.force {
			return nil, &UnsupportedDeviceError{Model: model, Supported: u.allow.Models()}
		}
		log.Warn("device model is not supported, continuing because of --force")
	}

	releaseURL := u.fetcher.URL(model, fetch.ReleaseManifest)
	log.WithField("url", releaseURL).Debug("fetching release manifest")

	data, err := u.fetcher.Fetch(ctx, model, fetch.ReleaseManifest)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch release manifest: %w", err)
	}

	remote, err := manifest.ParseBytes(releaseURL, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse release manifest: %w", err)
	}

	p, err := plan.Build(local, remote)
	if err != nil {
		return nil, fmt.Errorf("failed to plan update: %w", err)
	}

	for _, c := range p.Checks {
		log.WithFields(map[string]interface{}{
			"section": c.Section,
			"status":  c.Status,
			"remote":  c.RemoteVersion,
			"local":   c.LocalVersion,
		}).Debug("component checked")
	}

	return &Preparation{
		Device:     u.device.Root(),
		Model:      model,
		Supported:  supported,
		ReleaseURL: releaseURL,
		Local:      local,
		Remote:     remote,
		Plan:       p,
	}, nil
}
