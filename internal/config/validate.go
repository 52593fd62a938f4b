package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/adamancini/firmup/internal/device"
	"github.com/adamancini/firmup/internal/fetch"
)

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the config for required fields and valid values.
// All problems are reported together.
func Validate(c *Config) error {
	var errs []ValidationError

	if c.Version != CurrentVersion {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (expected %d)", c.Version, CurrentVersion),
		})
	}

	errs = append(errs, validateDevices(c.SupportedDevices)...)

	if err := validateURLTemplate(c.URLTemplate); err != nil {
		errs = append(errs, *err)
	}

	if err := device.ValidateRelPath(c.DeviceInfoFile); err != nil {
		errs = append(errs, ValidationError{Field: "device_info_file", Message: err.Error()})
	}

	errs = append(errs, validateHTTP(c.HTTP)...)

	if c.Backup.Keep < 0 {
		errs = append(errs, ValidationError{Field: "backup.keep", Message: "must be non-negative"})
	}

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(msgs, "\n  - "))
	}

	return nil
}

func validateDevices(models []string) []ValidationError {
	if len(models) == 0 {
		return []ValidationError{{
			Field:   "supported_devices",
			Message: "at least one model is required (use --force to update other models)",
		}}
	}

	var errs []ValidationError
	seen := make(map[string]bool)
	for i, m := range models {
		switch {
		case strings.TrimSpace(m) == "":
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("supported_devices[%d]", i),
				Message: "model cannot be empty",
			})
		case seen[m]:
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("supported_devices[%d]", i),
				Message: fmt.Sprintf("duplicate model '%s'", m),
			})
		}
		seen[m] = true
	}
	return errs
}

func validateURLTemplate(tmpl string) *ValidationError {
	if !strings.Contains(tmpl, fetch.ModelPlaceholder) || !strings.Contains(tmpl, fetch.FilePlaceholder) {
		return &ValidationError{
			Field:   "url_template",
			Message: fmt.Sprintf("must contain %s and %s", fetch.ModelPlaceholder, fetch.FilePlaceholder),
		}
	}

	u, err := url.Parse(tmpl)
	if err != nil {
		return &ValidationError{Field: "url_template", Message: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{
			Field:   "url_template",
			Message: fmt.Sprintf("unsupported scheme '%s' (must be http or https)", u.Scheme),
		}
	}
	if u.Host == "" {
		return &ValidationError{Field: "url_template", Message: "host is required"}
	}

	return nil
}

func validateHTTP(h HTTPConfig) []ValidationError {
	var errs []ValidationError

	d, err := h.TimeoutDuration()
	switch {
	case err != nil:
		errs = append(errs, ValidationError{Field: "http.timeout", Message: err.Error()})
	case d <= 0:
		errs = append(errs, ValidationError{Field: "http.timeout", Message: "must be positive"})
	}

	if h.Retries < 0 {
		errs = append(errs, ValidationError{Field: "http.retries", Message: "must be non-negative"})
	}

	return errs
}
