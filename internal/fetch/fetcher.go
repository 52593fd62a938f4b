// Package fetch retrieves release manifests and component payloads from the
// vendor's update server.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/adamancini/firmup/internal/logging"
)

// Placeholders understood in URL templates.
const (
	ModelPlaceholder = "{model}"
	FilePlaceholder  = "{file}"
)

// DefaultURLTemplate is the location the vendor's own update tool uses.
const DefaultURLTemplate = "https://rexray-s3fs-jeff.s3.ap-northeast-1.amazonaws.com/mapdata/updatetool2/Device/{model}/{file}"

// ReleaseManifest is the remote manifest listing the latest components.
const ReleaseManifest = "release.ini"

// FetchError reports a failure to retrieve a file.
type FetchError struct {
	File       string
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("error downloading %s from %s: %v", e.File, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher resolves component files against a URL template and downloads them.
type Fetcher struct {
	template  string
	transport Transport
	log       logging.Logger
}

// New creates a Fetcher. An empty template selects DefaultURLTemplate.
func New(template string, transport Transport) *Fetcher {
	if template == "" {
		template = DefaultURLTemplate
	}
	return &Fetcher{
		template:  template,
		transport: transport,
		log:       logging.New("fetch"),
	}
}

// URL returns the location of file for the given device model.
// Both values are escaped one path segment at a time.
func (f *Fetcher) URL(model, file string) string {
	r := strings.NewReplacer(
		ModelPlaceholder, url.PathEscape(model),
		FilePlaceholder, escapePath(file),
	)
	return r.Replace(f.template)
}

// Fetch downloads file for the given model. The bytes are returned as-is;
// callers validate the size.
func (f *Fetcher) Fetch(ctx context.Context, model, file string) ([]byte, error) {
	u := f.URL(model, file)
	f.log.WithField("url", u).Debug("fetching")

	data, err := f.transport.Get(ctx, u)
	if err != nil {
		fe := &FetchError{File: file, URL: u, Err: err}
		var serr *StatusError
		if errors.As(err, &serr) {
			fe.StatusCode = serr.StatusCode
		}
		return nil, fe
	}
	return data, nil
}

func escapePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
