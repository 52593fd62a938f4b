package plan

import (
	"strconv"
	"strings"

	"github.com/adamancini/firmup/internal/manifest"
)

// Build compares the local device manifest with the remote release manifest.
//
// Remote sections are visited in declared order. Sections without a Size, or
// with a zero Size, are never updated. Every other section must exist locally
// and carry a Version on both sides; the first section that violates this
// aborts planning. A plan with no actions means nothing needs updating;
// otherwise the refresh action is appended last.
func Build(local, remote *manifest.Manifest) (*Plan, error) {
	p := &Plan{}

	for _, rs := range remote.Sections() {
		sizeValue, ok := rs.Get(manifest.FieldSize)
		if !ok {
			continue
		}
		if isZeroSize(sizeValue) {
			p.Checks = append(p.Checks, Check{Section: rs.Name(), Status: StatusNotUpdateable})
			continue
		}

		ls, ok := local.Section(rs.Name())
		if !ok {
			return nil, &UnknownSectionError{Section: rs.Name()}
		}

		remoteVersion, err := rs.Require(manifest.FieldVersion)
		if err != nil {
			return nil, err
		}
		localVersion, err := ls.Require(manifest.FieldVersion)
		if err != nil {
			return nil, err
		}

		if remoteVersion == localVersion {
			p.Checks = append(p.Checks, Check{
				Section:       rs.Name(),
				Status:        StatusCurrent,
				RemoteVersion: remoteVersion,
				LocalVersion:  localVersion,
			})
			continue
		}

		name, err := rs.Require(manifest.FieldName)
		if err != nil {
			return nil, err
		}

		size, err := parseSize(rs.Name(), sizeValue)
		if err != nil {
			return nil, err
		}

		p.Checks = append(p.Checks, Check{
			Section:       rs.Name(),
			Status:        StatusUpdate,
			RemoteVersion: remoteVersion,
			LocalVersion:  localVersion,
		})
		p.Actions = append(p.Actions, Action{
			File:          name,
			Section:       rs.Name(),
			RemoteVersion: remoteVersion,
			LocalVersion:  localVersion,
			Size:          &size,
		})
	}

	if len(p.Actions) == 0 {
		return p, nil
	}

	p.Actions = append(p.Actions, Action{File: RefreshFile})
	return p, nil
}

func isZeroSize(v string) bool {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	return err == nil && n == 0
}

func parseSize(section, v string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, &FormatError{Section: section, Field: manifest.FieldSize, Value: v, Err: err}
	}
	if n < 0 {
		return 0, &FormatError{Section: section, Field: manifest.FieldSize, Value: v, Err: errNegativeSize}
	}
	return n, nil
}
