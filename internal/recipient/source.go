// Package recipient obtains destination addresses from spreadsheets,
// uploaded files or a static list, and filters them down to valid addresses.
package recipient

import (
	"context"
	"errors"
)

// Errors returned by recipient sources
var (
	ErrNoData            = errors.New("no data returned")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNotConfigured     = errors.New("source is not configured")
)

// Source produces an ordered list of valid recipient addresses.
type Source interface {
	// Name identifies the source in status messages and run history.
	Name() string
	// Fetch returns filtered addresses. On error the returned slice is nil.
	Fetch(ctx context.Context) ([]string, error)
}

// StaticSource serves a fixed list, used for mocked data and the CLI.
type StaticSource struct {
	values []string
	dedupe bool
}

// NewStaticSource creates a StaticSource over values
func NewStaticSource(values []string, dedupe bool) *StaticSource {
	cp := make([]string, len(values))
	copy(cp, values)
	return &StaticSource{values: cp, dedupe: dedupe}
}

// Name implements Source.
func (s *StaticSource) Name() string { return "static" }

// Fetch implements Source.
func (s *StaticSource) Fetch(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Filter(s.values, s.dedupe), nil
}
