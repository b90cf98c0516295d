// Package catalog holds the immutable riddle sequence of a challenge.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/minus-twelve/geoquest/geo"
	"github.com/minus-twelve/geoquest/types"
)

// ErrIncomplete is returned when a stage in 1..total is missing or malformed.
var ErrIncomplete = errors.New("riddle catalog is incomplete")

// Catalog is a read-only lookup of stage number to riddle.
type Catalog struct {
	riddles map[int]types.Riddle
	total   int
}

// New validates that every stage 1..total is present with text, key and a
// valid coordinate. Stages above total are ignored.
func New(total int, riddles []types.Riddle) (*Catalog, error) {
	if total < 1 {
		return nil, fmt.Errorf("%w: total riddles must be at least 1, got %d", ErrIncomplete, total)
	}

	byNumber := make(map[int]types.Riddle, total)
	for _, r := range riddles {
		if r.Number < 1 || r.Number > total {
			continue
		}
		if _, dup := byNumber[r.Number]; dup {
			return nil, fmt.Errorf("%w: riddle %d defined more than once", ErrIncomplete, r.Number)
		}
		byNumber[r.Number] = r
	}

	for n := 1; n <= total; n++ {
		r, ok := byNumber[n]
		switch {
		case !ok:
			return nil, fmt.Errorf("%w: riddle %d is missing", ErrIncomplete, n)
		case strings.TrimSpace(r.Text) == "":
			return nil, fmt.Errorf("%w: riddle %d has no text", ErrIncomplete, n)
		case r.Key == "":
			return nil, fmt.Errorf("%w: riddle %d has no key", ErrIncomplete, n)
		case !geo.ValidCoordinate(r.Lat, r.Lng):
			return nil, fmt.Errorf("%w: riddle %d has invalid coordinates (%v, %v)", ErrIncomplete, n, r.Lat, r.Lng)
		}
	}

	return &Catalog{riddles: byNumber, total: total}, nil
}

// Get returns riddle n.
func (c *Catalog) Get(n int) (types.Riddle, bool) {
	r, ok := c.riddles[n]
	return r, ok
}

// Total returns the number of stages.
func (c *Catalog) Total() int {
	return c.total
}

// Source is the raw, possibly partial, definition of one riddle as read from
// a config file or the environment. Coordinates are pointers so an absent
// value can be told apart from 0.
type Source struct {
	Number int      `yaml:"number"`
	Text   string   `yaml:"text" env:"TEXT"`
	Lat    *float64 `yaml:"lat" env:"LAT"`
	Lng    *float64 `yaml:"lng" env:"LNG"`
	Key    string   `yaml:"key" env:"KEY"`
}

// FromEnv overlays RIDDLE_<n>_TEXT, _LAT, _LNG and _KEY variables onto base
// for every stage 1..total and returns the resolved riddles. Variables win
// over base values; a stage with no coordinate in either place is an error.
func FromEnv(total int, environ map[string]string, base []Source) ([]types.Riddle, error) {
	byNumber := make(map[int]Source, len(base))
	for _, s := range base {
		byNumber[s.Number] = s
	}

	riddles := make([]types.Riddle, 0, total)
	for n := 1; n <= total; n++ {
		src := byNumber[n]
		src.Number = n
		src.Lat = copyFloat(src.Lat)
		src.Lng = copyFloat(src.Lng)
		err := env.ParseWithOptions(&src, env.Options{
			Prefix:      fmt.Sprintf("RIDDLE_%d_", n),
			Environment: environ,
		})
		if err != nil {
			return nil, fmt.Errorf("parse riddle %d env: %w", n, err)
		}
		if src.Lat == nil || src.Lng == nil {
			return nil, fmt.Errorf("%w: riddle %d has no coordinates", ErrIncomplete, n)
		}
		riddles = append(riddles, types.Riddle{
			Number: n,
			Text:   src.Text,
			Lat:    *src.Lat,
			Lng:    *src.Lng,
			Key:    src.Key,
		})
	}
	return riddles, nil
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
