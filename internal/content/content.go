// Package content holds the static portion and holiday indices and resolves
// free-text names against them.
package content

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"shabbatcal/internal/names"
)

//go:embed portions.yaml
var portionsYAML []byte

//go:embed holidays.yaml
var holidaysYAML []byte

// Portion is one weekly reading.
type Portion struct {
	Name   string `yaml:"name" json:"name"`
	Hebrew string `yaml:"hebrew" json:"hebrew"`
	Book   string `yaml:"book" json:"book"`
	Verses string `yaml:"verses" json:"verses"`
}

// Holiday is one holiday or fast.
type Holiday struct {
	Name     string `yaml:"name" json:"name"`
	Hebrew   string `yaml:"hebrew" json:"hebrew"`
	Category string `yaml:"category" json:"category"`
	Summary  string `yaml:"summary" json:"summary"`
}

// Index names one of the two content indices.
type Index string

const (
	IndexPortions Index = "portions"
	IndexHolidays Index = "holidays"
)

var (
	loadOnce sync.Once
	portions map[string]Portion
	holidays map[string]Holiday
	loadErr  error
)

func load() error {
	loadOnce.Do(func() {
		portions, loadErr = decode(portionsYAML, func(p Portion) string { return p.Name })
		if loadErr != nil {
			return
		}
		holidays, loadErr = decode(holidaysYAML, func(h Holiday) string { return h.Name })
	})
	return loadErr
}

func decode[T any](data []byte, key func(T) string) (map[string]T, error) {
	var list []T
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	out := make(map[string]T, len(list))
	for _, v := range list {
		k := key(v)
		if k == "" {
			return nil, fmt.Errorf("content: entry without a name")
		}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("content: duplicate entry %q", k)
		}
		out[k] = v
	}
	return out, nil
}

// Portions returns a copy of the portion index keyed by canonical name.
func Portions() (map[string]Portion, error) {
	if err := load(); err != nil {
		return nil, err
	}
	return copyMap(portions), nil
}

// Holidays returns a copy of the holiday index keyed by canonical name.
func Holidays() (map[string]Holiday, error) {
	if err := load(); err != nil {
		return nil, err
	}
	return copyMap(holidays), nil
}

// LookupPortion resolves a free-text portion name. It returns
// names.ErrNoMatch when nothing matches.
func LookupPortion(name string) (Portion, error) {
	if err := load(); err != nil {
		return Portion{}, err
	}
	return names.Lookup(name, portions, func(p Portion) string { return p.Hebrew })
}

// LookupHoliday resolves a free-text holiday or fast name.
func LookupHoliday(name string) (Holiday, error) {
	if err := load(); err != nil {
		return Holiday{}, err
	}
	return names.Lookup(name, holidays, func(h Holiday) string { return h.Hebrew })
}

// Lookup resolves name in the given index and returns the matching record.
func Lookup(idx Index, name string) (any, error) {
	switch idx {
	case IndexPortions, "":
		return LookupPortion(name)
	case IndexHolidays:
		return LookupHoliday(name)
	default:
		return nil, fmt.Errorf("content: unknown index %q", idx)
	}
}

func copyMap[T any](m map[string]T) map[string]T {
	out := make(map[string]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
