package portalcache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/plushcare/portal/internal/xerrors"
)

// Limits is the capacity and TTL of one cache
type Limits struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// Tuning maps cache name to its limits
type Tuning struct {
	Caches map[string]Limits `yaml:"caches"`
}

// DefaultTuning returns the limits the portal ships with
func DefaultTuning() Tuning {
	return Tuning{Caches: map[string]Limits{
		NameCustomer:      {MaxEntries: 500, TTL: 5 * time.Minute},
		NameNotifications: {MaxEntries: 1000, TTL: 30 * time.Second},
		NameQuery:         {MaxEntries: 200, TTL: time.Minute},
		NameInvoice:       {MaxEntries: 500, TTL: 2 * time.Minute},
		NameJob:           {MaxEntries: 500, TTL: 2 * time.Minute},
	}}
}

// LoadTuning reads a YAML tuning file and overlays it on DefaultTuning.
// Fields left out of the file keep their default. An empty path returns the defaults.
//
//	caches:
//	  customer:
//	    max_entries: 2000
//	    ttl: 10m
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, xerrors.Wrapf(err, "read cache tuning %s", path)
	}
	return parseTuning(t, b)
}

func parseTuning(base Tuning, b []byte) (Tuning, error) {
	var file Tuning
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return Tuning{}, xerrors.Wrap(err, "decode cache tuning")
	}

	for name, l := range file.Caches {
		cur, ok := base.Caches[name]
		if !ok {
			return Tuning{}, xerrors.Newf("cache tuning: unknown cache %q", name)
		}
		if l.MaxEntries != 0 {
			cur.MaxEntries = l.MaxEntries
		}
		if l.TTL != 0 {
			cur.TTL = l.TTL
		}
		base.Caches[name] = cur
	}
	if err := base.Validate(); err != nil {
		return Tuning{}, err
	}
	return base, nil
}

// Validate checks every entry and returns all problems joined
func (t Tuning) Validate() error {
	names := make([]string, 0, len(t.Caches))
	for name := range t.Caches {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		l := t.Caches[name]
		if l.MaxEntries < 1 {
			errs = append(errs, fmt.Errorf("cache %q: max_entries must be >= 1 (got %d)", name, l.MaxEntries))
		}
		if l.TTL < 0 {
			errs = append(errs, fmt.Errorf("cache %q: ttl must be >= 0 (got %s)", name, l.TTL))
		}
	}
	return errors.Join(errs...)
}
