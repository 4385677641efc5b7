// Package catalog loads named action descriptors from YAML or JSON files and
// builds them into callable actions.
//
// A catalog file looks like:
//
//	actions:
//	  - name: list-users
//	    endpoint: /users
//	    method: GET
//	    cache:
//	      ttl: 30s
//	      tags: users
//	  - name: create-user
//	    endpoint: /users
//	    tags: [users]
//
// JSON files with the same shape are accepted.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xjectro/actionkit/internal/constants"
	"github.com/xjectro/actionkit/pkg/action"
	"github.com/xjectro/actionkit/pkg/tagcache"
)

// ErrNegativeTTL is returned for cache sections with a negative TTL.
var ErrNegativeTTL = errors.New("cache ttl must not be negative")

// CacheSpec enables read-through caching for an action.
type CacheSpec struct {
	TTL  time.Duration `json:"ttl,omitempty"  yaml:"ttl,omitempty"`
	Tags action.Tags   `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Entry is one named descriptor.
type Entry struct {
	Name        string            `json:"name"                  yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Endpoint    string            `json:"endpoint"              yaml:"endpoint"`
	Method      string            `json:"method,omitempty"      yaml:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"     yaml:"headers,omitempty"`
	Tags        action.Tags       `json:"tags,omitempty"        yaml:"tags,omitempty"`
	Cache       *CacheSpec        `json:"cache,omitempty"       yaml:"cache,omitempty"`
}

// Descriptor converts the entry into an untyped descriptor.
func (e *Entry) Descriptor() action.Descriptor[any, any] {
	return action.Descriptor[any, any]{
		Name:     e.Name,
		Endpoint: e.Endpoint,
		Method:   action.Method(e.Method),
		Headers:  e.Headers,
		Tags:     e.Tags,
	}
}

// Catalog is a list of named descriptors.
type Catalog struct {
	Actions []Entry `json:"actions" yaml:"actions"`
}

// Load decodes and validates a catalog. Unknown fields are rejected.
func Load(r io.Reader) (*Catalog, error) {
	var catalog Catalog

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	err := decoder.Decode(&catalog)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	err = catalog.Validate()
	if err != nil {
		return nil, err
	}

	return &catalog, nil
}

// LoadFile loads a catalog from path.
func LoadFile(path string) (*Catalog, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	defer func() { _ = file.Close() }()

	catalog, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return catalog, nil
}

// Validate checks names are present and unique, endpoints are set, methods
// are supported and tags are usable. All problems are reported together.
func (c *Catalog) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(c.Actions))

	for i, entry := range c.Actions {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("action #%d: %w", i+1, constants.ErrActionNameRequired))
		} else if seen[entry.Name] {
			errs = append(errs, fmt.Errorf("action %q: %w", entry.Name, constants.ErrDuplicateAction))
		}

		seen[entry.Name] = true

		errs = append(errs, validateEntry(&entry)...)
	}

	return errors.Join(errs...)
}

func validateEntry(entry *Entry) []error {
	var errs []error

	label := entry.Name
	if label == "" {
		label = entry.Endpoint
	}

	if entry.Endpoint == "" {
		errs = append(errs, fmt.Errorf("action %q: %w", label, constants.ErrEndpointRequired))
	}

	_, err := action.ParseMethod(entry.Method)
	if err != nil {
		errs = append(errs, fmt.Errorf("action %q: %w", label, err))
	}

	for _, tag := range entry.Tags {
		err := tagcache.ValidateTag(tag)
		if err != nil {
			errs = append(errs, fmt.Errorf("action %q: tag %q: %w", label, tag, err))
		}
	}

	if entry.Cache != nil {
		if entry.Cache.TTL < 0 {
			errs = append(errs, fmt.Errorf("action %q: %w", label, ErrNegativeTTL))
		}

		for _, tag := range entry.Cache.Tags {
			err := tagcache.ValidateTag(tag)
			if err != nil {
				errs = append(errs, fmt.Errorf("action %q: cache tag %q: %w", label, tag, err))
			}
		}
	}

	return errs
}

// Lookup returns the entry called name.
func (c *Catalog) Lookup(name string) (*Entry, error) {
	for i := range c.Actions {
		if c.Actions[i].Name == name {
			return &c.Actions[i], nil
		}
	}

	return nil, fmt.Errorf("%w: %s", constants.ErrActionNotFound, name)
}

// Names returns the action names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Actions))
	for _, entry := range c.Actions {
		names = append(names, entry.Name)
	}

	sort.Strings(names)

	return names
}
