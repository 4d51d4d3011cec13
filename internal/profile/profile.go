// Package profile loads named filter profiles from a YAML file.
//
//	profiles:
//	  default:
//	    tag: ["!chatty"]
//	  wifi:
//	    comment: Wi-Fi stack
//	    extends: [default]
//	    tag: [wpa_supplicant, WifiService]
//	    highlight: ["disconnect"]
package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/coffersTech/nanocat/internal/filter"
)

// EnvPath overrides the default profiles file location.
const EnvPath = "NANOCAT_PROFILES"

// DefaultName is applied when no profile is selected.
const DefaultName = "default"

// maxDepth bounds extends resolution, which also stops cycles.
const maxDepth = 100

// ErrUnknownProfile is returned for a name missing from the file.
var ErrUnknownProfile = errors.New("unknown profile")

// Profile is a reusable set of filter rules.
type Profile struct {
	Comment           string   `yaml:"comment,omitempty"`
	Extends           []string `yaml:"extends,omitempty"`
	Highlight         []string `yaml:"highlight,omitempty"`
	Message           []string `yaml:"message,omitempty"`
	MessageIgnoreCase []string `yaml:"message_ignore_case,omitempty"`
	PID               []string `yaml:"pid,omitempty"`
	ProcessName       []string `yaml:"process_name,omitempty"`
	Regex             []string `yaml:"regex,omitempty"`
	Tag               []string `yaml:"tag,omitempty"`
	TagIgnoreCase     []string `yaml:"tag_ignore_case,omitempty"`
}

// Rules converts the filter settings of p. Process names need a device
// lookup and are resolved by the caller.
func (p Profile) Rules() filter.Rules {
	return filter.Rules{
		Tag:               p.Tag,
		TagIgnoreCase:     p.TagIgnoreCase,
		Message:           p.Message,
		MessageIgnoreCase: p.MessageIgnoreCase,
		PID:               p.PID,
		Regex:             p.Regex,
		Highlight:         p.Highlight,
	}
}

// merge adds the lists of o to p, sorted and deduplicated.
func (p *Profile) merge(o Profile) {
	union := func(a, b []string) []string {
		out := append(slices.Clone(a), b...)
		slices.Sort(out)
		return slices.Compact(out)
	}
	p.Extends = union(p.Extends, o.Extends)
	p.Highlight = union(p.Highlight, o.Highlight)
	p.Message = union(p.Message, o.Message)
	p.MessageIgnoreCase = union(p.MessageIgnoreCase, o.MessageIgnoreCase)
	p.PID = union(p.PID, o.PID)
	p.ProcessName = union(p.ProcessName, o.ProcessName)
	p.Regex = union(p.Regex, o.Regex)
	p.Tag = union(p.Tag, o.Tag)
	p.TagIgnoreCase = union(p.TagIgnoreCase, o.TagIgnoreCase)
}

// Set is the content of a profiles file.
type Set struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// Names lists the profiles in alphabetical order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.Profiles))
	for name := range s.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the named profile with all extends merged in. An
// empty name selects DefaultName if present, else an empty profile.
func (s *Set) Resolve(name string) (Profile, error) {
	if name == "" {
		if _, ok := s.Profiles[DefaultName]; !ok {
			return Profile{}, nil
		}
		name = DefaultName
	}
	p, ok := s.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w %q", ErrUnknownProfile, name)
	}
	for depth := 0; len(p.Extends) > 0; depth++ {
		if depth == maxDepth {
			return Profile{}, fmt.Errorf("profile %q: extends nested deeper than %d", name, maxDepth)
		}
		extends := p.Extends
		p.Extends = nil
		for _, e := range extends {
			base, ok := s.Profiles[e]
			if !ok {
				return Profile{}, fmt.Errorf("profile %q extends %w %q", name, ErrUnknownProfile, e)
			}
			p.merge(base)
		}
	}
	return p, nil
}

// Path picks the profiles file: the explicit path, then $NANOCAT_PROFILES,
// then profiles.yaml in dir. required reports whether the file must exist.
func Path(explicit, dir string) (path string, required bool) {
	if explicit != "" {
		return explicit, true
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env, true
	}
	return filepath.Join(dir, "profiles.yaml"), false
}

// Load reads a profiles file. A missing optional file is an empty set.
func Load(path string, required bool) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return &Set{}, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("cannot find profiles file %s; use --profiles-path to set it", path)
		}
		return nil, err
	}
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &s, nil
}
