// Package machine loads machine descriptions: clock, cache hierarchy, and
// main-memory bandwidth, as consumed by the cache-access simulator.
package machine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sharing scopes of a cache level. The scope is informational: capacities
// are used as given.
const (
	ScopePerCore   = "per core"
	ScopePerSocket = "per socket"
)

// A CacheLevel describes one level of the cache hierarchy. Levels are
// numbered from 1, increasing with distance from the core. A level with
// Cycles == 0 transfers to main memory and is costed by bandwidth instead
// of a per-line cycle count; only the last level may do so.
type CacheLevel struct {
	Level     int
	SizeBytes int
	Scope     string
	Cycles    float64
}

// A Model is a machine description.
type Model struct {
	Name           string
	ClockHz        float64
	Cores          int
	CachelineBytes int
	MemBandwidth   float64 // bytes per second
	CacheStack     []CacheLevel
}

// yamlModel is the on-disk schema, with human-readable units.
type yamlModel struct {
	Name         string          `yaml:"name"`
	Clock        string          `yaml:"clock"`
	Cores        int             `yaml:"cores"`
	Cacheline    string          `yaml:"cacheline"`
	MemBandwidth string          `yaml:"memory bandwidth"`
	CacheStack   []yamlCacheLevel `yaml:"cache stack"`
}

type yamlCacheLevel struct {
	Level  int     `yaml:"level"`
	Size   string  `yaml:"size"`
	Scope  string  `yaml:"scope"`
	Cycles float64 `yaml:"cycles"`
}

// Load reads and parses a machine description file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading machine description: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return m, nil
}

// Parse parses a YAML machine description.
func Parse(data []byte) (*Model, error) {
	var raw yamlModel
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	m := &Model{Name: raw.Name, Cores: raw.Cores}

	var err error
	if m.ClockHz, err = ParseFrequency(raw.Clock); err != nil {
		return nil, fmt.Errorf("clock: %w", err)
	}
	if m.CachelineBytes, err = ParseSize(raw.Cacheline); err != nil {
		return nil, fmt.Errorf("cacheline: %w", err)
	}
	if m.MemBandwidth, err = ParseBandwidth(raw.MemBandwidth); err != nil {
		return nil, fmt.Errorf("memory bandwidth: %w", err)
	}

	for _, lvl := range raw.CacheStack {
		size, err := ParseSize(lvl.Size)
		if err != nil {
			return nil, fmt.Errorf("cache level %d size: %w", lvl.Level, err)
		}

		m.CacheStack = append(m.CacheStack, CacheLevel{
			Level:     lvl.Level,
			SizeBytes: size,
			Scope:     lvl.Scope,
			Cycles:    lvl.Cycles,
		})
	}

	if err := m.validate(); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Model) validate() error {
	if m.CachelineBytes <= 0 {
		return fmt.Errorf("cache line size must be positive")
	}
	if m.ClockHz <= 0 {
		return fmt.Errorf("clock rate must be positive")
	}
	if m.MemBandwidth <= 0 {
		return fmt.Errorf("memory bandwidth must be positive")
	}
	if len(m.CacheStack) == 0 {
		return fmt.Errorf("cache stack must list at least one level")
	}

	for i, lvl := range m.CacheStack {
		if lvl.Level != i+1 {
			return fmt.Errorf(
				"cache levels must increase from 1, level %d found at position %d",
				lvl.Level, i+1)
		}
		if lvl.SizeBytes <= 0 {
			return fmt.Errorf("cache level %d must have a positive size", lvl.Level)
		}
		if lvl.Scope != ScopePerCore && lvl.Scope != ScopePerSocket {
			return fmt.Errorf(
				"cache level %d scope must be %q or %q, got %q",
				lvl.Level, ScopePerCore, ScopePerSocket, lvl.Scope)
		}

		last := i == len(m.CacheStack)-1
		if !last && lvl.Cycles <= 0 {
			return fmt.Errorf(
				"cache level %d must carry a per-line transfer cost", lvl.Level)
		}
		if last && lvl.Cycles != 0 {
			return fmt.Errorf(
				"last cache level connects to memory and must not carry cycles")
		}
	}

	return nil
}
