// Package config reads heap descriptions from YAML and turns them into heap.CreateOptions
package config

import (
	"bytes"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/fbheap/heap"
	"gopkg.in/yaml.v3"
)

// Size is a byte count that can be written in YAML as a plain integer, a hex literal, or a
// human-readable size such as "64KiB"
type Size uint64

func ParseSize(str string) (Size, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return 0, errors.New("empty size")
	}

	if value, err := strconv.ParseUint(str, 0, 64); err == nil {
		return Size(value), nil
	}

	value, err := humanize.ParseBytes(str)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", str)
	}
	return Size(value), nil
}

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: size must be a scalar", value.Line)
	}

	size, err := ParseSize(value.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d", value.Line)
	}

	*s = size
	return nil
}

func (s Size) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// String formats the size with IEC units
func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}

// Region is one entry of the heap's region table. Base and Size are both relative to the address
// space, not to the heap.
type Region struct {
	Base                Size `yaml:"base"`
	Size                Size `yaml:"size"`
	Reserved            bool `yaml:"reserved,omitempty"`
	InternalHeap        bool `yaml:"internalHeap,omitempty"`
	SupportsCompression bool `yaml:"compression,omitempty"`
	SupportsISO         bool `yaml:"iso,omitempty"`
	Protected           bool `yaml:"protected,omitempty"`
	Performance         int  `yaml:"performance,omitempty"`
}

// BadPage is a page to blacklist as soon as the heap is created
type BadPage struct {
	Address Size   `yaml:"address"`
	Source  string `yaml:"source,omitempty"`
}

// Config describes a single heap
type Config struct {
	Type string `yaml:"type,omitempty"`
	Base Size   `yaml:"base"`
	Size Size   `yaml:"size"`

	Flags     []string          `yaml:"flags,omitempty"`
	Placement map[string]string `yaml:"placement,omitempty"`

	TextureClients    int      `yaml:"textureClients,omitempty"`
	ShuffleStrides    []uint64 `yaml:"shuffleStrides,omitempty"`
	BigPageSize       Size     `yaml:"bigPageSize,omitempty"`
	HostPageSize      Size     `yaml:"hostPageSize,omitempty"`
	MaxBlacklistPages int      `yaml:"maxBlacklistPages,omitempty"`
	PreferSlowRegion  bool     `yaml:"preferSlowRegion,omitempty"`

	Regions  []Region  `yaml:"regions,omitempty"`
	BadPages []BadPage `yaml:"badPages,omitempty"`
}

// Load reads and parses the YAML file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read heap config %s", path)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse heap config %s", path)
	}

	return config, nil
}

// Parse decodes a YAML heap description. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var config Config

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, errors.Wrap(err, "yaml decode")
	}

	if config.Size == 0 {
		return nil, errors.New("heap size must be set")
	}

	return &config, nil
}

var heapTypes = []heap.HeapType{
	heap.HeapTypeGlobal,
	heap.HeapTypePhysMemSuballocator,
	heap.HeapTypePartitionLocal,
}

// HeapType returns the configured heap type. An empty type is HeapTypeGlobal.
func (c *Config) HeapType() (heap.HeapType, error) {
	if c.Type == "" {
		return heap.HeapTypeGlobal, nil
	}

	for _, heapType := range heapTypes {
		if strings.EqualFold(heapType.String(), c.Type) {
			return heapType, nil
		}
	}

	return 0, errors.Errorf("unknown heap type %q", c.Type)
}

func parseDirection(str string) (heap.GrowDirection, error) {
	for _, direction := range []heap.GrowDirection{heap.GrowUp, heap.GrowDown} {
		if strings.EqualFold(direction.String(), str) {
			return direction, nil
		}
	}

	return 0, errors.Errorf("unknown grow direction %q", str)
}

func parsePageSource(str string) (heap.PageSource, error) {
	if str == "" {
		return heap.PageSourceStatic, nil
	}

	for _, source := range []heap.PageSource{heap.PageSourceStatic, heap.PageSourceMultipleSBE, heap.PageSourceDBE} {
		if strings.EqualFold(source.String(), str) {
			return source, nil
		}
	}

	return 0, errors.Errorf("unknown page source %q", str)
}

// CreateOptions converts the description into options for heap.New. Regions are returned in the order
// they were written.
func (c *Config) CreateOptions() (heap.CreateOptions, error) {
	heapType, err := c.HeapType()
	if err != nil {
		return heap.CreateOptions{}, err
	}

	options := heap.CreateOptions{
		HeapType:          heapType,
		TextureClients:    c.TextureClients,
		ShuffleStrides:    c.ShuffleStrides,
		BigPageSize:       uint64(c.BigPageSize),
		HostPageSize:      uint64(c.HostPageSize),
		MaxBlacklistPages: c.MaxBlacklistPages,
		PreferSlowRegion:  c.PreferSlowRegion,
	}

	for _, name := range c.Flags {
		flag, ok := heap.ParseCreateFlag(name)
		if !ok {
			return heap.CreateOptions{}, errors.Errorf("unknown heap flag %q", name)
		}
		options.Flags |= flag
	}

	if len(c.Placement) > 0 {
		options.Placement = make(map[heap.PlacementClass]heap.GrowDirection, len(c.Placement))
		for name, directionName := range c.Placement {
			class, ok := heap.ParsePlacementClass(name)
			if !ok {
				return heap.CreateOptions{}, errors.Errorf("unknown placement class %q", name)
			}

			direction, err := parseDirection(directionName)
			if err != nil {
				return heap.CreateOptions{}, errors.Wrapf(err, "placement class %s", name)
			}
			options.Placement[class] = direction
		}
	}

	if len(c.Regions) > 0 {
		regions := make(heap.StaticRegions, 0, len(c.Regions))
		for i, region := range c.Regions {
			if region.Size == 0 {
				return heap.CreateOptions{}, errors.Errorf("region %d has no size", i)
			}

			regions = append(regions, heap.Region{
				Base:                uint64(region.Base),
				Limit:               uint64(region.Base) + uint64(region.Size) - 1,
				Reserved:            region.Reserved,
				InternalHeap:        region.InternalHeap,
				SupportsCompression: region.SupportsCompression,
				SupportsISO:         region.SupportsISO,
				Protected:           region.Protected,
				Performance:         region.Performance,
			})
		}
		options.Regions = regions
	}

	return options, nil
}

// Blacklist returns the configured bad pages
func (c *Config) Blacklist() ([]heap.BadPage, error) {
	pages := make([]heap.BadPage, 0, len(c.BadPages))
	for _, page := range c.BadPages {
		source, err := parsePageSource(page.Source)
		if err != nil {
			return nil, errors.Wrapf(err, "bad page %s", strconv.FormatUint(uint64(page.Address), 16))
		}

		pages = append(pages, heap.BadPage{
			Address: uint64(page.Address),
			Source:  source,
		})
	}

	return pages, nil
}
