package config

import (
	"fmt"
	"strings"

	"github.com/drone/envsubst"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/grafana/elfdiff/pkg/classify"
	"github.com/grafana/elfdiff/pkg/diff"
	"github.com/grafana/elfdiff/pkg/summary"
	"github.com/grafana/elfdiff/pkg/util"
)

// Config is the content of an elfdiff rules file. Every field may be
// overridden from the command line.
type Config struct {
	Scheme       string                `yaml:"scheme"`
	Overlay      string                `yaml:"overlay"`
	SysVVerbatim bool                  `yaml:"sysv_verbatim"`
	CommonFiles  *bool                 `yaml:"common_files,omitempty"`
	Concurrency  util.ConcurrencyLimit `yaml:"concurrency"`
	CacheSize    int                   `yaml:"cache_size"`

	Sections SectionsConfig `yaml:"sections"`
	Groups   GroupsConfig   `yaml:"groups"`
	Sort     SortConfig     `yaml:"sort"`
}

// SectionsConfig holds the section name lists.
type SectionsConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
	Select  []string `yaml:"select"`
}

// GroupsConfig adjusts the grouping of the schemes.
type GroupsConfig struct {
	Overrides map[string]string `yaml:"overrides"`
	Patterns  []PatternConfig   `yaml:"patterns"`
}

type PatternConfig struct {
	Group  string `yaml:"group"`
	Regexp string `yaml:"regexp"`
}

type SortConfig struct {
	Groups     string `yaml:"groups"`
	Files      string `yaml:"files"`
	Order      string `yaml:"order"`
	TopNGroups int    `yaml:"top_n_groups"`
	TopNFiles  int    `yaml:"top_n_files"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	common := true
	return &Config{
		Scheme:      classify.Berkeley.String(),
		Overlay:     classify.OverlayMove.String(),
		CommonFiles: &common,
		Sort: SortConfig{
			Groups:     "+-diff",
			Files:      "+-diff",
			Order:      diff.Desc.String(),
			TopNGroups: 10,
			TopNFiles:  10,
		},
	}
}

// Parse reads a YAML rules file on top of the defaults. With expandEnv set,
// ${VAR} references, ${VAR:-default} included, are replaced by environment
// values first.
func Parse(data []byte, expandEnv bool) (*Config, error) {
	if expandEnv {
		s, err := envsubst.EvalEnv(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to expand env vars in elfdiff config: %w", err)
		}
		data = []byte(s)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse elfdiff config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid elfdiff config: %w", err)
	}
	return cfg, nil
}

// Load reads and parses path from fsys.
func Load(fsys afero.Fs, path string, expandEnv bool) (*Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	return Parse(data, expandEnv)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := classify.ParseSchemes(c.Scheme); err != nil {
		return fmt.Errorf("scheme: %w", err)
	}
	if _, err := classify.ParseOverlayPolicy(c.Overlay); err != nil {
		return fmt.Errorf("overlay: %w", err)
	}
	order, err := diff.ParseOrder(c.Sort.Order)
	if err != nil {
		return fmt.Errorf("sort.order: %w", err)
	}
	if _, err := diff.ParseSortSpec(c.Sort.Groups, order); err != nil {
		return fmt.Errorf("sort.groups: %w", err)
	}
	if _, err := diff.ParseSortSpec(c.Sort.Files, order); err != nil {
		return fmt.Errorf("sort.files: %w", err)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative")
	}
	for name, group := range c.Groups.Overrides {
		if strings.TrimSpace(group) == "" {
			return fmt.Errorf("groups.overrides[%s]: group is required", name)
		}
	}
	for i, p := range c.Groups.Patterns {
		if p.Group == "" {
			return fmt.Errorf("groups.patterns[%d]: group is required", i)
		}
		if _, err := classify.NewPattern(p.Group, p.Regexp); err != nil {
			return fmt.Errorf("groups.patterns[%d]: %w", i, err)
		}
	}
	return nil
}

func (c *Config) Schemes() ([]classify.Scheme, error) {
	return classify.ParseSchemes(c.Scheme)
}

// Rules builds the classifier rules described by c.
func (c *Config) Rules() (classify.Rules, error) {
	overlay, err := classify.ParseOverlayPolicy(c.Overlay)
	if err != nil {
		return classify.Rules{}, err
	}
	rules := classify.Rules{
		Overrides:    c.Groups.Overrides,
		Exclude:      classify.NameSet(c.Sections.Exclude...),
		Selected:     classify.NameSet(c.Sections.Select...),
		Overlay:      overlay,
		SysVVerbatim: c.SysVVerbatim,
	}
	for _, p := range c.Groups.Patterns {
		pattern, err := classify.NewPattern(p.Group, p.Regexp)
		if err != nil {
			return classify.Rules{}, err
		}
		rules.Patterns = append(rules.Patterns, pattern)
	}
	return rules, nil
}

// Filter returns the section filter. Excluded sections are kept so that
// they end up in the EXCLUDE group rather than disappearing.
func (c *Config) Filter() summary.Filter {
	return summary.Filter{Include: classify.NameSet(c.Sections.Include...)}
}

// SplitList splits a comma separated flag value.
func SplitList(s string) []string {
	var res []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}
