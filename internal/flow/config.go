package flow

import (
	"fmt"
	"os"
	"strings"

	"github.com/BTreeMap/SearchPipe/internal/models"
	"gopkg.in/yaml.v3"
)

// Workflow defaults applied to unset configuration fields.
const (
	DefaultResultPageSize = 5
	MaxResultPageSize     = 50
	DefaultKeywordPrompt  = "What would you like to search for? Type a few keywords."
	DefaultSummaryFormat  = "Done! For future reference, you selected these items: %s"
)

// DefaultCancelCommands end a conversation from any step.
var DefaultCancelCommands = []string{"cancel", "reset", "start over"}

// Config is the workflow configuration accepted by NewOrchestrator.
type Config struct {
	Facets              []FacetSpec `yaml:"facets"`
	MultipleSelection   bool        `yaml:"multiple_selection"`
	AllowEmptySelection bool        `yaml:"allow_empty_selection"`
	ResultPageSize      int         `yaml:"result_page_size"`
	KeywordPrompt       string      `yaml:"keyword_prompt"`
	SummaryFormat       string      `yaml:"summary_format"`
	CancelCommands      []string    `yaml:"cancel_commands"`
}

// DefaultConfig returns the job listing workflow: refine by business title, then
// pick any number of postings.
func DefaultConfig() Config {
	return Config{
		Facets: []FacetSpec{
			{
				Name:   "business_title",
				Prompt: "Hi! To get started, what kind of position are you looking for?",
			},
		},
		MultipleSelection: true,
		ResultPageSize:    DefaultResultPageSize,
		KeywordPrompt:     DefaultKeywordPrompt,
		SummaryFormat:     "Done! For future reference, you selected these job listings: %s",
		CancelCommands:    append([]string(nil), DefaultCancelCommands...),
	}
}

// LoadConfig reads a YAML workflow configuration from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read workflow config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML workflow configuration, fills defaults and validates it.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.ResultPageSize == 0 {
		c.ResultPageSize = DefaultResultPageSize
	}
	if strings.TrimSpace(c.KeywordPrompt) == "" {
		c.KeywordPrompt = DefaultKeywordPrompt
	}
	if strings.TrimSpace(c.SummaryFormat) == "" {
		c.SummaryFormat = DefaultSummaryFormat
	}
	if c.CancelCommands == nil {
		c.CancelCommands = append([]string(nil), DefaultCancelCommands...)
	}
	return c
}

// Validate checks the configuration. Errors wrap models.ErrInvalidConfig.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Facets))
	for i := range c.Facets {
		f := c.Facets[i]
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: facet %d has no name", models.ErrInvalidConfig, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate facet %q", models.ErrInvalidConfig, f.Name)
		}
		seen[f.Name] = true
		if strings.TrimSpace(f.Prompt) == "" {
			return fmt.Errorf("%w: facet %q has no prompt", models.ErrInvalidConfig, f.Name)
		}
		if err := f.compile(); err != nil {
			return fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
		}
	}
	if c.ResultPageSize < 1 || c.ResultPageSize > MaxResultPageSize {
		return fmt.Errorf("%w: result page size must be between 1 and %d, got %d",
			models.ErrInvalidConfig, MaxResultPageSize, c.ResultPageSize)
	}
	if !strings.Contains(c.SummaryFormat, "%s") {
		return fmt.Errorf("%w: summary format must contain %%s", models.ErrInvalidConfig)
	}
	return nil
}
