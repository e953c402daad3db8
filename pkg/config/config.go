package config

import (
	"github.com/Sriram-PR/sitemap-gen/pkg/sitemap"
)

const (
	DefaultMaxLinks        = 50000
	DefaultPriority        = 1.0
	DefaultChangeFrequency = sitemap.ChangeWeekly
	DefaultDriver          = "sqlite"
	DefaultStateDir        = "./sitemap_state"
)

// Config is the whole run description. It is loaded once and treated as read-only afterwards.
type Config struct {
	BaseURL            string         `yaml:"base_url"`
	Database           DatabaseConfig `yaml:"database"`
	ConnectionString   string         `yaml:"connection_string,omitempty"` // Legacy single-string DSN, implies driver sqlserver
	OutputDir          string         `yaml:"output_dir,omitempty"`
	StateDir           string         `yaml:"state_dir,omitempty"`
	ParallelBatches    int            `yaml:"parallel_batches,omitempty"` // <= 1 runs batches sequentially
	RobotsFile         string         `yaml:"robots_file,omitempty"`      // Local path or http(s) URL of robots.txt to check URLs against
	MetricsFile        string         `yaml:"metrics_file,omitempty"`     // node-exporter textfile written after each run
	WriteStructureFile bool           `yaml:"write_structure_file,omitempty"`
	Batches            []BatchConfig  `yaml:"batches"`
}

// DatabaseConfig describes the data source connection. The engine treats it as opaque.
type DatabaseConfig struct {
	Driver  string `yaml:"driver,omitempty"`  // database/sql driver name: "sqlite" or "sqlserver"
	DSN     string `yaml:"dsn"`               // Driver specific connection string
	Dialect string `yaml:"dialect,omitempty"` // Paging dialect: "ansi" or "sqlserver"; derived from driver when empty
}

// BatchConfig is one logical entity set producing its own sitemap file(s)
type BatchConfig struct {
	Name               string                  `yaml:"name"`
	MaxLinks           int                     `yaml:"max_links,omitempty"`
	URL                string                  `yaml:"url"` // Template, e.g. "products/{Id}/{Name:NormalizeString('-')}"
	SelectQuery        string                  `yaml:"select_query"`
	OrderByColumn      string                  `yaml:"order_by_column"`
	ModifiedDateColumn string                  `yaml:"modified_date_column,omitempty"`
	ChangeFrequency    sitemap.ChangeFrequency `yaml:"change_frequency,omitempty"`
	Priority           *float64                `yaml:"priority,omitempty"`
	Compress           *bool                   `yaml:"compress,omitempty"`
}

// GetEffectiveMaxLinks returns the page size / per-file cap
func (b BatchConfig) GetEffectiveMaxLinks() int {
	if b.MaxLinks > 0 {
		return b.MaxLinks
	}
	return DefaultMaxLinks
}

// GetEffectivePriority returns the configured priority or the default of 1.0
func (b BatchConfig) GetEffectivePriority() float64 {
	if b.Priority != nil {
		return *b.Priority
	}
	return DefaultPriority
}

// GetEffectiveCompress determines whether the batch's files are gzipped (default true)
func (b BatchConfig) GetEffectiveCompress() bool {
	if b.Compress != nil {
		return *b.Compress
	}
	return true
}

// GetEffectiveChangeFrequency returns the configured change frequency or weekly
func (b BatchConfig) GetEffectiveChangeFrequency() sitemap.ChangeFrequency {
	if b.ChangeFrequency != "" {
		return b.ChangeFrequency
	}
	return DefaultChangeFrequency
}

// GetEffectiveDialect returns the paging dialect for the configured driver
func (d DatabaseConfig) GetEffectiveDialect() string {
	if d.Dialect != "" {
		return d.Dialect
	}
	if d.Driver == "sqlserver" || d.Driver == "mssql" {
		return "sqlserver"
	}
	return "ansi"
}

// Batch returns the batch called name
func (c *Config) Batch(name string) (BatchConfig, bool) {
	for _, b := range c.Batches {
		if b.Name == name {
			return b, true
		}
	}
	return BatchConfig{}, false
}
