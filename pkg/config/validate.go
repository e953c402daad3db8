package config

import (
	"fmt"
	"strings"

	"github.com/Sriram-PR/sitemap-gen/pkg/parse"
	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

// reservedBatchName would collide with the root index file
const reservedBatchName = "sitemap"

// Validate checks Config fields and applies defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *Config) Validate() (warnings []string, err error) {
	// BaseURL
	if strings.TrimSpace(c.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base_url is required", utils.ErrConfigValidation)
	}
	normalized, nerr := parse.NormalizeBaseURL(c.BaseURL)
	if nerr != nil {
		return nil, fmt.Errorf("%w: base_url: %v", utils.ErrConfigValidation, nerr)
	}
	if normalized != c.BaseURL {
		warnings = append(warnings, fmt.Sprintf("base_url normalized from %q to %q", c.BaseURL, normalized))
		c.BaseURL = normalized
	}

	// Database
	if c.Database.DSN == "" && c.ConnectionString != "" {
		c.Database.DSN = c.ConnectionString
		if c.Database.Driver == "" {
			c.Database.Driver = "sqlserver"
		}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	switch c.Database.GetEffectiveDialect() {
	case "ansi", "sqlserver":
	default:
		return nil, fmt.Errorf("%w: database.dialect %q is not one of ansi, sqlserver", utils.ErrConfigValidation, c.Database.Dialect)
	}

	// StateDir
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}

	// ParallelBatches
	if c.ParallelBatches < 0 {
		return nil, fmt.Errorf("%w: parallel_batches cannot be negative", utils.ErrConfigValidation)
	}

	// Batches
	if len(c.Batches) == 0 {
		return nil, fmt.Errorf("%w: no batches configured", utils.ErrConfigValidation)
	}
	seen := make(map[string]bool, len(c.Batches))
	for i := range c.Batches {
		batchWarnings, berr := c.Batches[i].Validate()
		if berr != nil {
			return nil, fmt.Errorf("batch #%d: %w", i+1, berr)
		}
		warnings = append(warnings, batchWarnings...)

		// Names become file and folder names, so uniqueness ignores case.
		key := strings.ToLower(c.Batches[i].Name)
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate batch name %q", utils.ErrConfigValidation, c.Batches[i].Name)
		}
		seen[key] = true
	}

	return warnings, nil
}

// Validate checks BatchConfig fields and applies defaults.
// Returns collected warnings and any fatal error.
func (b *BatchConfig) Validate() (warnings []string, err error) {
	// Required: Name
	if b.Name == "" {
		return nil, fmt.Errorf("%w: batch needs a name", utils.ErrConfigValidation)
	}
	if !utils.IsSafeFilename(b.Name) {
		return nil, fmt.Errorf("%w: batch name %q cannot be used as a file name (try %q)",
			utils.ErrConfigValidation, b.Name, utils.SanitizeFilename(b.Name))
	}
	if strings.EqualFold(b.Name, reservedBatchName) {
		return nil, fmt.Errorf("%w: batch name %q is reserved for the root index", utils.ErrConfigValidation, b.Name)
	}

	// Required: URL template, query and ordering column
	if strings.TrimSpace(b.URL) == "" {
		return nil, fmt.Errorf("%w: batch %q needs url", utils.ErrConfigValidation, b.Name)
	}
	if strings.TrimSpace(b.SelectQuery) == "" {
		return nil, fmt.Errorf("%w: batch %q needs select_query", utils.ErrConfigValidation, b.Name)
	}
	if strings.TrimSpace(b.OrderByColumn) == "" {
		return nil, fmt.Errorf("%w: batch %q needs order_by_column", utils.ErrConfigValidation, b.Name)
	}

	// MaxLinks
	if b.MaxLinks < 0 {
		return nil, fmt.Errorf("%w: batch %q max_links cannot be negative", utils.ErrConfigValidation, b.Name)
	}
	if b.MaxLinks == 0 {
		b.MaxLinks = DefaultMaxLinks
	}
	if b.MaxLinks > DefaultMaxLinks {
		warnings = append(warnings, fmt.Sprintf(
			"batch %q max_links %d exceeds the protocol limit of %d URLs per file", b.Name, b.MaxLinks, DefaultMaxLinks))
	}

	// Priority
	if b.Priority != nil && (*b.Priority < 0 || *b.Priority > 1) {
		return nil, fmt.Errorf("%w: batch %q priority %v outside [0,1]", utils.ErrConfigValidation, b.Name, *b.Priority)
	}
	if b.Priority == nil {
		p := DefaultPriority
		b.Priority = &p
	}

	// ChangeFrequency
	if b.ChangeFrequency == "" {
		b.ChangeFrequency = DefaultChangeFrequency
	}

	// Compress
	if b.Compress == nil {
		compress := true
		b.Compress = &compress
	}

	// ModifiedDateColumn
	if b.ModifiedDateColumn == "" {
		warnings = append(warnings, fmt.Sprintf(
			"batch %q has no modified_date_column, every lastmod will be the generation time", b.Name))
	}

	return warnings, nil
}
