package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

// keyAliases maps a folded key (lower case, no '_' or '-') to its canonical snake_case form.
// It lets the historical camelCase JSON configs load unchanged.
var keyAliases = map[string]string{
	"baseurl":            "base_url",
	"connectionstring":   "connection_string",
	"outputdir":          "output_dir",
	"statedir":           "state_dir",
	"parallelbatches":    "parallel_batches",
	"robotsfile":         "robots_file",
	"metricsfile":        "metrics_file",
	"writestructurefile": "write_structure_file",
	"maxnumberoflinks":   "max_links",
	"maxlinks":           "max_links",
	"selectquery":        "select_query",
	"orderbycolumn":      "order_by_column",
	"modifieddatecolumn": "modified_date_column",
	"changefrequency":    "change_frequency",
	"database":           "database",
	"driver":             "driver",
	"dsn":                "dsn",
	"dialect":            "dialect",
	"batches":            "batches",
	"name":               "name",
	"url":                "url",
	"priority":           "priority",
	"compress":           "compress",
}

// Load reads a YAML or JSON configuration file. Keys are matched case-insensitively and
// camelCase spellings are accepted. Validation is left to the caller.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config '%s': %w", utils.ErrFilesystem, path, err)
	}
	return Parse(data)
}

// Parse decodes configuration bytes (YAML, or JSON which is a YAML subset)
func Parse(data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: config is not valid YAML/JSON: %v", utils.ErrConfigValidation, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: config is empty", utils.ErrConfigValidation)
	}
	canonicalizeKeys(&root)

	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrConfigValidation, err)
	}
	return &cfg, nil
}

// canonicalizeKeys rewrites mapping keys in place to their snake_case form
func canonicalizeKeys(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			folded := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(key.Value))
			if canonical, ok := keyAliases[folded]; ok {
				key.Value = canonical
			}
		}
	}
	for _, child := range n.Content {
		canonicalizeKeys(child)
	}
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
