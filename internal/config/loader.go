package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"

	"github.com/ekisa-team/leafsight/internal/envvar"
	"github.com/ekisa-team/leafsight/internal/xfs"
)

// SchemaFilename is the name the embedded schema is compiled under.
const SchemaFilename = "leafsight.v1.schema.json"

//go:embed leafsight.v1.schema.json
var embeddedSchema string

// LoadAndValidate loads and validates the configuration.
// An empty schemaPath validates against the embedded schema.
func LoadAndValidate(path, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	return Parse(data, schemaPath)
}

// Parse validates raw YAML against the schema and decodes it into a Config
// with defaults and environment overrides applied.
func Parse(data []byte, schemaPath string) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	// The validator expects JSON-shaped values.
	doc, err := toJSONValue(raw)
	if err != nil {
		return nil, fmt.Errorf("config: failed to normalize document: %w", err)
	}

	schema, err := compileSchema(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	config.applyDefaults()
	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyEnv overrides fields from LEAFSIGHT_* environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(envvar.LeafsightModelsPath); ok && v != "" {
		c.Storage.ModelsDir = v
	}
	if v, ok := lookup(envvar.LeafsightModelPath); ok && v != "" {
		c.Model.Path = v
	}
	if v, ok := lookup(envvar.LeafsightModelURL); ok && v != "" {
		c.Model.SetURLSource(URLSource{URL: v})
	}
	if v, ok := lookup(envvar.LeafsightONNXRuntimeLib); ok && v != "" {
		c.Model.Runtime.LibraryPath = v
	}
	if v, ok := lookup(envvar.LeafsightTopK); ok && v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k < 0 {
			return fmt.Errorf("config: invalid %s %q", envvar.LeafsightTopK, v)
		}
		c.Presentation.TopK = k
	}
	if v, ok := lookup(envvar.LeafsightConfidenceThreshold); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return fmt.Errorf("config: invalid %s %q", envvar.LeafsightConfidenceThreshold, v)
		}
		c.Presentation.ConfidenceThreshold = f
	}
	if v, ok := lookup(envvar.LeafsightServerHTTPPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid %s %q", envvar.LeafsightServerHTTPPort, v)
		}
		c.Server.HTTPPort = port
	}
	if v, ok := lookup(envvar.LeafsightServerGRPCPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid %s %q", envvar.LeafsightServerGRPCPort, v)
		}
		c.Server.GRPCPort = port
	}

	return nil
}

// Validate checks invariants the schema cannot express.
func (c *Config) Validate() error {
	var errs []error

	// A pre-placed file at model.path needs no source.
	if _, err := c.Model.GetSource(); err != nil && c.Model.Path == "" {
		errs = append(errs, err)
	}
	if c.Model.Input.Height <= 0 || c.Model.Input.Width <= 0 {
		errs = append(errs, fmt.Errorf("input size must be positive, got %dx%d", c.Model.Input.Width, c.Model.Input.Height))
	}

	seen := make(map[string]bool, len(c.Model.Labels))
	for _, label := range c.Model.Labels {
		if strings.TrimSpace(label) == "" {
			errs = append(errs, errors.New("labels must not be blank"))
			continue
		}
		if seen[label] {
			errs = append(errs, fmt.Errorf("duplicate label %q", label))
		}
		seen[label] = true
	}

	if c.Model.Backend == "command" && len(c.Model.Runtime.Command) == 0 {
		errs = append(errs, errors.New("command backend requires model.runtime.command"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ModelsPath returns the path to the models directory, with ~ expanded.
func (c *Config) ModelsPath() string {
	if c.Storage.ModelsDir != "" {
		return xfs.ExpandTilde(c.Storage.ModelsDir)
	}
	return DefaultModelsPath()
}

// ArtifactPath returns the resolved on-disk path of the configured model.
func (c *Config) ArtifactPath() string {
	if c.Model.Path != "" {
		return xfs.ExpandTilde(c.Model.Path)
	}
	return c.Model.ArtifactPath(c.ModelsPath())
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	if schemaPath != "" {
		return jsonschema.Compile(schemaPath)
	}
	return jsonschema.CompileString(SchemaFilename, embeddedSchema)
}

func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
