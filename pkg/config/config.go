// Package config carries the declarative description of a preparation
// run: the source loader, the stage chain, parallelism and cache
// settings. Configurations load from YAML or JSON files, with
// environment variables overriding the operational knobs.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"sigs.k8s.io/yaml"

	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/factory"
)

// Strategy selects how the pipeline materializes features.
type Strategy string

const (
	// StrategyOnline featurizes lazily at consumption time.
	StrategyOnline Strategy = "online"
	// StrategyCached featurizes eagerly up front and caches the result.
	StrategyCached Strategy = "cached"
	// StrategyFiles writes selected features to one file per sample.
	StrategyFiles Strategy = "files"
)

// Config describes one preparation run.
type Config struct {
	Strategy Strategy     `json:"strategy,omitempty"`
	Loader   factory.Spec `json:"loader"`

	Featurizers   []factory.Spec `json:"featurizers,omitempty"`
	Transformers  []factory.Spec `json:"transformers,omitempty"`
	Augmentations []factory.Spec `json:"static_augmentations,omitempty"`

	// Observers maps event types to handler specs built through the
	// factory family "EventHandler" and subscribed at run construction.
	Observers map[string][]factory.Spec `json:"observers,omitempty"`

	FeaturizationJobs int    `json:"featurization_jobs,omitempty"`
	CacheLocation     string `json:"cache_location,omitempty"`
	ClearCache        bool   `json:"clear_cache,omitempty"`
	UseDisk           bool   `json:"use_disk,omitempty"`
	DiskDir           string `json:"disk_dir,omitempty"`

	// Export drives the files strategy.
	Export *ExportConfig `json:"export,omitempty"`

	OutputPath string `json:"output_path"`
	LogLevel   string `json:"log_level,omitempty"`
	UseCUDA    bool   `json:"use_cuda,omitempty"`
}

// ExportConfig selects which prepared fields the files strategy writes
// out and where.
type ExportConfig struct {
	// Folder receives one subdirectory per exported field.
	Folder string `json:"folder"`

	// Fields are the sample input fields to export, one file each.
	Fields []string `json:"fields"`

	// NameBy picks the input field whose value names each file.
	// Files are named by sample ID when empty.
	NameBy string `json:"name_by,omitempty"`

	// Overwrite regenerates files that already exist.
	Overwrite bool `json:"overwrite,omitempty"`
}

// Default returns a configuration with the operational defaults
// filled in. Stage specs start empty.
func Default() *Config {
	return &Config{
		Strategy:          StrategyCached,
		FeaturizationJobs: 4,
		CacheLocation:     filepath.Join(os.TempDir(), "prepkit-cache"),
		LogLevel:          "info",
	}
}

// Load reads a configuration file. YAML and JSON both parse.
func Load(path string) (*Config, error) {
	cfg, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithEnv reads a configuration file, then lets an optional .env
// file and the process environment override the operational knobs.
func LoadWithEnv(path, envFile string) (*Config, error) {
	cfg, err := parse(path)
	if err != nil {
		return nil, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.WrapAs(err, errors.CategoryConfig, "config", "cannot load env file %s", envFile)
		}
	}
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapAs(err, errors.CategoryConfig, "config", "cannot read %s", path)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapAs(err, errors.CategoryConfig, "config", "cannot parse %s", path)
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("PREP_CACHE_LOCATION"); v != "" {
		cfg.CacheLocation = v
	}
	if v := os.Getenv("PREP_OUTPUT_PATH"); v != "" {
		cfg.OutputPath = v
	}
	if v := os.Getenv("PREP_FEATURIZATION_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FeaturizationJobs = n
		}
	}
	if v := os.Getenv("PREP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PREP_CLEAR_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ClearCache = b
		}
	}
	if v := os.Getenv("PREP_USE_DISK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UseDisk = b
		}
	}
}

// Validate checks the record against the registered stage variants, so
// unknown types surface before any work starts.
func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategyOnline, StrategyCached, StrategyFiles:
	default:
		return errors.Configf("config", "strategy must be online, cached or files, got %q", c.Strategy)
	}

	if len(c.Loader) == 0 {
		return errors.Configf("config", "loader is required")
	}
	if _, err := factory.Resolve("Loader", c.Loader); err != nil {
		return err
	}

	if c.FeaturizationJobs < 1 {
		return errors.Configf("config", "featurization_jobs must be at least 1, got %d", c.FeaturizationJobs)
	}
	if c.CacheLocation == "" {
		return errors.Configf("config", "cache_location is required")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Configf("config", "log_level must be one of: debug, info, warn, error")
	}

	if c.Strategy == StrategyFiles && c.Export == nil {
		return errors.Configf("config", "files strategy requires an export section")
	}
	if c.Export != nil {
		if c.Export.Folder == "" {
			return errors.Configf("config", "export.folder is required")
		}
		if len(c.Export.Fields) == 0 {
			return errors.Configf("config", "export.fields must name at least one field")
		}
	}

	for _, spec := range c.Featurizers {
		if _, err := factory.Resolve("Featurizer", spec); err != nil {
			return err
		}
	}
	for _, spec := range c.Transformers {
		if _, err := factory.Resolve("Transformer", spec); err != nil {
			return err
		}
	}
	for _, spec := range c.Augmentations {
		if _, err := factory.Resolve("Augmentation", spec); err != nil {
			return err
		}
	}
	for event, handlers := range c.Observers {
		if event == "" {
			return errors.Configf("config", "observer event type must not be empty")
		}
		for _, spec := range handlers {
			if _, err := factory.Resolve("EventHandler", spec); err != nil {
				return err
			}
		}
	}
	return nil
}

// CloneWith deep-copies the configuration and applies overrides to the
// copy. Derived runs (augmentation passes, per-fold splits) use it so
// the base record stays untouched.
func (c *Config) CloneWith(mutate func(*Config)) (*Config, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, errors.WrapAs(err, errors.CategoryConfig, "config", "cannot clone configuration")
	}

	clone := &Config{}
	if err := json.Unmarshal(data, clone); err != nil {
		return nil, errors.WrapAs(err, errors.CategoryConfig, "config", "cannot clone configuration")
	}
	if mutate != nil {
		mutate(clone)
	}
	return clone, nil
}

// Device names the compute device featurizers should bind to.
func (c *Config) Device() string {
	if c.UseCUDA {
		return "cuda"
	}
	return "cpu"
}

// MaterializeOutput creates the timestamped run directory under
// OutputPath and snapshots the configuration into it as both JSON and
// YAML. It returns the run directory.
func (c *Config) MaterializeOutput() (string, error) {
	runDir := filepath.Join(c.OutputPath, time.Now().Format("2006-01-02_15-04"))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", errors.WrapAs(err, errors.CategoryStorage, "config", "cannot create run directory %s", runDir)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", errors.WrapAs(err, errors.CategoryConfig, "config", "cannot snapshot configuration")
	}
	if err := os.WriteFile(filepath.Join(runDir, "config.json"), data, 0644); err != nil {
		return "", errors.WrapAs(err, errors.CategoryStorage, "config", "cannot write configuration snapshot")
	}

	asYAML, err := yaml.JSONToYAML(data)
	if err != nil {
		return "", errors.WrapAs(err, errors.CategoryConfig, "config", "cannot snapshot configuration")
	}
	if err := os.WriteFile(filepath.Join(runDir, "config.yaml"), asYAML, 0644); err != nil {
		return "", errors.WrapAs(err, errors.CategoryStorage, "config", "cannot write configuration snapshot")
	}
	return runDir, nil
}
