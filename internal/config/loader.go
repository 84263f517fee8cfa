package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mcpgate/internal/catalog"
	"mcpgate/internal/template"
	"mcpgate/pkg/logging"
)

const (
	userConfigDir  = ".config/mcpgate"
	configFileName = "config.yaml"

	// TargetsDir is the subdirectory holding one YAML file per target.
	TargetsDir = "targets"
)

// DefaultConfigDir returns ~/.config/mcpgate.
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// Load reads config.yaml from configDir on top of the defaults. A missing
// file yields the defaults.
func Load(configDir string) (Config, error) {
	configFilePath := filepath.Join(configDir, configFileName)
	config := Default()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, newFileError(configFilePath, ErrorTypeParse, err)
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	if config.CatalogFile != "" && !filepath.IsAbs(config.CatalogFile) {
		config.CatalogFile = filepath.Join(configDir, config.CatalogFile)
	}
	if config.OAuth.StoreDir == "" {
		config.OAuth.StoreDir = filepath.Join(configDir, "credentials")
	}
	if err := config.Validate(); err != nil {
		return Config{}, newFileError(configFilePath, ErrorTypeValidation, err)
	}
	return config, nil
}

// LoadTargets reads every targets/*.yaml file in configDir and resolves
// catalog references through r, which may be nil.
//
// Files that fail to load are skipped and reported in the returned
// *FileErrors, alongside the targets that did load. A name defaults to the
// file's base name; the first file claiming a name wins.
func LoadTargets(configDir string, r catalog.Resolver) ([]TargetConfig, error) {
	dir := filepath.Join(configDir, TargetsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("ConfigLoader", "No targets directory at %s", dir)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read targets directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !isTargetFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	var (
		targets []TargetConfig
		errs    FileErrors
		seen    = make(map[string]string)
	)
	for _, path := range files {
		t, fileErr := loadTarget(path, r)
		if fileErr != nil {
			logging.Warn("ConfigLoader", "Skipping %s: %s", path, fileErr.Message)
			errs.Add(*fileErr)
			continue
		}
		k := strings.ToLower(t.Name)
		if first, dup := seen[k]; dup {
			fe := newFileError(path, ErrorTypeValidation, fmt.Errorf("target %q is already defined in %s", t.Name, filepath.Base(first)))
			logging.Warn("ConfigLoader", "Skipping %s: %s", path, fe.Message)
			errs.Add(fe)
			continue
		}
		seen[k] = path
		targets = append(targets, t)
	}
	logging.Debug("ConfigLoader", "Loaded %d targets from %s", len(targets), dir)
	return targets, errs.errOrNil()
}

// values expands templated target fields from the process environment.
var values = template.New(nil)

func loadTarget(path string, r catalog.Resolver) (TargetConfig, *FileError) {
	data, err := os.ReadFile(path)
	if err != nil {
		fe := newFileError(path, ErrorTypeIO, err)
		return TargetConfig{}, &fe
	}
	var t TargetConfig
	if err := yaml.Unmarshal(data, &t); err != nil {
		fe := newFileError(path, ErrorTypeParse, err)
		return TargetConfig{}, &fe
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	t.Path = path
	t, err = t.ResolveCatalog(r)
	if err != nil {
		fe := newFileError(path, ErrorTypeValidation, err)
		return TargetConfig{}, &fe
	}
	t, err = t.Expand(values)
	if err != nil {
		fe := newFileError(path, ErrorTypeValidation, err)
		return TargetConfig{}, &fe
	}
	if err := t.Validate(); err != nil {
		fe := newFileError(path, ErrorTypeValidation, err)
		return TargetConfig{}, &fe
	}
	return t, nil
}

func isTargetFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
