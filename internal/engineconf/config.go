// Package engineconf loads engine configuration from an INI file: a Config
// struct holding the raw parsed file plus typed fields with defaults.
package engineconf

import (
	"gopkg.in/ini.v1"
)

// Defaults used when a key (or the whole file) is absent.
const (
	DefaultPlanEnumerator       = "DPccp"
	DefaultCardinalityEstimator = "Cartesian"
	DefaultLogLevel             = "info"
)

// Config selects the optimizer strategies and engine-wide settings; the
// plan enumerator and cardinality estimator are chosen by name at engine
// construction.
type Config struct {
	// PlanEnumerator is one of DPsize, DPsizeOpt, DPsub, DPsubOpt, DPccp.
	PlanEnumerator string
	// CardinalityEstimator is Cartesian or Injection.
	CardinalityEstimator string
	// Database names the database the engine operates on, and the key the
	// injection estimator looks up in its JSON catalog.
	Database string
	// InjectionCatalogPath points at the injection estimator's JSON catalog;
	// ignored for the cartesian estimator.
	InjectionCatalogPath string
	// LogLevel is applied to the xlog loggers at engine construction.
	LogLevel string

	Raw *ini.File
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		PlanEnumerator:       DefaultPlanEnumerator,
		CardinalityEstimator: DefaultCardinalityEstimator,
		LogLevel:             DefaultLogLevel,
	}
}

// Load parses an INI file of the shape
//
//	[optimizer]
//	plan_enumerator = DPccp
//	cardinality_estimator = Injection
//	injection_catalog = /path/to/cardinalities.json
//
//	[engine]
//	database = imdb
//	log_level = debug
//
// Missing keys fall back to the defaults.
func Load(path string) (*Config, error) {
	raw, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	cfg.Raw = raw

	opt := raw.Section("optimizer")
	cfg.PlanEnumerator = opt.Key("plan_enumerator").MustString(DefaultPlanEnumerator)
	cfg.CardinalityEstimator = opt.Key("cardinality_estimator").MustString(DefaultCardinalityEstimator)
	cfg.InjectionCatalogPath = opt.Key("injection_catalog").String()

	eng := raw.Section("engine")
	cfg.Database = eng.Key("database").String()
	cfg.LogLevel = eng.Key("log_level").MustString(DefaultLogLevel)
	return cfg, nil
}
