package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"hermannm.dev/wrap"
)

type Config struct {
	Paths       Paths
	Store       Store
	Aggregation Aggregation
	Workers     int `env:"WORKERS" envDefault:"4"`
}

type Paths struct {
	BasePath          string `env:"BASE_PATH"           envDefault:"/out"`
	DatasetFolderName string `env:"DATASET_FOLDER_NAME" envDefault:"datasets"`
	ResultFolderName  string `env:"RESULT_FOLDER_NAME"  envDefault:"results"`
	// JSON list of dataset.FileMapping. Defaults to file_mappings.json in the dataset folder.
	FileMappings string `env:"FILE_MAPPINGS"`
	// Prometheus textfile written at the end of a run. Disabled when blank.
	MetricsFile string `env:"METRICS_FILE"`
}

type Store struct {
	// Defaults to dataset.duckdb in the base path.
	DatabasePath      string `env:"DATABASE_PATH"`
	UseNativeGeometry bool   `env:"USE_NATIVE_GEOMETRY" envDefault:"true"`
	SpatialExtension  bool   `env:"SPATIAL_EXTENSION"   envDefault:"true"`
}

type Aggregation struct {
	Precision  string  `env:"PRECISION"   envDefault:"day"`
	Resolution float64 `env:"RESOLUTION"  envDefault:"1000"`
	SourceEPSG int     `env:"SOURCE_EPSG" envDefault:"4326"`
	TargetEPSG int     `env:"TARGET_EPSG" envDefault:"3857"`
	Alignment  string  `env:"ALIGNMENT"   envDefault:"floor"`
	// "all", "none", or a comma-separated list of scale names.
	Scales string `env:"AGGREGATION_SCALES" envDefault:"all"`
	// Comma-separated subset of the default aggregation functions. All when blank.
	Functions string `env:"AGGREGATION_FUNCTIONS"`
}

const (
	ScalesAll  = "all"
	ScalesNone = "none"
)

// Accepted date_trunc parts.
//
// See https://duckdb.org/docs/sql/functions/datepart
var Precisions = []string{
	"microseconds", "milliseconds", "second", "minute", "hour", "day", "week", "month", "quarter",
	"year", "decade", "century", "millennium",
}

// ReadFromEnv loads .env if present, then parses the environment.
func ReadFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, wrap.Error(err, "failed to load .env file")
	}

	var config Config
	if err := env.ParseWithOptions(&config, env.Options{}); err != nil {
		return Config{}, wrap.Error(err, "failed to parse environment")
	}
	return config, nil
}

func (config Config) Validate() error {
	var errs []error

	if config.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS must be at least 1, got %d", config.Workers))
	}
	if config.Paths.BasePath == "" && config.Store.DatabasePath == "" {
		errs = append(errs, errors.New("one of BASE_PATH and DATABASE_PATH must be set"))
	}
	if !slices.Contains(Precisions, config.Aggregation.Precision) {
		errs = append(errs, fmt.Errorf(
			"invalid PRECISION '%s' (must be one of %v)", config.Aggregation.Precision, Precisions,
		))
	}
	if config.Aggregation.Resolution <= 0 {
		errs = append(errs, fmt.Errorf("RESOLUTION must be positive, got %g", config.Aggregation.Resolution))
	}
	if config.Aggregation.SourceEPSG <= 0 || config.Aggregation.TargetEPSG <= 0 {
		errs = append(errs, errors.New("SOURCE_EPSG and TARGET_EPSG must be positive EPSG codes"))
	}
	if config.Store.UseNativeGeometry && !config.Store.SpatialExtension {
		errs = append(errs, errors.New("USE_NATIVE_GEOMETRY requires SPATIAL_EXTENSION to be enabled"))
	}
	if _, err := config.Scales(); err != nil {
		errs = append(errs, err)
	}
	if _, err := config.MacroOptions(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) != 0 {
		return wrap.Errors("invalid configuration", errs...)
	}
	return nil
}

func (config Config) DatasetPath() string {
	return filepath.Join(config.Paths.BasePath, config.Paths.DatasetFolderName)
}

func (config Config) ResultPath() string {
	return filepath.Join(config.Paths.BasePath, config.Paths.ResultFolderName)
}

func (config Config) DatabasePath() string {
	if config.Store.DatabasePath != "" {
		return config.Store.DatabasePath
	}
	return filepath.Join(config.Paths.BasePath, "dataset.duckdb")
}

func (config Config) FileMappingsPath() string {
	if config.Paths.FileMappings != "" {
		return config.Paths.FileMappings
	}
	return filepath.Join(config.DatasetPath(), "file_mappings.json")
}

// Scales returns the enabled aggregation scales. An empty result means aggregation is disabled.
func (config Config) Scales() ([]db.Scale, error) {
	value := strings.TrimSpace(strings.ToLower(config.Aggregation.Scales))
	switch value {
	case ScalesAll, "":
		return slices.Clone(db.AllScales), nil
	case ScalesNone:
		return nil, nil
	}

	var scales []db.Scale
	for _, name := range strings.Split(value, ",") {
		scale, err := db.ParseScale(strings.TrimSpace(name))
		if err != nil {
			return nil, wrap.Error(err, "invalid AGGREGATION_SCALES")
		}
		if !slices.Contains(scales, scale) {
			scales = append(scales, scale)
		}
	}
	return scales, nil
}

func (config Config) MacroOptions() (db.MacroOptions, error) {
	alignment, err := db.ParseAlignment(config.Aggregation.Alignment)
	if err != nil {
		return db.MacroOptions{}, wrap.Error(err, "invalid ALIGNMENT")
	}

	functions := db.DefaultFunctions()
	if labels := splitList(config.Aggregation.Functions); len(labels) != 0 {
		functions, err = functions.Subset(labels...)
		if err != nil {
			return db.MacroOptions{}, wrap.Error(err, "invalid AGGREGATION_FUNCTIONS")
		}
	}

	return db.MacroOptions{
		Functions:  functions,
		Alignment:  alignment,
		SourceEPSG: config.Aggregation.SourceEPSG,
		TargetEPSG: config.Aggregation.TargetEPSG,
	}, nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
