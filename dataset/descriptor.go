package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	"hermannm.dev/wrap"
)

// Descriptor is the metadata record of one dataset, as produced by the catalog lookup.
type Descriptor struct {
	ID           int      `json:"id"`
	VariableName string   `json:"variableName"`
	SpatialDims  []string `json:"spatialDims"`
	TemporalDims []string `json:"temporalDims"`
	// Value columns. At least one is required.
	VariableNames []string `json:"variableNames"`
}

func (descriptor Descriptor) TableName() string {
	return db.TableName(descriptor.VariableName, descriptor.ID)
}

func (descriptor Descriptor) Validate() error {
	var errs []error
	if descriptor.ID < 0 {
		errs = append(errs, fmt.Errorf("negative dataset ID %d", descriptor.ID))
	}
	if descriptor.VariableName == "" {
		errs = append(errs, errors.New("variable name is blank"))
	}
	if len(descriptor.VariableNames) == 0 {
		errs = append(errs, errors.New("no variable names"))
	}
	if len(errs) != 0 {
		return wrap.Errors(fmt.Sprintf("invalid descriptor for dataset %d", descriptor.ID), errs...)
	}
	return nil
}

// FileMapping pairs a dataset with the data the loading stage produced for it. DataPath may be a
// file or a directory of files.
type FileMapping struct {
	Descriptor Descriptor `json:"entry"`
	DataPath   string     `json:"dataPath"`
}

func ReadFileMappings(reader io.Reader) ([]FileMapping, error) {
	var mappings []FileMapping
	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&mappings); err != nil {
		return nil, wrap.Error(err, "failed to decode file mappings")
	}

	var errs []error
	for i, mapping := range mappings {
		if err := mapping.Descriptor.Validate(); err != nil {
			errs = append(errs, wrap.Errorf(err, "mapping %d", i))
		}
		if mapping.DataPath == "" {
			errs = append(errs, fmt.Errorf("mapping %d has no data path", i))
		}
	}
	if len(errs) != 0 {
		return nil, wrap.Errors("invalid file mappings", errs...)
	}

	return mappings, nil
}

func ReadFileMappingsFile(path string) ([]FileMapping, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, wrap.Errorf(err, "failed to open file mappings '%s'", path)
	}
	defer file.Close()

	return ReadFileMappings(file)
}
