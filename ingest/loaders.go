package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/VForWaTer/tool-vforwater-loader/csv"
	"github.com/VForWaTer/tool-vforwater-loader/db"
	"hermannm.dev/enumnames"
	"hermannm.dev/wrap"
)

var (
	// The format is known, but produced as Parquet by the loading stage before it gets here.
	ErrUnsupportedFileType = errors.New("file type is not supported by this loader")

	ErrUnknownFileType = errors.New("unknown file type")
)

type Loader uint8

const (
	LoaderParquet Loader = iota + 1
	LoaderCSV
)

var loaderNames = enumnames.NewMap(map[Loader]string{
	LoaderParquet: "parquet",
	LoaderCSV:     "csv",
})

func (loader Loader) String() string {
	return loaderNames.GetNameOrFallback(loader, "unknown")
}

var unsupportedSuffixes = map[string]string{
	".nc":      "netCDF",
	".nc4":     "netCDF",
	".cdf":     "netCDF",
	".netcdf":  "netCDF",
	".tif":     "GeoTIFF",
	".tiff":    "GeoTIFF",
	".geotiff": "GeoTIFF",
}

// LoaderFor picks the loader from the file suffix.
func LoaderFor(path string) (Loader, error) {
	suffix := strings.ToLower(filepath.Ext(path))
	switch suffix {
	case ".parquet":
		return LoaderParquet, nil
	case ".csv":
		return LoaderCSV, nil
	}

	if format, ok := unsupportedSuffixes[suffix]; ok {
		return 0, fmt.Errorf("%w: %s file '%s'", ErrUnsupportedFileType, format, path)
	}
	return 0, fmt.Errorf("%w '%s' for file '%s'", ErrUnknownFileType, suffix, path)
}

func (loader Loader) load(
	ctx context.Context,
	store db.AggregationStore,
	schema db.TableSchema,
	path string,
) (rowCount int64, err error) {
	switch loader {
	case LoaderParquet:
		return store.InsertFromFile(ctx, schema, path)
	case LoaderCSV:
		return loadCSV(ctx, store, schema, path)
	default:
		return 0, fmt.Errorf("invalid loader %d", loader)
	}
}

func loadCSV(
	ctx context.Context,
	store db.AggregationStore,
	schema db.TableSchema,
	path string,
) (rowCount int64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, wrap.Errorf(err, "failed to open '%s'", path)
	}
	defer file.Close()

	reader, err := csv.NewReader(file)
	if err != nil {
		return 0, wrap.Errorf(err, "failed to read CSV file '%s'", path)
	}

	nativeColumns := schema.Dimensions.NativeColumns()
	names := make([]string, 0, len(nativeColumns))
	for _, column := range nativeColumns {
		names = append(names, column.Name)
	}

	rows, err := reader.Select(names)
	if err != nil {
		return 0, wrap.Errorf(err, "CSV file '%s' does not match dataset dimensions", path)
	}

	return store.AppendRows(ctx, schema, rows)
}

// ExpandPath returns the path itself if it is a file, or every regular file below it if it is a
// directory, sorted.
func ExpandPath(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, wrap.Errorf(err, "failed to stat data path '%s'", path)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(filePath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type().IsRegular() {
			files = append(files, filePath)
		}
		return nil
	})
	if err != nil {
		return nil, wrap.Errorf(err, "failed to list files in '%s'", path)
	}
	return files, nil
}

const MetadataFileSuffix = ".metadata.json"

// FindMetadataFiles lists the metadata files directly inside the dataset folder.
func FindMetadataFiles(directory string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(directory, "*"+MetadataFileSuffix))
	if err != nil {
		return nil, wrap.Errorf(err, "failed to search '%s' for metadata files", directory)
	}
	return matches, nil
}
