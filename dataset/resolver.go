package dataset

import (
	"slices"

	"github.com/VForWaTer/tool-vforwater-loader/db"
	"hermannm.dev/wrap"
)

// Resolve derives the stored dimension layout of a dataset. With useNativeGeometry, two spatial axes
// collapse into one geometry cell; otherwise they map onto the canonical axis names in order.
// Spatial dimensionality other than 0 or 2 fails with db.ErrUnsupportedDimensions.
func Resolve(descriptor Descriptor, useNativeGeometry bool) (db.Dimensions, error) {
	dims := db.Dimensions{
		Temporal:        slices.Clone(descriptor.TemporalDims),
		Spatial:         slices.Clone(descriptor.SpatialDims),
		Variables:       slices.Clone(descriptor.VariableNames),
		UseGeometryCell: useNativeGeometry && len(descriptor.SpatialDims) == 2,
	}

	if err := dims.Validate(); err != nil {
		return db.Dimensions{}, wrap.Errorf(err, "cannot resolve dimensions of dataset %d", descriptor.ID)
	}
	return dims, nil
}

func ResolveSchema(descriptor Descriptor, useNativeGeometry bool) (db.TableSchema, error) {
	dims, err := Resolve(descriptor, useNativeGeometry)
	if err != nil {
		return db.TableSchema{}, err
	}
	return db.TableSchema{TableName: descriptor.TableName(), Dimensions: dims}, nil
}
