package db

import (
	"fmt"

	"hermannm.dev/enumnames"
)

type Scale uint8

const (
	ScaleTemporal Scale = iota + 1
	ScaleSpatial
	ScaleSpatioTemporal
)

// Names double as the scale suffix in macro names, so they must not contain '_'.
var scaleNames = enumnames.NewMap(map[Scale]string{
	ScaleTemporal:       "temporal",
	ScaleSpatial:        "spatial",
	ScaleSpatioTemporal: "spatiotemporal",
})

var AllScales = []Scale{ScaleTemporal, ScaleSpatial, ScaleSpatioTemporal}

func ParseScale(name string) (Scale, error) {
	for _, scale := range AllScales {
		if scale.String() == name {
			return scale, nil
		}
	}
	return 0, fmt.Errorf("%w '%s'", ErrUnknownScale, name)
}

func (scale Scale) RequiresTime() bool {
	return scale == ScaleTemporal || scale == ScaleSpatioTemporal
}

func (scale Scale) RequiresSpace() bool {
	return scale == ScaleSpatial || scale == ScaleSpatioTemporal
}

// KeyColumns are the grouping columns of an aggregation result at this scale. Fan-in joins on them.
func (scale Scale) KeyColumns() []string {
	switch scale {
	case ScaleTemporal:
		return []string{TimeColumn}
	case ScaleSpatial:
		return []string{XColumn, YColumn}
	case ScaleSpatioTemporal:
		return []string{TimeColumn, XColumn, YColumn}
	default:
		return nil
	}
}

// MacroParams are the macro parameters in call order.
func (scale Scale) MacroParams() []string {
	switch scale {
	case ScaleTemporal:
		return []string{PrecisionParam}
	case ScaleSpatial:
		return []string{ResolutionParam}
	case ScaleSpatioTemporal:
		return []string{ResolutionParam, PrecisionParam}
	default:
		return nil
	}
}

func (scale Scale) IsValid() bool {
	return scaleNames.ContainsEnumValue(scale)
}

func (scale Scale) String() string {
	return scaleNames.GetNameOrFallback(scale, "INVALID_SCALE")
}

func (scale Scale) MarshalJSON() ([]byte, error) {
	return scaleNames.MarshalToNameJSON(scale)
}

func (scale *Scale) UnmarshalJSON(bytes []byte) error {
	return scaleNames.UnmarshalFromNameJSON(bytes, scale)
}

func (scale Scale) MarshalText() ([]byte, error) {
	return []byte(scale.String()), nil
}
