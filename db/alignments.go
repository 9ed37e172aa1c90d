package db

import (
	"fmt"
	"sort"

	"hermannm.dev/enumnames"
)

// Alignment is the rounding rule that snaps a reprojected coordinate onto the grid.
type Alignment uint8

const (
	AlignmentFloor Alignment = iota + 1
	AlignmentCeil
	AlignmentRound
)

// The names are also the DuckDB function names applied in the binning expression.
var alignmentFunctions = enumnames.NewMap(map[Alignment]string{
	AlignmentFloor: "floor",
	AlignmentCeil:  "ceil",
	AlignmentRound: "round",
})

// Accepted alignment names. The center/centroid aliases round the coordinate rather than moving
// it to the bin midpoint; this matches how existing stores were generated.
var alignmentsByName = map[string]Alignment{
	"floor":      AlignmentFloor,
	"ceil":       AlignmentCeil,
	"round":      AlignmentRound,
	"center":     AlignmentRound,
	"centroid":   AlignmentRound,
	"lowerleft":  AlignmentFloor,
	"upperright": AlignmentCeil,
}

func ParseAlignment(name string) (Alignment, error) {
	alignment, ok := alignmentsByName[name]
	if !ok {
		return 0, fmt.Errorf("%w '%s' (must be one of %v)", ErrUnknownAlignment, name, AlignmentNames())
	}
	return alignment, nil
}

func AlignmentNames() []string {
	names := make([]string, 0, len(alignmentsByName))
	for name := range alignmentsByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (alignment Alignment) IsValid() bool {
	return alignmentFunctions.ContainsEnumValue(alignment)
}

func (alignment Alignment) String() string {
	return alignmentFunctions.GetNameOrFallback(alignment, "INVALID_ALIGNMENT")
}

// Bin returns align(coordinate / resolution) * resolution.
func (alignment Alignment) Bin(coordinate Expr, resolution Expr) (Expr, error) {
	function, ok := alignmentFunctions.GetName(alignment)
	if !ok {
		return nil, fmt.Errorf("%w (value %d)", ErrUnknownAlignment, alignment)
	}
	return Mul(Fn(function, Div(coordinate, resolution)), resolution), nil
}
