package db

import "errors"

var (
	// A dimension layout the generators cannot handle, e.g. 1D or 3D spatial data.
	ErrUnsupportedDimensions = errors.New("unsupported dimensionality")

	ErrUnknownAlignment = errors.New("unknown cell alignment")

	ErrUnknownScale = errors.New("unknown aggregation scale")

	// No macro is registered for a table at a requested scale. Callers skip the table.
	ErrMacroNotFound = errors.New("no aggregation macro for this table and scale")

	// A catalog name did not decode under the macro naming convention. This means the encoder and
	// the decoder have drifted apart, and is never expected at runtime.
	ErrMalformedMacroName = errors.New("malformed aggregation macro name")
)
