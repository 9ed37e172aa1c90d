package db

import (
	"errors"
	"fmt"

	"hermannm.dev/wrap"
)

// AggregationFunction renders one aggregate over a value column, labelled in the result.
type AggregationFunction struct {
	Label    string
	Template func(value Expr) Expr
}

// FunctionRegistry is an ordered, immutable set of aggregation functions. Macros produce one
// output column per (variable, function) pair.
type FunctionRegistry struct {
	functions []AggregationFunction
}

func NewFunctionRegistry(functions ...AggregationFunction) (FunctionRegistry, error) {
	if len(functions) == 0 {
		return FunctionRegistry{}, errors.New("aggregation function registry is empty")
	}

	seen := make(map[string]struct{}, len(functions))
	var errs []error
	for i, function := range functions {
		if function.Label == "" {
			errs = append(errs, fmt.Errorf("function %d has a blank label", i))
		}
		if function.Template == nil {
			errs = append(errs, fmt.Errorf("function '%s' has no template", function.Label))
		}
		if _, duplicate := seen[function.Label]; duplicate {
			errs = append(errs, fmt.Errorf("function label '%s' is used twice", function.Label))
		}
		seen[function.Label] = struct{}{}
	}
	if len(errs) != 0 {
		return FunctionRegistry{}, wrap.Errors("invalid aggregation functions", errs...)
	}

	copied := make([]AggregationFunction, len(functions))
	copy(copied, functions)
	return FunctionRegistry{functions: copied}, nil
}

func simpleAggregate(label string, function string) AggregationFunction {
	return AggregationFunction{
		Label:    label,
		Template: func(value Expr) Expr { return Fn(function, value) },
	}
}

func quantileAggregate(label string, quantile float64) AggregationFunction {
	return AggregationFunction{
		Label: label,
		Template: func(value Expr) Expr {
			return Fn("quantile_cont", value, NumberLiteral(quantile))
		},
	}
}

// See https://duckdb.org/docs/sql/functions/aggregates
func DefaultFunctions() FunctionRegistry {
	return FunctionRegistry{functions: []AggregationFunction{
		simpleAggregate("mean", "avg"),
		simpleAggregate("std", "stddev_samp"),
		simpleAggregate("kurtosis", "kurtosis"),
		simpleAggregate("skewness", "skewness"),
		simpleAggregate("median", "median"),
		simpleAggregate("min", "min"),
		simpleAggregate("max", "max"),
		simpleAggregate("sum", "sum"),
		simpleAggregate("count", "count"),
		quantileAggregate("p25", 0.25),
		quantileAggregate("p75", 0.75),
		simpleAggregate("entropy", "entropy"),
		simpleAggregate("histogram", "histogram"),
	}}
}

func (registry FunctionRegistry) Len() int {
	return len(registry.functions)
}

func (registry FunctionRegistry) Labels() []string {
	labels := make([]string, 0, len(registry.functions))
	for _, function := range registry.functions {
		labels = append(labels, function.Label)
	}
	return labels
}

// Subset keeps the named functions, in the order given.
func (registry FunctionRegistry) Subset(labels ...string) (FunctionRegistry, error) {
	byLabel := make(map[string]AggregationFunction, len(registry.functions))
	for _, function := range registry.functions {
		byLabel[function.Label] = function
	}

	subset := make([]AggregationFunction, 0, len(labels))
	for _, label := range labels {
		function, ok := byLabel[label]
		if !ok {
			return FunctionRegistry{}, fmt.Errorf(
				"unknown aggregation function '%s' (must be one of %v)", label, registry.Labels(),
			)
		}
		subset = append(subset, function)
	}

	return NewFunctionRegistry(subset...)
}

// Expand produces the aggregate output columns in variable-major order. With a single variable the
// bare function label is used as column name, otherwise "<variable>_<label>".
func (registry FunctionRegistry) Expand(variables []string) []SelectColumn {
	columns := make([]SelectColumn, 0, len(variables)*len(registry.functions))
	for _, variable := range variables {
		for _, function := range registry.functions {
			label := function.Label
			if len(variables) > 1 {
				label = variable + "_" + function.Label
			}
			columns = append(columns, As(function.Template(Column(variable)), label))
		}
	}
	return columns
}
