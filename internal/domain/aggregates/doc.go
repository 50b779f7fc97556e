// Package aggregates defines aggregate-column contracts: which parent column caches which
// function over which child rows, the value type, and the error codes used by the
// maintenance engine in internal/data/aggregates.
package aggregates
