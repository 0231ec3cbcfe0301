// Package parse extracts structured values from raw model text.
//
// Models wrap JSON in prose and markdown fences, emit trailing commas or
// Python constants, and sometimes echo a schema envelope instead of data.
// [ParseStringAs] recovers from each of these: it tries the text as is, then
// every embedded JSON value, then a repaired copy, unwrapping
// {"type":..., "value":...} nodes along the way.
package parse
