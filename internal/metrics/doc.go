// Package metrics implements the pure calculation core of the live dashboard:
// per-campaign metric card resolution, portfolio-wide aggregation, and budget
// pacing. Everything in this package is a pure function over domain values;
// there is no I/O, no clock access except where a reference time is passed in,
// and identical inputs always produce identical outputs.
//
// Heterogeneous sources (latest snapshot, rolling summary, manually-entered
// values, live campaign spend) are reconciled through explicit fallback
// chains: a value participates only when it is > 0, and every ratio is
// guarded so a denominator <= 0 resolves to 0, never Inf or NaN.
package metrics
