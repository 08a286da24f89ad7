// Package stats implements the streaming statistics engine: online
// mean/variance, bounded recent-gap history, approximate quantiles,
// density buckets, rolling windows, and gap computation.
package stats

import "errors"

// ErrConfiguration marks invalid construction parameters: non-positive
// capacities, bucket sizes, or window horizons. Recoverable by
// reconfiguring and retrying.
var ErrConfiguration = errors.New("invalid configuration")

// ErrInvariant marks a caller contract breach, such as a negative gap or
// out-of-order sequences presented to a component requiring ascending
// order. Surfaced rather than silently corrected.
var ErrInvariant = errors.New("invariant violation")
