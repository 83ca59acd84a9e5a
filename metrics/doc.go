// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package metrics defines the Prometheus collectors for each pipeline role.
// Constructors register against the given Registerer; main passes
// prometheus.DefaultRegisterer, tests pass a fresh prometheus.NewRegistry().
package metrics
