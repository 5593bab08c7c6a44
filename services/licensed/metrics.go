package main

import (
	"licensegate/observability"
)

// Metrics exposes Prometheus collectors for license daemon instrumentation.
type Metrics = observability.LicensedMetrics

// Transfer outcome labels recorded per reconciled transfer.
const (
	TransferFiltered  = observability.TransferFiltered
	TransferDuplicate = observability.TransferDuplicate
	TransferCredited  = observability.TransferCredited
	TransferUnmatched = observability.TransferUnmatched
	TransferError     = observability.TransferError
)

// NewMetrics returns the lazily initialised metrics registry.
func NewMetrics() *Metrics { return observability.Licensed() }
