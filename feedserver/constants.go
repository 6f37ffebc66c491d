// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedserver

// Fetch window limits for the incremental download endpoints
const (
	DefaultPostLimit  = 20
	DefaultChildLimit = 100
	MaxFetchLimit     = 500
)

// Error codes returned in ErrorResponse.Error
const (
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeInvalidFormat = "invalid_format"
	ErrCodeInternal      = "internal_error"
)
