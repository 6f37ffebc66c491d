// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
)

type contextKey string

const (
	emailKey  contextKey = "user_email"
	deviceKey contextKey = "device_id"
)

// SetUserEmail sets the authenticated user's email in the context
func SetUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey, email)
}

// GetUserEmail retrieves the authenticated user's email from the context
func GetUserEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(emailKey).(string)
	return email, ok
}

// SetDeviceID sets the calling device's ID in the context
func SetDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceKey, deviceID)
}

// GetDeviceID retrieves the calling device's ID from the context
func GetDeviceID(ctx context.Context) (string, bool) {
	deviceID, ok := ctx.Value(deviceKey).(string)
	return deviceID, ok
}

// SetAuthContext sets both the user email and device ID in the context
func SetAuthContext(ctx context.Context, email, deviceID string) context.Context {
	ctx = SetUserEmail(ctx, email)
	return SetDeviceID(ctx, deviceID)
}
