// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedsync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEngineValidatesDependencies(t *testing.T) {
	_, err := NewEngine(nil, newFakeBucket(), nil)
	require.Error(t, err)

	_, err = NewEngine(newFakeRemote(), nil, nil)
	require.Error(t, err)

	eng, err := NewEngine(newFakeRemote(), newFakeBucket(), nil)
	require.NoError(t, err)
	require.NotNil(t, eng)
}

func TestConfigDefaults(t *testing.T) {
	c := (&Config{}).withDefaults()
	require.Equal(t, DefaultPostPageSize, c.PostPageSize)
	require.Equal(t, DefaultChildPageSize, c.ChildPageSize)
	require.Equal(t, DefaultRetention, c.Retention)
	require.Equal(t, DefaultMaxPosts, c.MaxPosts)
	require.Equal(t, DefaultMaxRetries, c.MaxRetries)
	require.Equal(t, DefaultRetryBase, c.RetryBase)
	require.NotNil(t, c.Logger)
	require.NotNil(t, c.Now)
}

func TestConfigKeepsExplicitValues(t *testing.T) {
	c := (&Config{PostPageSize: 7, MaxPosts: 42}).withDefaults()
	require.Equal(t, 7, c.PostPageSize)
	require.Equal(t, 42, c.MaxPosts)
	require.Equal(t, DefaultChildPageSize, c.ChildPageSize)
}
