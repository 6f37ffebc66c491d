// Package migrations embeds the feed server's SQL schema migrations.
//
// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
