// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("🚀 go-feedsync - Offline-First Feed Replication")
	fmt.Println("===============================================")
	fmt.Println()
	fmt.Println("go-feedsync keeps a device-local feed (posts, likes, comments and their")
	fmt.Println("media) in sync with a remote store: client-minted IDs make every upload an")
	fmt.Println("idempotent upsert, tombstones replicate deletes, and a watermark bounds pulls.")
	fmt.Println()

	fmt.Println("📚 Available Examples:")
	fmt.Println()
	fmt.Println("1. 🌐 Sync Server (examples/feedserver_http/)")
	fmt.Println("   Postgres-backed feed store behind the JSON sync API")
	fmt.Println("   Features: JWT auth, idempotent upserts, watermark downloads, retention job")
	fmt.Println("   Run: cd examples/feedserver_http && go run .")
	fmt.Println()

	fmt.Println("2. 📱 Feed App Daemon (examples/feedapp/)")
	fmt.Println("   Offline-first client over an encrypted SQLite store")
	fmt.Println("   Features: push/pull/prune cycles, media upload to S3, reconnect drain")
	fmt.Println("   Run: cd examples/feedapp && go run .")
	fmt.Println()
}
