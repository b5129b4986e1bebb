// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides protected buffers for sensitive material
// such as access tokens, sealing keys, and API keys.
//
// [Buffer] allocates memory outside the Go heap via
// mmap(MAP_ANONYMOUS), locks it into physical RAM via mlock
// (preventing swap), and marks it excluded from core dumps via
// madvise(MADV_DONTDUMP). On Close, the memory is zeroed, unlocked,
// and unmapped. Because the region lives outside the Go heap, the
// garbage collector cannot copy or relocate it.
//
// Construct with [New] or [NewFromBytes] (which zeros the caller's
// copy), or load from a file or stdin with [ReadFromPath]. Access via
// [Buffer.Bytes] (slice into the protected region) or [Buffer.String]
// (heap copy for API boundaries). After Close, any access panics;
// Close is idempotent.
//
// Depends only on golang.org/x/sys/unix. Imported by lib/sealed for
// keypair protection and by the session manager for access tokens.
package secret
