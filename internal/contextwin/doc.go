// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package contextwin keeps a bounded sliding window of recent translation
// chunks and renders it into a token-budgeted context payload.
//
// Machine translation of live speech works chunk by chunk. Feeding the
// previous few translations back into the next request keeps terminology,
// pronouns and tone consistent across chunk boundaries. The window is kept
// deliberately small and is trimmed from the oldest end.
//
// # Key Types
//
//   - Chunk: One completed (source, translated) pair with language codes
//   - Config: Window capacity, token budget and reset behaviour
//   - ConfigUpdate: Partial update applied with Manager.UpdateConfig
//   - Manager: The window itself
//   - Stats: Read-only snapshot for status displays
//
// # Usage
//
//	m := contextwin.NewManager(contextwin.DefaultConfig())
//	m.AddChunk(contextwin.NewChunk("hola", "hello", "es", "en"))
//	if ctx, ok := m.GetContextString(); ok {
//	    // prepend ctx to the next translation request
//	}
//
// # Token Estimates
//
// Token cost is estimated as ceil(characters / 4), counted in Unicode code
// points after NFC normalisation. The estimate is intentionally crude; it is
// used only to bound payload size.
package contextwin
