// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package contextwin

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// charsPerToken is the character-to-token ratio used for estimates.
const charsPerToken = 4

// CharCount returns the number of code points in s after NFC normalisation.
// "é" typed as e + combining acute counts as one character, same as U+00E9.
// Counts are code points, not UTF-16 units, so an emoji outside the BMP
// counts as one character rather than two.
func CharCount(s string) int {
	if s == "" {
		return 0
	}
	return utf8.RuneCountInString(norm.NFC.String(s))
}

// EstimateTokens returns ceil(CharCount(s) / 4).
func EstimateTokens(s string) int {
	return tokensForChars(CharCount(s))
}

func tokensForChars(n int) int {
	return (n + charsPerToken - 1) / charsPerToken
}
