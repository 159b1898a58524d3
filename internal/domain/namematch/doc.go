// Package namematch resolves free-text staff names, as typed into sign-up
// tools, to the canonical display names known from order history.
//
// Matching runs in priority order:
//   - exact match after normalization (confidence 100)
//   - nickname table on the first name token (confidence 95)
//   - Levenshtein similarity, accepted at or above the matcher threshold
//
// The matcher is a pure function of its inputs and never returns an error.
package namematch
