// Package utils provides small helpers shared by the game server and client:
// random index choice and validation of player-chosen names.
package utils

import "math/rand/v2"

// GetRandomIndex returns a random valid index into arr. The slice must be
// non-empty; otherwise the function panics.
//
// Parameters:
//   - rng: The random source to draw from
//   - arr: The slice to pick from (must have at least one element)
//
// Returns:
//   - An index in [0, len(arr))
func GetRandomIndex[T any](rng *rand.Rand, arr []T) int {
	return rng.IntN(len(arr))
}
