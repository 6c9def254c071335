package treemodel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyBetweenOrdering(t *testing.T) {
	k1 := KeyBetween(nil, nil)
	require.NotEmpty(t, k1)

	k2 := KeyBetween(&k1, nil)
	require.Greater(t, k2, k1)

	k0 := KeyBetween(nil, &k1)
	require.Less(t, k0, k1)

	mid := KeyBetween(&k1, &k2)
	require.Greater(t, mid, k1)
	require.Less(t, mid, k2)
}

func TestKeyBetweenBoundedUnderRepeatedInsertion(t *testing.T) {
	left := "A"
	right := "B"
	for i := 0; i < 200; i++ {
		mid := KeyBetween(&left, &right)
		require.Greater(t, mid, left)
		require.Less(t, mid, right)
		right = mid
	}
	// Bounded growth: a few hundred bisections between adjacent-ish keys
	// should not blow up key length unreasonably.
	require.Less(t, len(right), 300)
}

func TestKeyBetweenAdjacentDigits(t *testing.T) {
	left := "A"
	right := "B" // adjacent in the alphabet: forces the recursive branch
	mid := KeyBetween(&left, &right)
	require.Greater(t, mid, left)
	require.Less(t, mid, right)
}

// Repeated "insert at index 0" drives the right bound down through the
// alphabet floor ('0'), exactly the U->F->7->3->1->0 sequence a chain
// of real "move to index 0" operations produces, and well past it.
// before() must keep producing strictly smaller, non-empty keys
// indefinitely rather than bottoming out at "" once it reaches "0".
func TestKeyBetweenRepeatedInsertAtFrontReachesFloorDigit(t *testing.T) {
	right := "U"
	for i := 0; i < 40; i++ {
		mid := KeyBetween(nil, &right)
		require.NotEmpty(t, mid, "iteration %d: before(%q) must not be empty", i, right)
		require.Less(t, mid, right, "iteration %d: %q must sort before %q", i, mid, right)
		right = mid
	}
}

func TestBeforeFloorDigitReachedThenKeepsDescending(t *testing.T) {
	// "0" is an all-floor-digit run: before must not truncate it to "".
	first := before("0")
	require.NotEmpty(t, first)
	require.Less(t, first, "0")

	// Length doesn't matter: any floor run, regardless of how many '0's,
	// only needs a value strictly below the floor digit itself.
	require.Less(t, before("00"), "00")
	require.Less(t, before("000"), "000")
	require.Less(t, before("0A"), "0A")

	// Repeated descent past the sentinel keeps working, never empties.
	right := first
	for i := 0; i < 20; i++ {
		next := before(right)
		require.NotEmpty(t, next)
		require.Less(t, next, right, "iteration %d: %q must sort before %q", i, next, right)
		right = next
	}
}
