package dberrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_WalksWrappedChain(t *testing.T) {
	base := ErrCorruptGraph.New("child PhysVol:3 missing")
	wrapped := fmt.Errorf("linking children: %w", base)
	twice := fmt.Errorf("read: %w", wrapped)

	assert.True(t, Is(base, ErrCorruptGraph))
	assert.True(t, Is(twice, ErrCorruptGraph))
	assert.False(t, ErrCorruptGraph.Is(twice))
	assert.False(t, Is(twice, ErrNoRoot))
	assert.False(t, Is(nil, ErrNoRoot))
}

func TestIs_FollowsCause(t *testing.T) {
	inner := ErrMissingTable.New("RootVolume")
	outer := ErrSessionFailed.Wrap(inner)

	assert.True(t, Is(outer, ErrSessionFailed))
	assert.True(t, Is(outer, ErrMissingTable))
}

func TestHelpers(t *testing.T) {
	assert.True(t, Is(Corrupt("bad %s", "row"), ErrCorruptGraph))
	assert.True(t, Is(Unavailable(fmt.Errorf("disk full"), "commit"), ErrBackingStoreUnavailable))
}
