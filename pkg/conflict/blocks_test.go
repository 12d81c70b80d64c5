package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	localNote  = "# Title\n\nshared line\nlocal edit\nshared tail\n"
	remoteNote = "# Title\n\nshared line\nremote edit\nshared tail\n"
)

func TestSplitBlocksAlternates(t *testing.T) {
	blocks := SplitBlocks(localNote, remoteNote)

	var conflicts int
	for _, block := range blocks {
		if block.Conflict {
			conflicts++
			assert.Equal(t, "local edit\n", block.Local)
			assert.Equal(t, "remote edit\n", block.Remote)
		}
	}
	assert.Equal(t, 1, conflicts)
	assert.False(t, Resolved(blocks))
}

func TestRoundTripAllOneSide(t *testing.T) {
	// Resolving every block to the same side must reproduce that side's
	// content byte for byte.
	blocks := SplitBlocks(localNote, remoteNote)
	ResolveAll(blocks, SideLocal)
	content, resolved := Reconstruct(blocks)
	assert.True(t, resolved)
	assert.Equal(t, localNote, content)

	blocks = SplitBlocks(localNote, remoteNote)
	ResolveAll(blocks, SideRemote)
	content, resolved = Reconstruct(blocks)
	assert.True(t, resolved)
	assert.Equal(t, remoteNote, content)
}

func TestRoundTripIdenticalContent(t *testing.T) {
	blocks := SplitBlocks(localNote, localNote)
	assert.True(t, Resolved(blocks))
	content, resolved := Reconstruct(blocks)
	assert.True(t, resolved)
	assert.Equal(t, localNote, content)
}

func TestUnresolvedBlocksKeepMarkers(t *testing.T) {
	blocks := SplitBlocks(localNote, remoteNote)
	content, resolved := Reconstruct(blocks)
	assert.False(t, resolved)
	assert.True(t, HasMarkers(content))

	// The markers must parse back into the same two sides, so a partially
	// saved file can be picked up again later.
	local, remote, ok := parseMarkers(content)
	require.True(t, ok)
	assert.Equal(t, localNote, local)
	assert.Equal(t, remoteNote, remote)
}

func TestMixedResolution(t *testing.T) {
	local := "a\nL1\nmid\nL2\nend\n"
	remote := "a\nR1\nmid\nR2\nend\n"
	blocks := SplitBlocks(local, remote)

	var conflictIdx []int
	for i, block := range blocks {
		if block.Conflict {
			conflictIdx = append(conflictIdx, i)
		}
	}
	require.Len(t, conflictIdx, 2)

	blocks[conflictIdx[0]].Resolution = SideLocal
	blocks[conflictIdx[1]].Resolution = SideRemote
	content, resolved := Reconstruct(blocks)
	assert.True(t, resolved)
	assert.Equal(t, "a\nL1\nmid\nR2\nend\n", content)
}

func TestParseMarkers(t *testing.T) {
	marked := "shared\n<<<<<<< HEAD\nours\n=======\ntheirs\n>>>>>>> origin/main\ntail\n"
	local, remote, ok := parseMarkers(marked)
	assert.True(t, ok)
	assert.Equal(t, "shared\nours\ntail\n", local)
	assert.Equal(t, "shared\ntheirs\ntail\n", remote)

	_, _, ok = parseMarkers("no markers here\n")
	assert.False(t, ok)
}
