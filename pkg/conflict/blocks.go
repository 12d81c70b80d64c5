package conflict

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Side selects which version of a conflict block wins.
type Side int

const (
	// SideNone means the block has no resolution yet.
	SideNone Side = iota
	// SideLocal keeps the local version of the block.
	SideLocal
	// SideRemote keeps the remote version of the block.
	SideRemote
)

// Block is one region of a conflicted file. Blocks alternate between
// unchanged regions (shared by both sides) and conflict regions that must be
// resolved independently. Text fields carry their trailing newlines so that
// concatenating blocks reproduces file content byte for byte.
type Block struct {
	Conflict bool

	// Text is the shared content of an unchanged block.
	Text string

	// Local and Remote are the two versions of a conflict block.
	Local  string
	Remote string

	// Resolution records which side the user chose, if any.
	Resolution Side
}

// SplitBlocks computes a longest-common-subsequence line diff between the
// local and remote contents and folds it into alternating unchanged/conflict
// blocks.
func SplitBlocks(local, remote string) []Block {
	dmp := diffmatchpatch.New()
	localChars, remoteChars, lines := dmp.DiffLinesToChars(local, remote)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(localChars, remoteChars, false), lines)

	var blocks []Block
	var pendingLocal, pendingRemote strings.Builder
	flushConflict := func() {
		if pendingLocal.Len() == 0 && pendingRemote.Len() == 0 {
			return
		}
		blocks = append(blocks, Block{
			Conflict: true,
			Local:    pendingLocal.String(),
			Remote:   pendingRemote.String(),
		})
		pendingLocal.Reset()
		pendingRemote.Reset()
	}

	for _, diff := range diffs {
		switch diff.Type {
		case diffmatchpatch.DiffEqual:
			flushConflict()
			blocks = append(blocks, Block{Text: diff.Text})
		case diffmatchpatch.DiffDelete:
			pendingLocal.WriteString(diff.Text)
		case diffmatchpatch.DiffInsert:
			pendingRemote.WriteString(diff.Text)
		}
	}
	flushConflict()
	return blocks
}

// ResolveAll applies side to every conflict block. Used for the bulk
// "accept all local/remote" actions.
func ResolveAll(blocks []Block, side Side) {
	for i := range blocks {
		if blocks[i].Conflict {
			blocks[i].Resolution = side
		}
	}
}

// Resolved reports whether every conflict block has a resolution.
func Resolved(blocks []Block) bool {
	for _, block := range blocks {
		if block.Conflict && block.Resolution == SideNone {
			return false
		}
	}
	return true
}

// Reconstruct concatenates unchanged blocks verbatim and resolved conflict
// blocks by their chosen side. Blocks left unresolved are rendered with
// literal conflict markers, so a partial save remains visibly incomplete.
func Reconstruct(blocks []Block) (string, bool) {
	var out strings.Builder
	resolved := true
	for _, block := range blocks {
		switch {
		case !block.Conflict:
			out.WriteString(block.Text)
		case block.Resolution == SideLocal:
			out.WriteString(block.Local)
		case block.Resolution == SideRemote:
			out.WriteString(block.Remote)
		default:
			resolved = false
			out.WriteString(markerLocal + " local\n")
			out.WriteString(withTrailingNewline(block.Local))
			out.WriteString(markerSeparator + "\n")
			out.WriteString(withTrailingNewline(block.Remote))
			out.WriteString(markerRemote + " remote\n")
		}
	}
	return out.String(), resolved
}

func withTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
