package conflict

import (
	"strings"
)

const (
	markerLocal     = "<<<<<<<"
	markerSeparator = "======="
	markerRemote    = ">>>>>>>"
)

// HasMarkers reports whether content contains a literal conflict marker at
// the start of a line.
func HasMarkers(content string) bool {
	for _, line := range strings.SplitAfter(content, "\n") {
		if strings.HasPrefix(line, markerLocal) {
			return true
		}
	}
	return false
}

// parseMarkers reconstructs the two sides of a conflicted file from its
// on-disk conflict markers. This is the most reliable extraction: it matches
// exactly what the user will edit. ok is false when the content carries no
// markers.
func parseMarkers(content string) (local, remote string, ok bool) {
	const (
		sectionShared = iota
		sectionLocal
		sectionRemote
	)

	var localOut, remoteOut strings.Builder
	section := sectionShared
	for _, line := range strings.SplitAfter(content, "\n") {
		switch {
		case strings.HasPrefix(line, markerLocal):
			section = sectionLocal
			ok = true
		case strings.HasPrefix(line, markerSeparator) && section == sectionLocal:
			section = sectionRemote
		case strings.HasPrefix(line, markerRemote) && section == sectionRemote:
			section = sectionShared
		case section == sectionLocal:
			localOut.WriteString(line)
		case section == sectionRemote:
			remoteOut.WriteString(line)
		default:
			localOut.WriteString(line)
			remoteOut.WriteString(line)
		}
	}
	return localOut.String(), remoteOut.String(), ok
}
