package ord

import (
	"regexp"
	"strings"
)

// ORD ids are colon-separated FQNs like urn:apiResource:astronomy:v1. On
// disk (and in unprocessed documents) the colons are replaced by underscores
// because colons are not portable in directory names.
var (
	idPattern = regexp.MustCompile(`^([a-z0-9]+(?:[.][a-z0-9]+)*):` +
		`(apiResource|capability|dataProduct|entityType|eventResource|integrationDependency):` +
		`([a-zA-Z0-9._\-]+):(v0|v[1-9][0-9]*)$`)

	// The category enum anchors restoration: the name part may itself contain
	// underscores, so a blind underscore-to-colon replacement would corrupt it.
	escapedIDPattern = regexp.MustCompile(`^([a-z0-9]+(?:[.][a-z0-9]+)*)_` +
		`(apiResource|capability|dataProduct|entityType|eventResource|integrationDependency)_` +
		`(.+)_(v0|v[1-9][0-9]*)$`)
)

// IsID reports whether s is a canonical ORD id.
func IsID(s string) bool {
	return idPattern.MatchString(s)
}

// EscapeID converts a canonical ORD id to its on-disk form.
func EscapeID(id string) string {
	return strings.ReplaceAll(id, ":", "_")
}

// RestoreID converts an escaped ORD id path segment back to canonical form.
// The second return is false when the segment is not an (escaped) ORD id.
func RestoreID(segment string) (string, bool) {
	if IsID(segment) {
		return segment, true
	}
	m := escapedIDPattern.FindStringSubmatch(segment)
	if m == nil {
		return segment, false
	}
	id := m[1] + ":" + m[2] + ":" + m[3] + ":" + m[4]
	if !IsID(id) {
		return segment, false
	}
	return id, true
}

// EscapePathSegments converts every canonical-id segment of a
// slash-separated path to the on-disk escaped form.
func EscapePathSegments(rel string) string {
	segs := strings.Split(rel, "/")
	for i, s := range segs {
		if IsID(s) {
			segs[i] = EscapeID(s)
		}
	}
	return strings.Join(segs, "/")
}

// restoreIDSegments converts every escaped-id segment of a slash-separated
// path to canonical form.
func restoreIDSegments(rel string) string {
	segs := strings.Split(rel, "/")
	for i, s := range segs {
		if id, ok := RestoreID(s); ok {
			segs[i] = id
		}
	}
	return strings.Join(segs, "/")
}
