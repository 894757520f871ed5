package ord

import (
	"path"
	"sort"
)

// FQNEntry locates one resource definition file inside a snapshot.
type FQNEntry struct {
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
}

// FQNMap maps an ORD id to the resource definition files it owns. FilePath is
// snapshot-root-relative in on-disk (escaped) form.
type FQNMap map[string][]FQNEntry

// BuildFQNMap derives the FQN map across all documents of a snapshot. docs
// maps document paths (snapshot-root-relative) to parsed documents. Remote
// resource definition URLs are skipped; every local URL yields exactly one
// entry under its resource's ORD id.
func BuildFQNMap(docs map[string]Document) FQNMap {
	m := make(FQNMap)

	paths := make([]string, 0, len(docs))
	for p := range docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, docPath := range paths {
		doc := docs[docPath]
		for _, key := range []string{"apiResources", "eventResources"} {
			resources, _ := doc[key].([]any)
			for _, r := range resources {
				res, _ := r.(map[string]any)
				if res == nil {
					continue
				}
				ordID, _ := res["ordId"].(string)
				if ordID == "" {
					continue
				}
				defs, _ := res["resourceDefinitions"].([]any)
				for _, dv := range defs {
					def, _ := dv.(map[string]any)
					if def == nil {
						continue
					}
					u, _ := def["url"].(string)
					if u == "" || IsRemoteURL(u) {
						continue
					}
					entry := FQNEntry{
						FileName: path.Base(u),
						FilePath: SnapshotRelativePath(u),
					}
					m[ordID] = appendUnique(m[ordID], entry)
				}
			}
		}
	}

	return m
}

// Resolve finds the file for an ORD id and file name. The id may arrive in
// escaped form; it is normalized before lookup.
func (m FQNMap) Resolve(ordID, fileName string) (string, bool) {
	id, _ := RestoreID(ordID)
	for _, e := range m[id] {
		if e.FileName == fileName {
			return e.FilePath, true
		}
	}
	return "", false
}

// Has reports whether the (normalized) id owns any resource files.
func (m FQNMap) Has(ordID string) bool {
	id, _ := RestoreID(ordID)
	_, ok := m[id]
	return ok
}

// SnapshotRelativePath resolves a local resource definition URL to its
// on-disk path relative to the snapshot root, converting canonical ORD id
// segments to their escaped on-disk form. It applies the same normalization
// as RewriteResourceURL, which keeps the FQN map and rewritten URLs pointing
// at the same files.
func SnapshotRelativePath(u string) string {
	return EscapePathSegments(normalizeLocalURL(u))
}

func appendUnique(entries []FQNEntry, e FQNEntry) []FQNEntry {
	for _, existing := range entries {
		if existing == e {
			return entries
		}
	}
	return append(entries, e)
}
