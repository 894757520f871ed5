package ord

import (
	"net/url"
	"path"
	"strings"
)

// Configuration is the well-known discovery response.
type Configuration struct {
	BaseURL                 string          `json:"baseUrl,omitempty"`
	OpenResourceDiscoveryV1 ConfigurationV1 `json:"openResourceDiscoveryV1"`
}

// ConfigurationV1 lists the documents the provider publishes.
type ConfigurationV1 struct {
	Documents []DocumentDescriptor `json:"documents"`
}

// DocumentDescriptor advertises one document.
type DocumentDescriptor struct {
	URL              string           `json:"url"`
	AccessStrategies []AccessStrategy `json:"accessStrategies"`
	Perspective      string           `json:"perspective,omitempty"`
}

// BuildConfig derives the ORD configuration from the snapshot's documents.
// docPaths orders the output; docs maps each path (relative to the snapshot
// root, within the documents subdirectory) to its parsed document. When
// perspectiveFilter is non-empty only documents whose effective perspective
// matches are listed.
func BuildConfig(docPaths []string, docs map[string]Document, authMethods []AuthMethod, baseURL, documentsSubDir, perspectiveFilter string) Configuration {
	strategies := AccessStrategies(authMethods)

	descriptors := make([]DocumentDescriptor, 0, len(docPaths))
	for _, p := range docPaths {
		doc, ok := docs[p]
		if !ok {
			continue
		}
		perspective := doc.EffectivePerspective()
		if perspectiveFilter != "" && perspective != perspectiveFilter {
			continue
		}
		descriptors = append(descriptors, DocumentDescriptor{
			URL:              DocumentURL(p, documentsSubDir),
			AccessStrategies: strategies,
			Perspective:      perspective,
		})
	}

	return Configuration{
		BaseURL:                 baseURL,
		OpenResourceDiscoveryV1: ConfigurationV1{Documents: descriptors},
	}
}

// DocumentURL maps a document path onto its serving URL: the path relative to
// the documents subdirectory, without the .json extension, each segment URL
// encoded, rooted under /ord/v1/<documentsSubDir>.
func DocumentURL(docPath, documentsSubDir string) string {
	rel := strings.TrimPrefix(docPath, documentsSubDir+"/")
	rel = strings.TrimSuffix(rel, path.Ext(rel))

	segs := strings.Split(rel, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return ServerPrefix + "/" + documentsSubDir + "/" + strings.Join(segs, "/")
}
