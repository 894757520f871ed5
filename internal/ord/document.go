// Package ord implements the Open Resource Discovery document model: parsing,
// perspective handling, ORD id escaping, resource URL rewriting, and the
// derived configuration and FQN lookup structures.
package ord

import (
	"encoding/json"
	"fmt"
)

// ServerPrefix is the URL root under which this provider serves documents and
// resource files.
const ServerPrefix = "/ord/v1"

// WellKnownPath is the discovery endpoint for the ORD configuration.
const WellKnownPath = "/.well-known/open-resource-discovery"

// Perspective values a document may declare.
const (
	PerspectiveSystemVersion     = "system-version"
	PerspectiveSystemInstance    = "system-instance"
	PerspectiveSystemIndependent = "system-independent"

	// DefaultPerspective applies when a document declares none.
	DefaultPerspective = PerspectiveSystemInstance
)

// Document is a parsed ORD document. Beyond the fields the provider touches
// (openResourceDiscovery, perspective, describedSystemInstance, resource
// arrays) the content is treated as opaque JSON.
type Document map[string]any

// ParseDocument decodes raw JSON into a Document. Non-object payloads and
// documents without a truthy openResourceDiscovery property are rejected.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing ORD document: %w", err)
	}
	if doc.ORDVersion() == "" {
		return nil, fmt.Errorf("document has no openResourceDiscovery version")
	}
	return doc, nil
}

// ORDVersion returns the declared openResourceDiscovery version, or "".
func (d Document) ORDVersion() string {
	v, _ := d["openResourceDiscovery"].(string)
	return v
}

// Perspective returns the declared perspective, or "" when absent.
func (d Document) Perspective() string {
	p, _ := d["perspective"].(string)
	return p
}

// EffectivePerspective returns the declared perspective or the default.
func (d Document) EffectivePerspective() string {
	if p := d.Perspective(); p != "" {
		return p
	}
	return DefaultPerspective
}

// Clone returns a deep copy. Processing never mutates its input.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
