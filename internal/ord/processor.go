package ord

import (
	"path"
	"strings"
)

// AuthMethod is a configured authentication mode.
type AuthMethod string

const (
	AuthMethodOpen   AuthMethod = "open"
	AuthMethodBasic  AuthMethod = "basic"
	AuthMethodCFMTLS AuthMethod = "cf-mtls"
)

// AccessStrategyType maps an auth method onto the access strategy type
// advertised in documents and the configuration.
func AccessStrategyType(m AuthMethod) string {
	switch m {
	case AuthMethodBasic:
		return "basic-auth"
	case AuthMethodCFMTLS:
		return "sap:cmp-mtls:v1"
	default:
		return "open"
	}
}

// AccessStrategy is one advertised access strategy entry.
type AccessStrategy struct {
	Type string `json:"type"`
}

// AccessStrategies maps the configured auth methods onto strategy entries,
// at most one per method, order preserved.
func AccessStrategies(methods []AuthMethod) []AccessStrategy {
	seen := make(map[string]bool, len(methods))
	out := make([]AccessStrategy, 0, len(methods))
	for _, m := range methods {
		t := AccessStrategyType(m)
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, AccessStrategy{Type: t})
	}
	return out
}

// GitContext carries source coordinates for processed documents.
type GitContext struct {
	Repository string
	Branch     string
}

// ProcessingContext parameterizes document processing.
type ProcessingContext struct {
	BaseURL         string
	AuthMethods     []AuthMethod
	DocumentsSubDir string
	Git             *GitContext
}

// Process returns a processed copy of doc: the described system instance
// points at this provider, local resource definition URLs are rewritten under
// /ord/v1 with escaped ORD id segments restored, and access strategies are
// replaced by the configured methods. The input document is never mutated,
// and processing an already processed document is a no-op.
func Process(doc Document, pctx ProcessingContext) Document {
	out := doc.Clone()

	dsi, _ := out["describedSystemInstance"].(map[string]any)
	if dsi == nil {
		dsi = make(map[string]any)
	}
	dsi["baseUrl"] = pctx.BaseURL
	out["describedSystemInstance"] = dsi

	strategies := accessStrategyValues(pctx.AuthMethods)
	for _, key := range []string{"apiResources", "eventResources"} {
		resources, _ := out[key].([]any)
		for _, r := range resources {
			res, _ := r.(map[string]any)
			if res == nil {
				continue
			}
			defs, _ := res["resourceDefinitions"].([]any)
			for _, dv := range defs {
				def, _ := dv.(map[string]any)
				if def == nil {
					continue
				}
				if u, _ := def["url"].(string); u != "" {
					def["url"] = RewriteResourceURL(u)
				}
				def["accessStrategies"] = cloneValue(strategies)
			}
		}
	}

	return out
}

// RewriteResourceURL maps a resource definition URL onto this server.
// Remote URLs pass through. Local URLs are rooted at /ord/v1 with the path
// preserved; any full path segment that is an escaped ORD id is restored to
// canonical form. The function is idempotent.
func RewriteResourceURL(u string) string {
	if IsRemoteURL(u) {
		return u
	}
	rel := normalizeLocalURL(u)
	if rel == "" {
		return ServerPrefix
	}
	return ServerPrefix + "/" + restoreIDSegments(rel)
}

// normalizeLocalURL reduces a local resource URL to a snapshot-root-relative
// path: the /ord/v1 prefix and any leading "/", "./", or "../" steps are
// stripped. Relative URLs written from inside the documents subdirectory
// reach their sibling resource directories through "../", so after stripping
// both forms address the same root-relative location.
func normalizeLocalURL(u string) string {
	rel := u
	if rel == ServerPrefix {
		rel = ""
	} else if strings.HasPrefix(rel, ServerPrefix+"/") {
		rel = rel[len(ServerPrefix)+1:]
	}
	rel = strings.TrimPrefix(rel, "/")
	rel = strings.TrimPrefix(rel, "./")
	rel = path.Clean(rel)
	for strings.HasPrefix(rel, "../") {
		rel = rel[3:]
	}
	if rel == "." || rel == ".." {
		return ""
	}
	return rel
}

// IsRemoteURL reports whether u points outside this provider.
func IsRemoteURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func accessStrategyValues(methods []AuthMethod) []any {
	strategies := AccessStrategies(methods)
	out := make([]any, len(strategies))
	for i, s := range strategies {
		out[i] = map[string]any{"type": s.Type}
	}
	return out
}
