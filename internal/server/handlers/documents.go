package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"path"
	"strings"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
	"git.home.luguber.info/inful/ordprovider/internal/server/responses"
)

// DocumentsHandler serves everything below the ORD server prefix. The path is
// dispatched in order:
//
//  1. <documentsSubDir>/...  processed ORD document, .json optional
//  2. <ordId>/<fileName>     resource definition file via the FQN index
//  3. <path>                 snapshot file, JSON validated before serving
type DocumentsHandler struct {
	content *Content
}

func NewDocumentsHandler(content *Content) *DocumentsHandler {
	return &DocumentsHandler{content: content}
}

func (h *DocumentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, ord.ServerPrefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		responses.WriteError(w, r, notFound(r.URL.Path))
		return
	}

	first, remainder, _ := strings.Cut(rest, "/")

	if first == h.content.DocumentsSubDir() && remainder != "" {
		h.serveDocument(w, r, rest)
		return
	}

	if remainder != "" {
		if id, ok := ord.RestoreID(first); ok {
			h.serveResourceDefinition(w, r, id, remainder, rest)
			return
		}
	}

	h.serveFile(w, r, rest)
}

// serveDocument serves a processed ORD document. rel is the full
// snapshot-relative path including the documents subdirectory; the .json
// extension may be omitted in the URL.
func (h *DocumentsHandler) serveDocument(w http.ResponseWriter, r *http.Request, rel string) {
	if !strings.HasSuffix(rel, ".json") {
		rel += ".json"
	}
	doc, err := h.content.Document(r.Context(), rel)
	if err != nil {
		responses.WriteError(w, r, err)
		return
	}
	_ = responses.WriteJSON(w, r, http.StatusOK, doc)
}

// serveResourceDefinition resolves an ORD id plus file name through the FQN
// index. Ids that own no resource files fall back to the plain file route, so
// a snapshot directory that merely looks like an id still resolves.
func (h *DocumentsHandler) serveResourceDefinition(w http.ResponseWriter, r *http.Request, id, remainder, rest string) {
	fqn, err := h.content.FQN(r.Context())
	if err != nil {
		responses.WriteError(w, r, err)
		return
	}
	if !fqn.Has(id) {
		h.serveFile(w, r, rest)
		return
	}
	filePath, ok := fqn.Resolve(id, path.Base(remainder))
	if !ok {
		responses.WriteError(w, r, notFound(rest))
		return
	}
	h.serveFile(w, r, filePath)
}

// serveFile serves a raw snapshot file. JSON files are decoded and
// re-encoded: a stored file that fails to parse is a content defect and
// surfaces as an internal error rather than being passed through.
func (h *DocumentsHandler) serveFile(w http.ResponseWriter, r *http.Request, rel string) {
	data, err := h.content.ReadFile(rel)
	if err != nil {
		responses.WriteError(w, r, err)
		return
	}
	if strings.HasSuffix(strings.ToLower(rel), ".json") {
		var v any
		if uerr := json.Unmarshal(data, &v); uerr != nil {
			responses.WriteError(w, r, ferrors.WrapError(uerr, ferrors.CategoryInternal, "stored file is not valid JSON").
				WithTarget(rel).Build())
			return
		}
		_ = responses.WriteJSON(w, r, http.StatusOK, v)
		return
	}
	_ = responses.WriteRaw(w, r, http.StatusOK, contentTypeFor(rel), data)
}

func contentTypeFor(rel string) string {
	ext := strings.ToLower(path.Ext(rel))
	switch ext {
	case ".yaml", ".yml":
		return "application/yaml"
	case ".xml", ".edmx":
		return "application/xml"
	case ".md":
		return "text/markdown; charset=utf-8"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
