package api

import "net/http"

type schemaResponse struct {
	Fingerprint string   `json:"fingerprint"`
	Tables      []string `json:"tables"`
	Rendered    string   `json:"rendered"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema catalog is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, schemaResponse{
		Fingerprint: deps.Catalog.Fingerprint(),
		Tables:      deps.Catalog.TableNames(),
		Rendered:    deps.Catalog.RenderForPrompt(),
	})
}
