package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/information-sharing-networks/esign-demo/internal/version"
)

// HandleVersion godoc
//
//	@Summary		Get version information
//	@Description	Returns the version and build information for the service
//	@Tags			Common
//	@Produce		json
//	@Success		200	{object}	VersionResponse	"Version information"
//	@Router			/version [get]
func HandleVersion(info version.Info) http.HandlerFunc {
	// Pre-create the response to avoid allocating on every request
	response := VersionResponse{
		Version:   info.Version,
		BuildTime: info.BuildDate,
		Commit:    info.GitCommit,
		Service:   "esign-server",
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, "Failed to encode version", http.StatusInternalServerError)
			return
		}
	}
}

type VersionResponse struct {
	Version   string `json:"version" example:"1.0.0"`
	BuildTime string `json:"build_time" example:"2024-01-28T10:00:00Z"`
	Commit    string `json:"commit" example:"3f2a9c1"`
	Service   string `json:"service" example:"esign-server"`
}
