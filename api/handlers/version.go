package handlers

import (
	"net/http"
)

var (
	// Set from main via SetBuildInfo.
	BuildVersion = "dev"
	BuildCommit  = "none"
	BuildDate    = "unknown"
)

func SetBuildInfo(version, commit, date string) {
	BuildVersion = version
	BuildCommit = commit
	BuildDate = date
}

// VersionResponse is the build and backend in use.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Backend string `json:"backend,omitempty"`
}

func GetVersion(w http.ResponseWriter, r *http.Request) {
	resp := VersionResponse{
		Version: BuildVersion,
		Commit:  BuildCommit,
		Date:    BuildDate,
	}
	if vitalsService != nil {
		resp.Backend = vitalsService.Backend()
	}
	writeJSON(w, http.StatusOK, resp)
}
