package daemon

// Wire types shared by Server and Client. Every body is JSON.

const (
	routeStatus   = "/daemon/status"
	routeShutdown = "/daemon/shutdown"
	routeProgress = "/indexer/progress"
	routeStart    = "/indexer/start"
	routeHealth   = "/health"
	routeStats    = "/stats"
	routeModels   = "/models"
)

const (
	msgIndexingStarted  = "Indexing started"
	msgAlreadyRunning   = "Indexing already in progress"
	msgIndexingDisabled = "Vector search is disabled in config"
	msgIndexerBusy      = "Another indexing run holds the indexer lock"
)

type StatusResponse struct {
	Version    string `json:"version"`
	PID        int    `json:"pid"`
	UptimeSecs uint64 `json:"uptime_secs"`
}

type StartRequest struct {
	// Full clears the store before indexing; otherwise the run is incremental.
	Full bool `json:"full"`
}

type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// Refused reports whether no run was started and none is in progress to
// follow.
func (r StartResponse) Refused() bool {
	return !r.Started && r.Message != msgAlreadyRunning
}

// StatsResponse carries LastIndexed as RFC 3339, or null for an empty store.
type StatsResponse struct {
	IndexedFiles int64   `json:"indexed_files"`
	LaunchCount  int64   `json:"launch_count"`
	LastIndexed  *string `json:"last_indexed"`
}

type ModelInfo struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

type ModelsResponse struct {
	Embedding ModelInfo `json:"embedding"`
}

type errorResponse struct {
	Error string `json:"error"`
}
