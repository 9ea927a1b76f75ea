package pipeline

// Stages of one collection run, in order. StageFailed is terminal.
const (
	StageInit              = "init"
	StageSessionCreated    = "session_created"
	StageAuthenticated     = "authenticated"
	StageQuerySubmitted    = "query_submitted"
	StageDownloadTriggered = "download_triggered"
	StageFileReceived      = "file_received"
	StageExtracted         = "extracted"
	StageFiltered          = "filtered"
	StagePersisted         = "persisted"
	StageFailed            = "failed"
)

// Stages lists the success path.
var Stages = []string{
	StageInit,
	StageSessionCreated,
	StageAuthenticated,
	StageQuerySubmitted,
	StageDownloadTriggered,
	StageFileReceived,
	StageExtracted,
	StageFiltered,
	StagePersisted,
}

// stageCategory groups stages for progress consumers.
var stageCategory = map[string]string{
	StageInit:              "request",
	StageSessionCreated:    "browser",
	StageAuthenticated:     "browser",
	StageQuerySubmitted:    "browser",
	StageDownloadTriggered: "browser",
	StageFileReceived:      "download",
	StageExtracted:         "extraction",
	StageFiltered:          "relevance",
	StagePersisted:         "storage",
	StageFailed:            "request",
}

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step     string `json:"step"`
	Category string `json:"category"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
	Content  any    `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)
