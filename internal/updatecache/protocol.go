package updatecache

// Message types for the update-cache's Unix socket protocol, mirroring
// the teacher project's ipc protocol shape (Request/Response with a Type
// field) applied to database updates instead of probe subscriptions.
const (
	MsgTypeUpdate       = "update"
	MsgTypeSubscribe    = "subscribe"
	MsgTypeUnsubscribe  = "unsubscribe"
	MsgTypeCommitResult = "commit_result"
	MsgTypeError        = "error"
	MsgTypeOK           = "ok"
)

// Request is the base request structure sent by a client.
type Request struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Response is the base response structure sent by the server.
type Response struct {
	ID    string `json:"id,omitempty"`
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// UpdateRequestData is the payload of an update request.
type UpdateRequestData struct {
	Path   string   `json:"path"`
	Time   int64    `json:"time"`
	Values []string `json:"values"`
}

// CommitResultData is the JSON form of a CommitResult.
type CommitResultData struct {
	Path  string `json:"path"`
	Time  int64  `json:"time"`
	Error string `json:"error,omitempty"`
}
