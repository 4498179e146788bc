package models

import "encoding/json"

// App types.
const (
	AppTypeSQL    = "sql"
	AppTypePython = "python"
)

// App is a published notebook cell with its parameter schema and a result
// snapshot.
type App struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Prompt           string          `json:"prompt"`
	Author           string          `json:"author"`
	Type             string          `json:"type"`
	Code             string          `json:"code"`
	SourceDB         string          `json:"sourceDb"`
	SourceNotebookID string          `json:"sourceNotebookId"`
	ParamsSchema     json.RawMessage `json:"paramsSchema"`
	Snapshot         json.RawMessage `json:"snapshot"`
	CreatedAt        int64           `json:"createdAt"`
	Views            int             `json:"views"`
}

// Share is a saved set of parameter values for an app.
type Share struct {
	ID        string          `json:"id"`
	AppID     string          `json:"appId"`
	Params    json.RawMessage `json:"params"`
	CreatedAt int64           `json:"createdAt"`
}
