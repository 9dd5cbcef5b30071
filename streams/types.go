package streams

// Execution is a stream execution: a server side upload transaction that
// accumulates data parts until it is committed or aborted.
type Execution struct {
	ID           int64  `json:"id"`
	StartedAt    string `json:"startedAt,omitempty"`
	EndedAt      string `json:"endedAt,omitempty"`
	CurrentState string `json:"currentState,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	ModifiedAt   string `json:"modifiedAt,omitempty"`
}

// Column ...
type Column struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Schema ...
type Schema struct {
	Columns []Column `json:"columns"`
}

// DataSet is the dataset a stream writes into.
type DataSet struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Rows        int64  `json:"rows"`
	Columns     int64  `json:"columns"`
	Schema      Schema `json:"schema"`
	Owner       struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"owner"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Stream ...
type Stream struct {
	ID            int64      `json:"id"`
	DataSet       DataSet    `json:"dataSet"`
	UpdateMethod  string     `json:"updateMethod"`
	CreatedAt     string     `json:"createdAt,omitempty"`
	ModifiedAt    string     `json:"modifiedAt,omitempty"`
	LastExecution *Execution `json:"lastExecution,omitempty"`
}
