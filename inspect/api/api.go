package api

// Error represents an API error
type Error struct {
	Error string `json:"error"`
}

// Stream represents the statistics of a registered stream
type Stream struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Appended     uint64 `json:"appended"`
	Retained     int    `json:"retained"`
	Dropped      uint64 `json:"dropped"`
	OpenMatchers int    `json:"openMatchers"`
	Closed       bool   `json:"closed"`
}

// Streams represents a list of registered streams
type Streams struct {
	Streams []Stream `json:"streams"`
}

// History represents the latest events retained by a stream
type History struct {
	Name   string   `json:"name"`
	Events []string `json:"events"`
}
