package models

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Query                string  `json:"query"`
	TopK                 int     `json:"top_k"`
	IncludeRelationships bool    `json:"include_relationships"`
	MinSimilarity        float64 `json:"min_similarity"`
	Debug                bool    `json:"debug"`
}

// ChatResponse is the success body of POST /chat
type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// ErrorResponse is the failure body returned by the chat service.
// Detail is usually a string but validation failures carry a list, so it
// is decoded loosely.
type ErrorResponse struct {
	Detail any `json:"detail"`
}
