package models

import "time"

// RetrievalHit is a chunk returned by retrieval with its similarity score (higher is more relevant).
type RetrievalHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"doc_id"`
	Filename   string  `json:"filename,omitempty"`
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Answer is a generated answer with the hits that were offered to the model.
type Answer struct {
	Text     string         `json:"text"`
	Sources  []RetrievalHit `json:"sources"`
	Provider string         `json:"provider"`
}

// Role is the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message of a chat session.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"content"`
	At   time.Time `json:"at"`
}
