package domain

import "time"

// IdempotencyRecord pins the outcome of a mutating request keyed by
// (actor id, request key). Write-once: created with the mutation it
// guards and read-only thereafter. A later request reusing the key
// with a different payload fingerprint is a conflict, never an
// overwrite.
type IdempotencyRecord struct {
	ActorID     string
	RequestKey  string
	ToolName    string
	PayloadHash string
	Response    []byte
	StatusCode  int
	CreatedAt   time.Time
}
