package domain

// ActorType differentiates the kinds of principals driving mutations.
type ActorType string

const (
	ActorTypeHuman  ActorType = "HUMAN"
	ActorTypeAgent  ActorType = "AGENT"
	ActorTypeSystem ActorType = "SYSTEM"
)

// Actor is the authenticated principal behind a request envelope. Role
// is already normalized through the canonical alias table.
type Actor struct {
	ID   string
	Role string
	Type ActorType
}
