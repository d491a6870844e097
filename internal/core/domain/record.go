package domain

// Payload is the business content carried by a Record. Clone returns a deep
// copy so stores never share mutable state with callers.
type Payload[P any] interface {
	Clone() P
}

// Record is a versioned business record. Version starts at 1 on creation and
// grows by exactly one on every successful mutation.
type Record[P any] struct {
	ID      string
	Version int64
	Payload P
}

// Token returns the concurrency token for the record's current version.
func (r Record[P]) Token() string {
	return EncodeToken(r.Version)
}
