package types

import "time"

// Record holds the fields shared by every persisted entity. The identifier
// lives on the embedding struct so each entity keeps its own id type.
type Record struct {
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewRecord returns a record created and updated at now.
func NewRecord(now time.Time) Record {
	return Record{CreatedAt: now, UpdatedAt: now}
}

// Touch bumps UpdatedAt to now, never letting it fall before CreatedAt.
func (r *Record) Touch(now time.Time) {
	if now.Before(r.CreatedAt) {
		now = r.CreatedAt
	}
	r.UpdatedAt = now
}

// CloneMetadata returns a copy of m, or nil when m is empty.
func CloneMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
