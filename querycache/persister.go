package querycache

import "time"

// Record is the persisted form of an entry.
type Record struct {
	Data      []byte    `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Persister keeps a copy of cache entries across process restarts.
type Persister interface {
	Save(key string, rec Record) error
	Delete(key string) error
	Load() (map[string]Record, error)
}
