package training

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Store keeps live sessions in memory. Sessions idle past the TTL are
// dropped; nothing is ever persisted.
type Store struct {
	cache *cache.Cache
}

func NewStore(ttl time.Duration) *Store {
	return &Store{cache: cache.New(ttl, 10*time.Minute)}
}

// Save stores the session and restarts its idle timer.
func (r *Store) Save(s *Session) {
	r.cache.Set(s.ID().String(), s, cache.DefaultExpiration)
}

func (r *Store) Get(id uuid.UUID) (*Session, bool) {
	if x, found := r.cache.Get(id.String()); found {
		return x.(*Session), true
	}
	return nil, false
}

func (r *Store) Delete(id uuid.UUID) {
	r.cache.Delete(id.String())
}

func (r *Store) Count() int {
	return r.cache.ItemCount()
}
