package memory

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// TargetRegistry tracks feed-observer instances known to be reachable.
// Entries expire if a target goes quiet; navigation or teardown removes them
// explicitly.
type TargetRegistry struct {
	cache *cache.Cache
}

func NewTargetRegistry() *TargetRegistry {
	// Targets that have not been confirmed for 5 minutes drop out on their own.
	c := cache.New(5*time.Minute, 10*time.Minute)
	return &TargetRegistry{cache: c}
}

func (r *TargetRegistry) MarkConnected(target string) {
	r.cache.Set(target, true, cache.DefaultExpiration)
}

func (r *TargetRegistry) IsConnected(target string) bool {
	_, found := r.cache.Get(target)
	return found
}

func (r *TargetRegistry) Remove(target string) {
	r.cache.Delete(target)
}

func (r *TargetRegistry) Connected() []string {
	items := r.cache.Items()
	targets := make([]string, 0, len(items))
	for target := range items {
		targets = append(targets, target)
	}
	return targets
}
