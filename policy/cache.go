package policy

import (
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Decoder turns an encoded policy into a Policy.
type Decoder interface {
	Decode(data []byte) (Policy, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(data []byte) (Policy, error)

func (f DecoderFunc) Decode(data []byte) (Policy, error) {
	return f(data)
}

// Uncached decodes every call.
var Uncached Decoder = DecoderFunc(Decode)

type cacheEntry struct {
	raw    string
	policy Policy
}

// Cache memoizes decoded policies across configuration replays.
// Thread-safe; policies are immutable values and may be shared.
type Cache struct {
	entries *lru.Cache[uint64, cacheEntry]
}

var _ Decoder = (*Cache)(nil)

// NewCache creates a cache holding up to size decoded policies.
func NewCache(size int) (*Cache, error) {
	entries, err := lru.New[uint64, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Decode returns the cached policy for data, decoding on miss. Decode failures are not cached.
func (c *Cache) Decode(data []byte) (Policy, error) {
	key := xxhash.Sum64(data)
	if e, ok := c.entries.Get(key); ok && e.raw == string(data) {
		return e.policy, nil
	}

	p, err := Decode(data)
	if err != nil {
		return nil, err
	}
	c.entries.Add(key, cacheEntry{raw: string(data), policy: p})
	return p, nil
}

// Len returns the number of cached policies.
func (c *Cache) Len() int {
	return c.entries.Len()
}
