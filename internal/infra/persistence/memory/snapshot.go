package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Buckets lists the snapshot buckets in the order durable stores write them.
var Buckets = []string{"products", "claims", "friendships", "memberships"}

// EncodeBuckets serialises each bucket of the snapshot as JSON.
func (s Snapshot) EncodeBuckets() (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		var (
			data []byte
			err  error
		)
		switch bucket {
		case "products":
			data, err = json.Marshal(s.Products)
		case "claims":
			data, err = json.Marshal(s.Claims)
		case "friendships":
			data, err = json.Marshal(s.Friendships)
		case "memberships":
			data, err = json.Marshal(s.Memberships)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket hydrates one bucket of the snapshot. Unknown buckets are ignored
// so older databases with retired buckets still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case "products":
		target = &s.Products
	case "claims":
		target = &s.Claims
	case "friendships":
		target = &s.Friendships
	case "memberships":
		target = &s.Memberships
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

// Checkpoint tracks the bucket payloads a durable store last wrote, so a
// commit only rewrites the buckets whose content changed.
type Checkpoint struct {
	written map[string][]byte
}

// Seed records a payload already present in the database.
func (c *Checkpoint) Seed(bucket string, payload []byte) {
	if c.written == nil {
		c.written = make(map[string][]byte, len(Buckets))
	}
	c.written[bucket] = payload
}

// Pending returns, in Buckets order, the buckets of encoded that differ from
// what was last written.
func (c *Checkpoint) Pending(encoded map[string][]byte) []string {
	var out []string
	for _, bucket := range Buckets {
		prev, ok := c.written[bucket]
		if !ok || !bytes.Equal(prev, encoded[bucket]) {
			out = append(out, bucket)
		}
	}
	return out
}

// Commit marks buckets as written with their payloads from encoded.
func (c *Checkpoint) Commit(encoded map[string][]byte, buckets []string) {
	for _, bucket := range buckets {
		c.Seed(bucket, encoded[bucket])
	}
}
