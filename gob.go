package policy

import (
	"encoding/gob"
	"hash/fnv"
	"io"
	"reflect"
	"strings"
	"time"

	pcache "github.com/patrickmn/go-cache"
)

// dumpedEntry is the wire shape used by Dump/Restore, one per cached item.
type dumpedEntry struct {
	Segment string
	Key     string
	Entry   entry
	Expires time.Time
}

// Dump saves every segment's cached entries and returns the number of
// entries written.
func (m *Memory) Dump(w io.Writer) (int, error) {
	encoder := gob.NewEncoder(w)

	m.mu.RLock()
	segments := make(map[string]map[string]pcache.Item, len(m.segments))
	for name, c := range m.segments {
		segments[name] = c.Items()
	}
	m.mu.RUnlock()

	n := 0

	for segment, items := range segments {
		for key, item := range items {
			e, ok := item.Object.(entry)
			if !ok {
				continue
			}

			var expires time.Time
			if item.Expiration > 0 {
				expires = time.Unix(0, item.Expiration)
			}

			if err := encoder.Encode(dumpedEntry{Segment: segment, Key: key, Entry: e, Expires: expires}); err != nil {
				return n, err
			}

			n++
		}
	}

	return n, nil
}

// Restore loads dumped entries back into their segments and returns the
// number of entries applied. Entries whose deadline has already passed are
// skipped.
func (m *Memory) Restore(r io.Reader) (int, error) {
	decoder := gob.NewDecoder(r)

	n := 0

	for {
		var e dumpedEntry

		err := decoder.Decode(&e)
		if err == io.EOF {
			break
		}

		if err != nil {
			return n, err
		}

		var ttl time.Duration
		if !e.Expires.IsZero() {
			ttl = time.Until(e.Expires)
			if ttl <= 0 {
				continue
			}
		}

		c := m.segmentCache(e.Segment)
		c.Set(e.Key, e.Entry, ttl)

		n++
	}

	return n, nil
}

var gobTypesHash uint64

// GobTypesHashReset resets the registered-types fingerprint to zero.
func GobTypesHashReset() {
	gobTypesHash = 0
}

// GobTypesHash returns a fingerprint of the group of types registered via
// GobRegister, so two processes can confirm they'll decode a Dump the same
// way.
func GobTypesHash() uint64 {
	return gobTypesHash
}

// GobRegister enables gob transfer of the given values as cached items,
// folding their structural type shape into GobTypesHash.
func GobRegister(values ...interface{}) {
	for _, value := range values {
		h := fnv.New64()
		t := reflect.TypeOf(value)
		// nolint:errcheck // fnv.Write never returns an error.
		_, _ = h.Write([]byte(t.PkgPath() + t.String()))
		recursiveTypeHash(t, h, map[reflect.Type]bool{})
		gobTypesHash ^= h.Sum64()

		gob.Register(value)
	}
}

func recursiveTypeHash(t reflect.Type, h io.Writer, met map[reflect.Type]bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if met[t] {
		return
	}

	met[t] = true

	switch t.Kind() {
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)

			if f.Name != "" && f.Name[0:1] == strings.ToLower(f.Name[0:1]) {
				continue
			}

			if !f.Anonymous {
				// nolint:errcheck // fnv.Write never returns an error.
				_, _ = h.Write([]byte(f.Name))
			}

			recursiveTypeHash(f.Type, h, met)
		}

	case reflect.Slice, reflect.Array:
		recursiveTypeHash(t.Elem(), h, met)
	case reflect.Map:
		recursiveTypeHash(t.Key(), h, met)
		recursiveTypeHash(t.Elem(), h, met)
	default:
		// nolint:errcheck // fnv.Write never returns an error.
		_, _ = h.Write([]byte(t.String()))
	}
}

// nolint:gochecknoinits // Registering types to a package level registry of "encoding/gob".
func init() {
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}
