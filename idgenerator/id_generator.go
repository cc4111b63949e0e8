// Package idgenerator hands out connection IDs for the TCP server.
package idgenerator

import "sync/atomic"

// IdGenerator issues increasing non-zero uint32 IDs and is safe for
// concurrent use. Zero is never issued so it can stand for "no connection";
// after wrapping around the counter continues at 1.
type IdGenerator struct {
	id atomic.Uint32
}

// NewIdGenerator creates a generator whose first ID is startValue+1.
//
// Parameters:
//   - startValue: The counter's initial value
//
// Returns:
//   - A new IdGenerator
func NewIdGenerator(startValue uint32) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next ID.
func (g *IdGenerator) Id() uint32 {
	for {
		if id := g.id.Add(1); id != 0 {
			return id
		}
	}
}

// Last returns the most recently issued ID, or the start value if none has
// been issued yet.
func (g *IdGenerator) Last() uint32 {
	return g.id.Load()
}
