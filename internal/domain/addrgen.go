package domain

import (
	"math/rand"
	"sync"
	"time"
)

// LocalPartAlphabet is the character set for generated local parts.
const LocalPartAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// DefaultLocalPartLength keeps the collision probability low at expected
// creation volumes; shorter lengths only increase conflict retries.
const DefaultLocalPartLength = 8

// AddressGenerator produces random local parts. It makes no uniqueness
// guarantee; the store's unique address constraint plus the create retry
// in InboxService enforce that.
type AddressGenerator struct {
	mu     sync.Mutex
	random *rand.Rand
}

// NewAddressGenerator creates a generator seeded from the wall clock.
func NewAddressGenerator() *AddressGenerator {
	return &AddressGenerator{
		random: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// LocalPart returns a random string of the given length drawn uniformly
// from LocalPartAlphabet.
func (g *AddressGenerator) LocalPart(length int) string {
	if length <= 0 {
		length = DefaultLocalPartLength
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	b := make([]byte, length)
	for i := range b {
		b[i] = LocalPartAlphabet[g.random.Intn(len(LocalPartAlphabet))]
	}
	return string(b)
}
