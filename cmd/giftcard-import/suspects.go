package main

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// suspects collects codes that may occur more than once.
type suspects struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	codes  map[string]bool
}

func newSuspects() *suspects {
	return &suspects{
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		codes:  make(map[string]bool),
	}
}

// add records code and marks it suspect when the filter has probably seen
// it before.
func (s *suspects) add(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter.TestOrAddString(code) {
		s.codes[code] = true
	}
}
