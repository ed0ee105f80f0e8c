package vote

import (
	"sort"
)

// FrequencyTable counts occurrences of integer keys. Iteration is always in
// ascending key order so that tie-breaks are deterministic.
type FrequencyTable struct {
	counts map[int]int
	total  int
}

func NewFrequencyTable() *FrequencyTable {
	return &FrequencyTable{counts: make(map[int]int)}
}

func (t *FrequencyTable) Add(key int) {
	t.counts[key]++
	t.total++
}

func (t *FrequencyTable) Count(key int) int {
	return t.counts[key]
}

func (t *FrequencyTable) Total() int {
	return t.total
}

func (t *FrequencyTable) Len() int {
	return len(t.counts)
}

// Keys returns the distinct keys in ascending order.
func (t *FrequencyTable) Keys() []int {
	keys := make([]int, 0, len(t.counts))
	for k := range t.counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Mode returns the most frequent key; ties go to the smallest key.
// ok is false when the table is empty.
func (t *FrequencyTable) Mode() (key int, ok bool) {
	best := -1
	for _, k := range t.Keys() {
		if c := t.counts[k]; c > best {
			key, best = k, c
		}
	}
	return key, best > 0
}

// ShareExceeds reports count(key)/total > num/den using integer arithmetic.
func (t *FrequencyTable) ShareExceeds(key, num, den int) bool {
	if t.total == 0 {
		return false
	}
	return t.counts[key]*den > num*t.total
}

// ShareAtLeast reports count(key)/total >= num/den using integer arithmetic.
func (t *FrequencyTable) ShareAtLeast(key, num, den int) bool {
	if t.total == 0 {
		return false
	}
	return t.counts[key]*den >= num*t.total
}
