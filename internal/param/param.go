// internal/param/param.go
package param

import "fmt"

// Update is one changed parameter reported to listeners.
type Update struct {
	Index int
	Name  string
	Value int32
}

// Listener receives the parameters changed since the previous Publish.
// Listeners run with the owner's lock held and must not block.
type Listener func(owner string, updates []Update)

// Store is an indexed table of named int32 parameters.
// Store is not safe for concurrent use: the owning device's mutex guards it.
type Store struct {
	owner string

	names  []string
	index  map[string]int
	values []int32
	dirty  []bool

	listeners []Listener
}

// NewStore creates an empty store for owner.
func NewStore(owner string) *Store {
	return &Store{
		owner: owner,
		index: make(map[string]int),
	}
}

// Owner returns the owner name.
func (s *Store) Owner() string { return s.owner }

// Create registers a new parameter and returns its index.
func (s *Store) Create(name string) (int, error) {
	if _, dup := s.index[name]; dup {
		return -1, fmt.Errorf("param: %s: duplicate parameter %q", s.owner, name)
	}
	i := len(s.names)
	s.names = append(s.names, name)
	s.values = append(s.values, 0)
	s.dirty = append(s.dirty, false)
	s.index[name] = i
	return i, nil
}

// Find resolves a parameter name.
func (s *Store) Find(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Len returns the number of parameters.
func (s *Store) Len() int { return len(s.names) }

// Name returns the name of parameter i.
func (s *Store) Name(i int) string { return s.names[i] }

// Get returns the current value of parameter i.
func (s *Store) Get(i int) int32 { return s.values[i] }

// Set stores v and marks parameter i changed if the value differs.
func (s *Store) Set(i int, v int32) {
	if s.values[i] == v {
		return
	}
	s.values[i] = v
	s.dirty[i] = true
}

// Snapshot copies all values in index order.
func (s *Store) Snapshot() []int32 {
	out := make([]int32, len(s.values))
	copy(out, s.values)
	return out
}

// Subscribe adds a listener.
func (s *Store) Subscribe(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Publish reports every changed parameter once and clears the changed set.
func (s *Store) Publish() {
	var ups []Update
	for i, d := range s.dirty {
		if !d {
			continue
		}
		s.dirty[i] = false
		ups = append(ups, Update{Index: i, Name: s.names[i], Value: s.values[i]})
	}
	if len(ups) == 0 {
		return
	}
	for _, l := range s.listeners {
		l(s.owner, ups)
	}
}
