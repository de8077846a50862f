package controlpoint

import "sync"

// Set is an ordered, mutable collection of control points. Insertion order
// is the estimation order; names are unique.
type Set struct {
	mu      sync.Mutex
	points  []ControlPoint
	index   map[string]int
	version uint64
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{index: make(map[string]int)}
}

// MergeSource sets the source side of the named point, adding the point if
// the name is new.
func (s *Set) MergeSource(name string, pos Position) {
	s.merge(name, func(cp *ControlPoint) {
		p := pos
		cp.Source = &p
	})
}

// MergeTarget sets the target side of the named point, adding the point if
// the name is new.
func (s *Set) MergeTarget(name string, pos Position) {
	s.merge(name, func(cp *ControlPoint) {
		p := pos
		cp.Target = &p
	})
}

func (s *Set) merge(name string, apply func(*ControlPoint)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[name]
	if !ok {
		s.points = append(s.points, ControlPoint{Name: name})
		i = len(s.points) - 1
		s.index[name] = i
	}
	apply(&s.points[i])
	s.version++
}

// Add appends a point, replacing any point with the same name in place.
func (s *Set) Add(cp ControlPoint) {
	s.merge(cp.Name, func(dst *ControlPoint) {
		*dst = cloneControlPoint(cp)
	})
}

// RemoveIncomplete drops every point missing a side and returns the number
// removed. The order of the remaining points is preserved.
func (s *Set) RemoveIncomplete() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.points[:0]
	removed := 0
	for _, cp := range s.points {
		if cp.Complete() {
			kept = append(kept, cp)
		} else {
			removed++
		}
	}
	s.points = kept
	s.index = make(map[string]int, len(kept))
	for i, cp := range kept {
		s.index[cp.Name] = i
	}
	if removed > 0 {
		s.version++
	}
	return removed
}

// Len is the number of points.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

// Version increases with every mutation.
func (s *Set) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Snapshot freezes the current contents. Later mutations of the set do not
// affect the snapshot.
func (s *Set) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	points := make([]ControlPoint, len(s.points))
	for i, cp := range s.points {
		points[i] = cloneControlPoint(cp)
	}
	return &Snapshot{version: s.version, points: points}
}

func cloneControlPoint(cp ControlPoint) ControlPoint {
	out := ControlPoint{Name: cp.Name}
	if cp.Source != nil {
		p := *cp.Source
		out.Source = &p
	}
	if cp.Target != nil {
		p := *cp.Target
		out.Target = &p
	}
	return out
}

// Snapshot is an immutable, index-stable view of a Set. Point i owns rows
// 2i and 2i+1 of every matrix built from the snapshot.
type Snapshot struct {
	version uint64
	points  []ControlPoint
}

// NewSnapshot builds a snapshot directly from points, in order.
func NewSnapshot(points []ControlPoint) *Snapshot {
	s := NewSet()
	for _, cp := range points {
		s.Add(cp)
	}
	return s.Snapshot()
}

// Len is the number of points.
func (s *Snapshot) Len() int { return len(s.points) }

// Version is the version of the set when the snapshot was taken.
func (s *Snapshot) Version() uint64 { return s.version }

// At returns a copy of point i.
func (s *Snapshot) At(i int) ControlPoint { return cloneControlPoint(s.points[i]) }

// Points returns a copy of all points.
func (s *Snapshot) Points() []ControlPoint {
	out := make([]ControlPoint, len(s.points))
	for i, cp := range s.points {
		out[i] = cloneControlPoint(cp)
	}
	return out
}

// Anchor returns the position used to place point i for covariance
// distances: the source side, falling back to the target side.
func (s *Snapshot) Anchor(i int) (Position, bool) {
	cp := s.points[i]
	switch {
	case cp.Source != nil:
		return *cp.Source, true
	case cp.Target != nil:
		return *cp.Target, true
	}
	return Position{}, false
}

// MeanSourceLat is the mean source latitude over points with a source side,
// or 0 for an empty set.
func (s *Snapshot) MeanSourceLat() float64 {
	sum, n := 0.0, 0
	for _, cp := range s.points {
		if cp.Source != nil {
			sum += cp.Source.Lat
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// MeanEpochSpan is the mean of target epoch minus source epoch, in years,
// over complete points, or 0 when no point is complete.
func (s *Snapshot) MeanEpochSpan() float64 {
	sum, n := 0.0, 0
	for _, cp := range s.points {
		if cp.Complete() {
			sum += cp.Target.Epoch - cp.Source.Epoch
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Complete reports whether every point has both sides.
func (s *Snapshot) Complete() bool {
	for _, cp := range s.points {
		if !cp.Complete() {
			return false
		}
	}
	return true
}
