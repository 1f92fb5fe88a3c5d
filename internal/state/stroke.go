// Package state holds the authoritative canvas state for a single room:
// a stroke store owning point data, and an append-only operation log that
// decides which strokes are currently visible.
//
// Nothing in this package locks. The session layer serializes all access
// per room, so every call here runs on at most one goroutine at a time.
package state

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound reports a stroke or operation ID that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRejected reports a well-formed request that violates a log
	// invariant, such as undoing an already-hidden stroke.
	ErrRejected = errors.New("rejected")
)

// Tool selects how a stroke is rendered.
type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

// Valid reports whether t is a known tool.
func (t Tool) Valid() bool {
	return t == ToolBrush || t == ToolEraser
}

// Point is a single sampled position. T is a client-supplied unix
// millisecond timestamp and is informational only; point order within a
// stroke is append order, not timestamp order.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T int64   `json:"t"`
}

// Stroke is one drawn line. Points only ever grow, Complete flips
// false→true exactly once, and strokes are never deleted; hiding a
// stroke is the operation log's business.
type Stroke struct {
	ID       string  `json:"id"`
	AuthorID string  `json:"author_id"`
	Tool     Tool    `json:"tool"`
	Color    string  `json:"color"`
	Width    float64 `json:"width"`
	Points   []Point `json:"points"`
	Complete bool    `json:"complete"`
}

// Store owns every stroke ever drawn in a room, keyed by ID, and
// remembers creation order.
type Store struct {
	strokes map[string]*Stroke
	order   []string
}

// NewStore returns an empty stroke store.
func NewStore() *Store {
	return &Store{strokes: make(map[string]*Stroke)}
}

// CreateStroke allocates a stroke with a fresh ID and no points. It
// always succeeds; the caller is expected to pair it with Log.RecordStroke.
func (s *Store) CreateStroke(authorID string, tool Tool, color string, width float64) *Stroke {
	st := &Stroke{
		ID:       uuid.NewString(),
		AuthorID: authorID,
		Tool:     tool,
		Color:    color,
		Width:    width,
		Points:   make([]Point, 0, 16),
	}
	s.strokes[st.ID] = st
	s.order = append(s.order, st.ID)
	return st
}

// AppendPoints adds pts to the stroke in order. Duplicate delivery of
// the same batch produces duplicate points; deduplication is a client
// concern. Returns ErrNotFound for an unknown stroke without mutating
// anything.
func (s *Store) AppendPoints(strokeID string, pts []Point) error {
	st, ok := s.strokes[strokeID]
	if !ok {
		return fmt.Errorf("append points to stroke %s: %w", strokeID, ErrNotFound)
	}
	st.Points = append(st.Points, pts...)
	return nil
}

// CompleteStroke marks the stroke finished. Completing an already
// complete stroke is a no-op success.
func (s *Store) CompleteStroke(strokeID string) error {
	st, ok := s.strokes[strokeID]
	if !ok {
		return fmt.Errorf("complete stroke %s: %w", strokeID, ErrNotFound)
	}
	st.Complete = true
	return nil
}

// Stroke looks a stroke up by ID.
func (s *Store) Stroke(strokeID string) (*Stroke, bool) {
	st, ok := s.strokes[strokeID]
	return st, ok
}

// Strokes returns every stroke in creation order. The slice is fresh on
// each call; the strokes themselves are shared.
func (s *Store) Strokes() []*Stroke {
	out := make([]*Stroke, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.strokes[id])
	}
	return out
}

// Len reports how many strokes exist, hidden ones included.
func (s *Store) Len() int {
	return len(s.order)
}
