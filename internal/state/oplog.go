package state

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Op is one entry in a room's operation log. It is a closed sum of
// StrokeOp, UndoOp and RedoOp; code interpreting the log type-switches
// over those three and panics on anything else, so a new variant cannot
// be added without every interpreter being updated.
type Op interface {
	isOp()
}

// StrokeOp records that a stroke was created. Exactly one StrokeOp
// exists per stroke, appended at creation time.
type StrokeOp struct {
	StrokeID string
	AuthorID string
	At       time.Time
}

// UndoOp records a request to hide a stroke. Any author may target any
// visible stroke; restricting undo to the stroke's own author is a
// session-layer policy, not a log rule.
type UndoOp struct {
	ID             string
	TargetStrokeID string
	AuthorID       string
	At             time.Time
}

// RedoOp cancels the effect of one specific UndoOp. Each UndoOp can be
// redone at most once.
type RedoOp struct {
	ID           string
	TargetUndoID string
	AuthorID     string
	At           time.Time
}

func (StrokeOp) isOp() {}
func (UndoOp) isOp()   {}
func (RedoOp) isOp()   {}

// StrokeSource is the log's only view of the stroke store: lookup by
// opaque ID. The log never owns strokes.
type StrokeSource interface {
	Stroke(strokeID string) (*Stroke, bool)
}

// Log is the append-only, strictly ordered record of stroke, undo and
// redo operations for one room. Append order is arrival order at the
// server, which is the single serialization point; the log is the sole
// source of truth for visibility.
//
// A stroke is visible when the number of undos targeting it is no
// greater than the number of redos whose target undo targets it. Every
// query scans the full log; that is linear in log length and documented
// as not scaling past low thousands of operations, which is fine for a
// room that lives only as long as its participants.
type Log struct {
	ops     []Op
	strokes StrokeSource
}

// NewLog returns an empty log reading stroke data from strokes.
func NewLog(strokes StrokeSource) *Log {
	return &Log{strokes: strokes}
}

// RecordStroke appends the StrokeOp for a freshly created stroke.
func (l *Log) RecordStroke(strokeID, authorID string) {
	l.ops = append(l.ops, StrokeOp{StrokeID: strokeID, AuthorID: authorID, At: time.Now()})
}

// RequestUndo appends an UndoOp hiding targetStrokeID and returns the
// new op's ID. It returns ErrNotFound if no such stroke was ever
// recorded, and ErrRejected if the stroke is already hidden: a stale
// or duplicate undo must not double-hide a stroke and desynchronize the
// undo/redo pairing. Rejections leave the log untouched.
func (l *Log) RequestUndo(authorID, targetStrokeID string) (string, error) {
	t := l.tally()
	if _, ok := t.authors[targetStrokeID]; !ok {
		return "", fmt.Errorf("undo stroke %s: %w", targetStrokeID, ErrNotFound)
	}
	if t.undos[targetStrokeID] > t.redos[targetStrokeID] {
		return "", fmt.Errorf("undo stroke %s: already hidden: %w", targetStrokeID, ErrRejected)
	}
	op := UndoOp{
		ID:             uuid.NewString(),
		TargetStrokeID: targetStrokeID,
		AuthorID:       authorID,
		At:             time.Now(),
	}
	l.ops = append(l.ops, op)
	return op.ID, nil
}

// RequestRedo appends a RedoOp cancelling the undo with ID
// targetUndoID. It returns ErrNotFound if no such UndoOp exists and
// ErrRejected if that undo has already been redone. Rejections leave
// the log untouched.
func (l *Log) RequestRedo(authorID, targetUndoID string) error {
	found := false
	for _, op := range l.ops {
		switch op := op.(type) {
		case StrokeOp:
		case UndoOp:
			if op.ID == targetUndoID {
				found = true
			}
		case RedoOp:
			if op.TargetUndoID == targetUndoID {
				return fmt.Errorf("redo undo %s: already redone: %w", targetUndoID, ErrRejected)
			}
		default:
			panic(fmt.Sprintf("state: unhandled operation %T", op))
		}
	}
	if !found {
		return fmt.Errorf("redo undo %s: %w", targetUndoID, ErrNotFound)
	}
	l.ops = append(l.ops, RedoOp{
		ID:           uuid.NewString(),
		TargetUndoID: targetUndoID,
		AuthorID:     authorID,
		At:           time.Now(),
	})
	return nil
}

// IsVisible evaluates the visibility rule for one stroke over the whole
// log. A stroke with no recorded operations counts as visible by the
// formula, but it also has no StrokeOp, so it never appears in
// VisibleStrokes.
func (l *Log) IsVisible(strokeID string) bool {
	t := l.tally()
	return t.undos[strokeID] <= t.redos[strokeID]
}

// VisibleStrokes returns the currently visible strokes in the order
// their StrokeOps entered the log. That order is creation order and is
// unaffected by any amount of undo/redo churn.
func (l *Log) VisibleStrokes() []*Stroke {
	t := l.tally()
	out := make([]*Stroke, 0, len(t.order))
	for _, id := range t.order {
		if t.undos[id] > t.redos[id] {
			continue
		}
		if st, ok := l.strokes.Stroke(id); ok {
			out = append(out, st)
		}
	}
	return out
}

// LastVisibleStrokeOf returns the newest completed, visible stroke
// authored by authorID, by creation order. It backs a client's bare
// "undo" so that an untargeted undo affects the author's own latest
// finished work.
func (l *Log) LastVisibleStrokeOf(authorID string) (string, bool) {
	t := l.tally()
	for i := len(t.order) - 1; i >= 0; i-- {
		id := t.order[i]
		if t.authors[id] != authorID || t.undos[id] > t.redos[id] {
			continue
		}
		if st, ok := l.strokes.Stroke(id); ok && st.Complete {
			return id, true
		}
	}
	return "", false
}

// LastActiveUndoOf returns the newest UndoOp by authorID that has not
// been redone yet. It backs a client's bare "redo".
func (l *Log) LastActiveUndoOf(authorID string) (string, bool) {
	redone := make(map[string]struct{})
	for _, op := range l.ops {
		if r, ok := op.(RedoOp); ok {
			redone[r.TargetUndoID] = struct{}{}
		}
	}
	for i := len(l.ops) - 1; i >= 0; i-- {
		u, ok := l.ops[i].(UndoOp)
		if !ok || u.AuthorID != authorID {
			continue
		}
		if _, done := redone[u.ID]; !done {
			return u.ID, true
		}
	}
	return "", false
}

// Ops returns a copy of the full log in append order, for late-joiner
// synchronization.
func (l *Log) Ops() []Op {
	return slices.Clone(l.ops)
}

// Len reports the number of operations appended so far.
func (l *Log) Len() int {
	return len(l.ops)
}

// tally is the one interpretation pass shared by every query: per
// stroke, creation order, author, and undo/redo counts. Redos resolve
// through the undo they target, which always precedes them in the log.
type tally struct {
	order   []string
	authors map[string]string
	undos   map[string]int
	redos   map[string]int
}

func (l *Log) tally() *tally {
	t := &tally{
		authors: make(map[string]string),
		undos:   make(map[string]int),
		redos:   make(map[string]int),
	}
	undoStroke := make(map[string]string)
	for _, op := range l.ops {
		switch op := op.(type) {
		case StrokeOp:
			if _, seen := t.authors[op.StrokeID]; !seen {
				t.order = append(t.order, op.StrokeID)
				t.authors[op.StrokeID] = op.AuthorID
			}
		case UndoOp:
			undoStroke[op.ID] = op.TargetStrokeID
			t.undos[op.TargetStrokeID]++
		case RedoOp:
			if strokeID, ok := undoStroke[op.TargetUndoID]; ok {
				t.redos[strokeID]++
			}
		default:
			panic(fmt.Sprintf("state: unhandled operation %T", op))
		}
	}
	return t
}
