package room

import (
	"encoding/json"
	"fmt"
	"time"

	"LiveBoard/internal/state"
)

// Message types sent by clients.
const (
	msgStrokeStart  = "stroke_start"
	msgStrokePoints = "stroke_points"
	msgStrokeEnd    = "stroke_end"
	msgUndo         = "undo"
	msgRedo         = "redo"
	msgClear        = "clear"
	msgCursor       = "cursor"
)

// Message types sent by the server.
const (
	msgWelcome       = "welcome"
	msgPresence      = "presence"
	msgStrokeStarted = "stroke_started"
	msgStrokeEnded   = "stroke_ended"
	msgCanvas        = "canvas"
	msgError         = "error"
)

// Clear scopes.
const (
	scopeOwn = "own"
	scopeAll = "all"
)

type strokeStartMsg struct {
	Type  string  `json:"type"`
	Tool  string  `json:"tool"`
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

type strokePointsMsg struct {
	Type     string        `json:"type"`
	StrokeID string        `json:"stroke_id"`
	Points   []state.Point `json:"points"`
}

type strokeEndMsg struct {
	Type     string `json:"type"`
	StrokeID string `json:"stroke_id"`
}

// undoMsg targets a specific stroke, or the sender's latest visible
// stroke when TargetID is empty.
type undoMsg struct {
	Type     string `json:"type"`
	TargetID string `json:"target_id"`
}

// redoMsg targets a specific undo operation, or the sender's latest
// unconsumed undo when TargetID is empty.
type redoMsg struct {
	Type     string `json:"type"`
	TargetID string `json:"target_id"`
}

type clearMsg struct {
	Type  string `json:"type"`
	Scope string `json:"scope"`
}

type cursorMsg struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// decodeClientMessage peeks at the type field, then unmarshals the
// full payload into the matching struct.
func decodeClientMessage(data []byte) (any, error) {
	var peek struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return nil, fmt.Errorf("decode message envelope: %w", err)
	}

	var msg any
	switch peek.Type {
	case msgStrokeStart:
		msg = &strokeStartMsg{}
	case msgStrokePoints:
		msg = &strokePointsMsg{}
	case msgStrokeEnd:
		msg = &strokeEndMsg{}
	case msgUndo:
		msg = &undoMsg{}
	case msgRedo:
		msg = &redoMsg{}
	case msgClear:
		msg = &clearMsg{}
	case msgCursor:
		msg = &cursorMsg{}
	default:
		return nil, fmt.Errorf("unknown message type %q", peek.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s message: %w", peek.Type, err)
	}
	return msg, nil
}

// memberInfo identifies one connected participant.
type memberInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// welcomeMsg carries the full room state to a joining client: every
// stroke ever drawn, the ids currently visible, and the operation log
// so the client can resolve undo targets locally.
type welcomeMsg struct {
	Type       string          `json:"type"`
	ClientID   string          `json:"client_id"`
	Color      string          `json:"color"`
	Room       string          `json:"room"`
	Members    []memberInfo    `json:"members"`
	Strokes    []*state.Stroke `json:"strokes"`
	VisibleIDs []string        `json:"visible_ids"`
	Ops        []wireOp        `json:"ops"`
}

type presenceMsg struct {
	Type    string       `json:"type"`
	Event   string       `json:"event"`
	Member  memberInfo   `json:"member"`
	Members []memberInfo `json:"members"`
}

type strokeStartedMsg struct {
	Type     string  `json:"type"`
	StrokeID string  `json:"stroke_id"`
	AuthorID string  `json:"author_id"`
	Tool     string  `json:"tool"`
	Color    string  `json:"color"`
	Width    float64 `json:"width"`
}

type strokeEndedMsg struct {
	Type     string `json:"type"`
	StrokeID string `json:"stroke_id"`
}

// canvasMsg replaces the client's visible set wholesale after an undo,
// redo, or clear. Ops carries the log entries appended by the change.
type canvasMsg struct {
	Type    string          `json:"type"`
	Strokes []*state.Stroke `json:"strokes"`
	Ops     []wireOp        `json:"ops"`
}

type cursorOutMsg struct {
	Type     string  `json:"type"`
	ClientID string  `json:"client_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type errorMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Wire op kinds.
const (
	opKindStroke = "stroke"
	opKindUndo   = "undo"
	opKindRedo   = "redo"
)

// wireOp is the JSON shape of a log entry. Kind selects which of the
// optional fields are set.
type wireOp struct {
	Kind           string    `json:"kind"`
	AuthorID       string    `json:"author_id"`
	At             time.Time `json:"at"`
	StrokeID       string    `json:"stroke_id,omitempty"`
	OpID           string    `json:"op_id,omitempty"`
	TargetStrokeID string    `json:"target_stroke_id,omitempty"`
	TargetUndoID   string    `json:"target_undo_id,omitempty"`
}

func encodeOp(op state.Op) wireOp {
	switch o := op.(type) {
	case state.StrokeOp:
		return wireOp{Kind: opKindStroke, AuthorID: o.AuthorID, At: o.At, StrokeID: o.StrokeID}
	case state.UndoOp:
		return wireOp{Kind: opKindUndo, AuthorID: o.AuthorID, At: o.At, OpID: o.ID, TargetStrokeID: o.TargetStrokeID}
	case state.RedoOp:
		return wireOp{Kind: opKindRedo, AuthorID: o.AuthorID, At: o.At, OpID: o.ID, TargetUndoID: o.TargetUndoID}
	default:
		panic(fmt.Sprintf("room: unhandled operation %T", op))
	}
}

func encodeOps(ops []state.Op) []wireOp {
	out := make([]wireOp, len(ops))
	for i, op := range ops {
		out[i] = encodeOp(op)
	}
	return out
}

func marshal(msg any) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		// All message types marshal cleanly; a failure here is a bug.
		panic(fmt.Sprintf("room: marshal %T: %v", msg, err))
	}
	return data
}
