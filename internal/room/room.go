package room

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"LiveBoard/internal/state"
)

const defaultStrokeWidth = 3

// memberPalette supplies identity colors for participants. A joiner
// takes the first color nobody holds, then the palette wraps.
var memberPalette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728",
	"#9467bd", "#8c564b", "#e377c2", "#17becf",
}

// Room owns one canvas and its connected clients. Every mutation and
// every broadcast happens under mu, so the store and log below it
// never see concurrent writers.
//
// Lock order: Registry.mu before Room.mu.
type Room struct {
	ID string

	mu      sync.Mutex
	store   *state.Store
	log     *state.Log
	clients map[*Client]struct{}
	joinSeq int

	// onEmpty runs after the last client leaves, outside mu.
	onEmpty func(*Room)

	opts   Options
	logger *zap.Logger
}

func newRoom(id string, opts Options, logger *zap.Logger) *Room {
	store := state.NewStore()
	return &Room{
		ID:      id,
		store:   store,
		log:     state.NewLog(store),
		clients: make(map[*Client]struct{}),
		opts:    opts,
		logger:  logger.With(zap.String("room", id)),
	}
}

// Join adds c to the room, assigns its identity color, and sends it a
// full-state welcome. The remaining members learn about c through a
// presence broadcast.
func (r *Room) Join(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.room = r
	c.seq = r.joinSeq
	c.Color = r.pickColor()
	r.joinSeq++
	r.clients[c] = struct{}{}

	visible := r.log.VisibleStrokes()
	visibleIDs := make([]string, len(visible))
	for i, st := range visible {
		visibleIDs[i] = st.ID
	}
	c.enqueue(marshal(welcomeMsg{
		Type:       msgWelcome,
		ClientID:   c.UserID,
		Color:      c.Color,
		Room:       r.ID,
		Members:    r.members(),
		Strokes:    r.store.Strokes(),
		VisibleIDs: visibleIDs,
		Ops:        encodeOps(r.log.Ops()),
	}))
	r.broadcastExcept(marshal(presenceMsg{
		Type:    msgPresence,
		Event:   "join",
		Member:  c.info(),
		Members: r.members(),
	}), c)

	r.logger.Info("member joined",
		zap.String("client", c.UserID),
		zap.String("name", c.Name),
		zap.Int("members", len(r.clients)))
}

// Leave removes c, completes any strokes it left open, and tells the
// registry once the room is empty. Safe to call twice.
func (r *Room) Leave(c *Client) {
	r.mu.Lock()
	if _, ok := r.clients[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, c)
	close(c.send)

	for _, st := range r.store.Strokes() {
		if st.AuthorID == c.UserID && !st.Complete {
			r.store.CompleteStroke(st.ID)
			r.broadcast(marshal(strokeEndedMsg{Type: msgStrokeEnded, StrokeID: st.ID}))
		}
	}
	r.broadcast(marshal(presenceMsg{
		Type:    msgPresence,
		Event:   "leave",
		Member:  c.info(),
		Members: r.members(),
	}))

	empty := len(r.clients) == 0
	r.logger.Info("member left",
		zap.String("client", c.UserID),
		zap.Int("members", len(r.clients)))
	r.mu.Unlock()

	if empty && r.onEmpty != nil {
		r.onEmpty(r)
	}
}

// process applies one decoded client message under the room lock.
func (r *Room) process(c *Client, msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := msg.(type) {
	case *strokeStartMsg:
		r.startStroke(c, m)
	case *strokePointsMsg:
		r.extendStroke(c, m)
	case *strokeEndMsg:
		r.endStroke(c, m)
	case *undoMsg:
		r.undo(c, m.TargetID)
	case *redoMsg:
		r.redo(c, m.TargetID)
	case *clearMsg:
		r.clear(c, m.Scope)
	case *cursorMsg:
		r.cursor(c, m)
	default:
		r.logger.Warn("unhandled message", zap.Any("message", msg))
	}
}

// startStroke opens a stroke for c. Missing attributes fall back to
// sane values rather than rejecting the gesture mid-draw.
func (r *Room) startStroke(c *Client, m *strokeStartMsg) {
	tool := state.Tool(m.Tool)
	if !tool.Valid() {
		tool = state.ToolBrush
	}
	color := m.Color
	if color == "" {
		color = c.Color
	}
	width := m.Width
	if width <= 0 {
		width = defaultStrokeWidth
	}

	st := r.store.CreateStroke(c.UserID, tool, color, width)
	r.log.RecordStroke(st.ID, c.UserID)

	// Everyone gets the metadata, the author included: that frame is
	// how the author learns the stroke id it must extend.
	r.broadcast(marshal(strokeStartedMsg{
		Type:     msgStrokeStarted,
		StrokeID: st.ID,
		AuthorID: c.UserID,
		Tool:     string(st.Tool),
		Color:    st.Color,
		Width:    st.Width,
	}))
	r.logger.Debug("stroke started",
		zap.String("stroke", st.ID), zap.String("client", c.UserID))
}

func (r *Room) extendStroke(c *Client, m *strokePointsMsg) {
	if len(m.Points) == 0 {
		return
	}
	if st, ok := r.store.Stroke(m.StrokeID); ok && st.AuthorID != c.UserID {
		c.enqueue(marshal(errorMsg{Type: msgError, Reason: "not your stroke"}))
		return
	}
	if err := r.store.AppendPoints(m.StrokeID, m.Points); err != nil {
		r.logger.Debug("points rejected",
			zap.String("stroke", m.StrokeID), zap.Error(err))
		c.enqueue(marshal(errorMsg{Type: msgError, Reason: err.Error()}))
		return
	}
	r.broadcastExcept(marshal(m), c)
}

func (r *Room) endStroke(c *Client, m *strokeEndMsg) {
	if st, ok := r.store.Stroke(m.StrokeID); ok && st.AuthorID != c.UserID {
		c.enqueue(marshal(errorMsg{Type: msgError, Reason: "not your stroke"}))
		return
	}
	if err := r.store.CompleteStroke(m.StrokeID); err != nil {
		r.logger.Debug("complete rejected",
			zap.String("stroke", m.StrokeID), zap.Error(err))
		c.enqueue(marshal(errorMsg{Type: msgError, Reason: err.Error()}))
		return
	}
	r.broadcastExcept(marshal(strokeEndedMsg{Type: msgStrokeEnded, StrokeID: m.StrokeID}), c)
}

// undo hides a stroke. An empty target means the sender's own latest
// visible stroke.
func (r *Room) undo(c *Client, targetID string) {
	if targetID == "" {
		var ok bool
		targetID, ok = r.log.LastVisibleStrokeOf(c.UserID)
		if !ok {
			c.enqueue(marshal(errorMsg{Type: msgError, Reason: "nothing to undo"}))
			return
		}
	}
	if _, err := r.log.RequestUndo(c.UserID, targetID); err != nil {
		r.logger.Debug("undo rejected",
			zap.String("stroke", targetID), zap.Error(err))
		c.enqueue(marshal(errorMsg{Type: msgError, Reason: err.Error()}))
		return
	}
	r.broadcastCanvas(1)
	r.logger.Debug("stroke undone",
		zap.String("stroke", targetID), zap.String("client", c.UserID))
}

// redo restores a stroke by consuming an undo. An empty target means
// the sender's own latest unconsumed undo.
func (r *Room) redo(c *Client, targetID string) {
	if targetID == "" {
		var ok bool
		targetID, ok = r.log.LastActiveUndoOf(c.UserID)
		if !ok {
			c.enqueue(marshal(errorMsg{Type: msgError, Reason: "nothing to redo"}))
			return
		}
	}
	if err := r.log.RequestRedo(c.UserID, targetID); err != nil {
		r.logger.Debug("redo rejected",
			zap.String("undo", targetID), zap.Error(err))
		c.enqueue(marshal(errorMsg{Type: msgError, Reason: err.Error()}))
		return
	}
	r.broadcastCanvas(1)
	r.logger.Debug("stroke redone",
		zap.String("undo", targetID), zap.String("client", c.UserID))
}

// clear undoes every visible stroke in scope, one log entry each, so
// a cleared canvas can be restored stroke by stroke.
func (r *Room) clear(c *Client, scope string) {
	if scope == "" {
		scope = scopeAll
	}
	if scope != scopeOwn && scope != scopeAll {
		c.enqueue(marshal(errorMsg{Type: msgError, Reason: "unknown clear scope"}))
		return
	}

	appended := 0
	for _, st := range r.log.VisibleStrokes() {
		if scope == scopeOwn && st.AuthorID != c.UserID {
			continue
		}
		if _, err := r.log.RequestUndo(c.UserID, st.ID); err == nil {
			appended++
		}
	}
	if appended == 0 {
		r.logger.Debug("clear was a no-op", zap.String("client", c.UserID))
		return
	}
	r.broadcastCanvas(appended)
	r.logger.Info("canvas cleared",
		zap.String("client", c.UserID),
		zap.String("scope", scope),
		zap.Int("strokes", appended))
}

func (r *Room) cursor(c *Client, m *cursorMsg) {
	r.broadcastExcept(marshal(cursorOutMsg{
		Type:     msgCursor,
		ClientID: c.UserID,
		X:        m.X,
		Y:        m.Y,
	}), c)
}

// broadcastCanvas pushes the recomputed visible set to everyone,
// together with the last appended log entries.
func (r *Room) broadcastCanvas(appended int) {
	ops := r.log.Ops()
	r.broadcast(marshal(canvasMsg{
		Type:    msgCanvas,
		Strokes: r.log.VisibleStrokes(),
		Ops:     encodeOps(ops[len(ops)-appended:]),
	}))
}

func (r *Room) broadcast(data []byte) {
	for c := range r.clients {
		c.enqueue(data)
	}
}

func (r *Room) broadcastExcept(data []byte, skip *Client) {
	for c := range r.clients {
		if c != skip {
			c.enqueue(data)
		}
	}
}

func (r *Room) members() []memberInfo {
	list := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		list = append(list, c)
	}
	slices.SortFunc(list, func(a, b *Client) int { return a.seq - b.seq })
	out := make([]memberInfo, len(list))
	for i, c := range list {
		out[i] = c.info()
	}
	return out
}

func (r *Room) pickColor() string {
	used := make(map[string]bool, len(r.clients))
	for c := range r.clients {
		used[c.Color] = true
	}
	for _, color := range memberPalette {
		if !used[color] {
			return color
		}
	}
	return memberPalette[r.joinSeq%len(memberPalette)]
}

// Stats is a point-in-time summary of one room, shaped for the room
// listing endpoint.
type Stats struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
	Strokes int    `json:"strokes"`
	Visible int    `json:"visible"`
	Ops     int    `json:"ops"`
}

func (r *Room) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		ID:      r.ID,
		Members: len(r.clients),
		Strokes: r.store.Len(),
		Visible: len(r.log.VisibleStrokes()),
		Ops:     r.log.Len(),
	}
}

// VisibleStrokes deep-copies the visible set so callers can render it
// without holding the room lock.
func (r *Room) VisibleStrokes() []*state.Stroke {
	r.mu.Lock()
	defer r.mu.Unlock()
	visible := r.log.VisibleStrokes()
	out := make([]*state.Stroke, len(visible))
	for i, st := range visible {
		cp := *st
		cp.Points = slices.Clone(st.Points)
		out[i] = &cp
	}
	return out
}
