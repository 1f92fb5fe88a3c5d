package room

import (
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultRoom is used when a client connects without naming one.
const DefaultRoom = "lobby"

// Options tune per-connection behavior. Zero values take defaults.
type Options struct {
	SendBuffer      int
	MaxMessageBytes int64
	PingInterval    time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 * 1024
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	return o
}

// Registry maps room ids to live rooms. Rooms appear on first join
// and vanish when their last member leaves; a room found in the map
// is always open, because teardown needs the registry lock too.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	opts   Options
	logger *zap.Logger
}

func NewRegistry(opts Options, logger *zap.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Join resolves roomID, creating the room on first use, and adds c to
// it. Holding the registry lock across the join closes the window in
// which an emptying room could be torn down under the new member.
func (reg *Registry) Join(roomID string, c *Client) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		r = newRoom(roomID, reg.opts, reg.logger)
		r.onEmpty = reg.release
		reg.rooms[roomID] = r
		reg.logger.Info("room created", zap.String("room", roomID))
	}
	r.Join(c)
	return r
}

func (reg *Registry) Get(roomID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[roomID]
	return r, ok
}

// Stats lists every live room, ordered by id.
func (reg *Registry) Stats() []Stats {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	out := make([]Stats, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Stats())
	}
	slices.SortFunc(out, func(a, b Stats) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// release drops r from the map if it is still empty. A join that beat
// us to the registry lock has either repopulated r or replaced it.
func (reg *Registry) release(r *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.clients) > 0 {
		return
	}
	if reg.rooms[r.ID] == r {
		delete(reg.rooms, r.ID)
		reg.logger.Info("room destroyed",
			zap.String("room", r.ID),
			zap.Int("strokes", r.store.Len()),
			zap.Int("ops", r.log.Len()))
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Anyone on the LAN may join; there is no origin allowlist.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and joins the client to the room named
// by the query string, e.g. /ws?room=standup&name=alice.
func (reg *Registry) ServeWS(w http.ResponseWriter, req *http.Request) {
	roomID := strings.TrimSpace(req.URL.Query().Get("room"))
	if roomID == "" {
		roomID = DefaultRoom
	}
	name := strings.TrimSpace(req.URL.Query().Get("name"))
	if len(name) > 32 {
		name = name[:32]
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		reg.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := newClient(conn, name, reg.opts.SendBuffer, reg.logger)
	reg.Join(roomID, c)
	go c.writePump()
	go c.readPump()
}
