package room

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestRegistryCreatesAndDestroysRooms(t *testing.T) {
	reg := newTestRegistry()

	alice := newTestClient("alice")
	r := reg.Join("scratch", alice)
	if _, ok := reg.Get("scratch"); !ok {
		t.Fatal("room missing after join")
	}
	drawStroke(t, r, alice)

	bob := newTestClient("bob")
	reg.Join("scratch", bob)

	r.Leave(alice)
	if _, ok := reg.Get("scratch"); !ok {
		t.Fatal("room destroyed while a member remains")
	}
	r.Leave(bob)
	if _, ok := reg.Get("scratch"); ok {
		t.Fatal("empty room still registered")
	}

	// A later join gets a fresh canvas, not the discarded one.
	carol := newTestClient("carol")
	r2 := reg.Join("scratch", carol)
	if r2 == r {
		t.Fatal("registry resurrected a destroyed room")
	}
	if stats := r2.Stats(); stats.Strokes != 0 || stats.Ops != 0 {
		t.Fatalf("fresh room carries state: %+v", stats)
	}
}

func TestRegistryStats(t *testing.T) {
	reg := newTestRegistry()
	r := reg.Join("beta", newTestClient("alice"))
	reg.Join("alpha", newTestClient("bob"))
	drawStroke(t, r, r.anyClient(t))

	stats := reg.Stats()
	if len(stats) != 2 || stats[0].ID != "alpha" || stats[1].ID != "beta" {
		t.Fatalf("stats = %+v, want alpha then beta", stats)
	}
	if stats[1].Members != 1 || stats[1].Strokes != 1 || stats[1].Visible != 1 || stats[1].Ops != 1 {
		t.Fatalf("beta stats = %+v", stats[1])
	}
}

// anyClient returns one current member, for tests that only need a
// hand to draw with.
func (r *Room) anyClient(t *testing.T) *Client {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		return c
	}
	t.Fatal("room has no members")
	return nil
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return m
}

func TestServeWSEndToEnd(t *testing.T) {
	reg := NewRegistry(Options{}, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(reg.ServeWS))
	defer srv.Close()

	alice := dialWS(t, srv, "?room=e2e&name=alice")
	defer alice.Close()

	welcome := readFrame(t, alice)
	if welcome["type"] != msgWelcome || welcome["room"] != "e2e" {
		t.Fatalf("first frame = %v", welcome)
	}
	aliceID := welcome["client_id"].(string)
	members := welcome["members"].([]any)
	if len(members) != 1 || members[0].(map[string]any)["name"] != "alice" {
		t.Fatalf("welcome members = %v", members)
	}

	bob := dialWS(t, srv, "?room=e2e&name=bob")
	defer bob.Close()
	readFrame(t, bob) // welcome
	readFrame(t, alice) // presence join

	if err := alice.WriteJSON(map[string]any{"type": msgStrokeStart, "tool": "brush", "width": 2}); err != nil {
		t.Fatalf("write stroke_start: %v", err)
	}
	started := readFrame(t, bob)
	if started["type"] != msgStrokeStarted || started["author_id"] != aliceID {
		t.Fatalf("peer frame = %v", started)
	}
	if own := readFrame(t, alice); own["type"] != msgStrokeStarted {
		t.Fatalf("author frame = %v", own)
	}

	alice.Close()
	bob.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := reg.Get("e2e"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("room not destroyed after both connections closed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServeWSDefaultRoom(t *testing.T) {
	reg := NewRegistry(Options{}, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(reg.ServeWS))
	defer srv.Close()

	conn := dialWS(t, srv, "")
	defer conn.Close()

	welcome := readFrame(t, conn)
	if welcome["room"] != DefaultRoom {
		t.Fatalf("room = %v, want %s", welcome["room"], DefaultRoom)
	}
	if name := welcome["members"].([]any)[0].(map[string]any)["name"].(string); !strings.HasPrefix(name, "guest-") {
		t.Fatalf("anonymous member named %q", name)
	}
}
