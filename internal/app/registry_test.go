package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
)

// fakeConn records frames; it fails TrySend once cap frames are queued.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	cap    int
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	if c.cap > 0 && len(c.frames) >= c.cap {
		return errors.New("backpressure")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) events(t *testing.T) []core.PeerEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.PeerEvent, 0, len(c.frames))
	for _, f := range c.frames {
		var ev core.PeerEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func member(name string, role domain.Role) (core.MemberSession, *fakeConn) {
	conn := &fakeConn{}
	return core.NewMemberSession(domain.NewMember(name, role, domain.Identity{Role: role}), conn), conn
}

func TestJoinOrdering(t *testing.T) {
	reg := NewRegistry(NewRoomManager())

	a, connA := member("Dr. Ana", domain.RoleDoctor)
	peers, _ := reg.Join("ABC123", "a", a)
	assert.Empty(t, peers)
	assert.Empty(t, connA.events(t))

	b, connB := member("Bruno", domain.RolePatient)
	peers, res := reg.Join("ABC123", "b", b)
	require.Len(t, peers, 1)
	assert.Equal(t, "Dr. Ana", peers[0].Name)
	assert.Empty(t, res.Dropped)

	evB := connB.events(t)
	require.Len(t, evB, 1)
	assert.Equal(t, core.PeerEvent{Type: core.EventPeerPresent, Room: "ABC123", Name: "Dr. Ana", Role: domain.RoleDoctor}, evB[0])

	evA := connA.events(t)
	require.Len(t, evA, 1)
	assert.Equal(t, core.PeerEvent{Type: core.EventPeerJoined, Room: "ABC123", Name: "Bruno", Role: domain.RolePatient}, evA[0])
}

func TestThirdJoinerSeesEveryone(t *testing.T) {
	reg := NewRegistry(NewRoomManager())
	a, connA := member("A", domain.RoleDoctor)
	b, connB := member("B", domain.RolePatient)
	c, connC := member("C", domain.RolePatient)
	reg.Join("R1", "a", a)
	reg.Join("R1", "b", b)
	reg.Join("R1", "c", c)

	evC := connC.events(t)
	require.Len(t, evC, 2)
	assert.Equal(t, "A", evC[0].Name)
	assert.Equal(t, "B", evC[1].Name)
	for _, ev := range evC {
		assert.Equal(t, core.EventPeerPresent, ev.Type)
	}

	assert.Len(t, connA.events(t), 2)
	evB := connB.events(t)
	require.Len(t, evB, 2)
	assert.Equal(t, core.EventPeerPresent, evB[0].Type)
	assert.Equal(t, core.EventPeerJoined, evB[1].Type)
}

func TestLeaveNotifiesAndCollectsRoom(t *testing.T) {
	reg := NewRegistry(NewRoomManager())
	a, connA := member("A", domain.RoleDoctor)
	b, _ := member("B", domain.RolePatient)
	reg.Join("R1", "a", a)
	reg.Join("R1", "b", b)

	left, _ := reg.Leave("R1", "b")
	assert.True(t, left)
	evA := connA.events(t)
	require.Len(t, evA, 2)
	assert.Equal(t, core.PeerEvent{Type: core.EventPeerLeft, Room: "R1", Name: "B", Role: domain.RolePatient}, evA[1])

	left, _ = reg.Leave("R1", "b")
	assert.False(t, left)

	left, _ = reg.Leave("OTHER", "a")
	assert.False(t, left)

	reg.Leave("R1", "a")
	assert.Empty(t, reg.Snapshot())
	assert.Zero(t, reg.ConnectionCount())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	reg := NewRegistry(NewRoomManager())
	a, connA := member("A", domain.RoleDoctor)
	b, _ := member("B", domain.RolePatient)
	reg.Join("R1", "a", a)
	reg.Join("R1", "b", b)

	reg.OnDisconnect("b")
	reg.OnDisconnect("b")
	reg.OnDisconnect("never-joined")

	evA := connA.events(t)
	require.Len(t, evA, 2)
	assert.Equal(t, core.EventPeerLeft, evA[1].Type)

	_, ok := reg.RoomOf("b")
	assert.False(t, ok)
	assert.Len(t, reg.Peers("R1"), 1)
}

func TestJoinElsewhereLeavesPreviousRoom(t *testing.T) {
	reg := NewRegistry(NewRoomManager())
	a, connA := member("A", domain.RoleDoctor)
	b, _ := member("B", domain.RolePatient)
	reg.Join("R1", "a", a)
	reg.Join("R1", "b", b)

	reg.Join("R2", "b", b)

	code, ok := reg.RoomOf("b")
	require.True(t, ok)
	assert.Equal(t, domain.RoomCode("R2"), code)
	assert.Len(t, reg.Peers("R1"), 1)
	evA := connA.events(t)
	assert.Equal(t, core.EventPeerLeft, evA[len(evA)-1].Type)
}

func TestRelayExcludesSender(t *testing.T) {
	reg := NewRegistry(NewRoomManager())
	a, connA := member("A", domain.RoleDoctor)
	b, connB := member("B", domain.RolePatient)
	reg.Join("R1", "a", a)
	reg.Join("R1", "b", b)
	before := len(connA.frames)

	payload := json.RawMessage(`{"sdp":"v=0","kind":"offer"}`)
	res, err := reg.Relay("R1", "b", payload)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SendTo)

	require.Len(t, connA.frames, before+1)
	var ev core.SignalEvent
	require.NoError(t, json.Unmarshal(connA.frames[before], &ev))
	assert.Equal(t, core.EventSignal, ev.Type)
	assert.Equal(t, "B", ev.From)
	assert.JSONEq(t, string(payload), string(ev.Payload))

	for _, f := range connB.frames {
		assert.NotContains(t, string(f), `"type":"signal"`)
	}
}

func TestRelayRequiresMembership(t *testing.T) {
	reg := NewRegistry(NewRoomManager())
	a, _ := member("A", domain.RoleDoctor)
	reg.Join("R1", "a", a)

	_, err := reg.Relay("R2", "a", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNotInRoom)
	_, err = reg.Relay("R1", "ghost", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestBroadcastReportsDropped(t *testing.T) {
	reg := NewRegistry(NewRoomManager())
	slow := &fakeConn{cap: 1}
	a := core.NewMemberSession(domain.NewMember("A", domain.RoleDoctor, domain.Identity{}), slow)
	reg.Join("R1", "a", a)
	b, _ := member("B", domain.RolePatient)
	reg.Join("R1", "b", b)

	c, _ := member("C", domain.RolePatient)
	_, res := reg.Join("R1", "c", c)
	require.Len(t, res.Dropped, 1)
	assert.Same(t, a, res.Dropped[0])
}

func TestConcurrentJoinsNoLostPeers(t *testing.T) {
	reg := NewRegistry(NewRoomManager())
	const n = 20
	conns := make([]*fakeConn, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		ms, conn := member(string(rune('a'+i)), domain.RolePatient)
		conns[i] = conn
		wg.Add(1)
		go func(i int, ms core.MemberSession) {
			defer wg.Done()
			reg.Join("R1", core.SessionID(rune('a'+i)), ms)
		}(i, ms)
	}
	wg.Wait()

	// Every connection has heard about every other one exactly once.
	for i, conn := range conns {
		assert.Len(t, conn.events(t), n-1, "conn %d", i)
	}
}
