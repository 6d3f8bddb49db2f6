package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rendezvous/internal/domain"
)

type nopSignal struct{}

func (nopSignal) TrySend(Frame) error { return nil }
func (nopSignal) Close()              {}

func newConn(id string) *Connection {
	return NewConnection(domain.PeerID(id), nopSignal{})
}

func roomOf(t *testing.T, c *Connection) domain.RoomID {
	t.Helper()
	id, _ := c.RoomID()
	return id
}

func ids(conns []*Connection) []domain.PeerID {
	out := make([]domain.PeerID, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}

func TestDirectory_CreateJoinLeaveRoundTrip(t *testing.T) {
	d := NewDirectory()
	a, b := newConn("a"), newConn("b")

	_, attached := a.RoomID()
	require.False(t, attached)

	room, err := d.CreateRoom("", a)
	require.NoError(t, err)
	require.NotEmpty(t, room.ID())
	assert.Equal(t, room.ID(), roomOf(t, a))
	assert.Equal(t, 1, room.MemberCount())

	res, err := d.JoinRoom(room.ID(), b)
	require.NoError(t, err)
	assert.Equal(t, 2, res.MemberCount)
	assert.Equal(t, []domain.PeerID{"a"}, ids(res.Others))
	assert.Equal(t, room.ID(), roomOf(t, b))

	left, ok := d.LeaveRoom(b)
	require.True(t, ok)
	assert.False(t, left.Deleted)
	assert.Equal(t, []domain.PeerID{"a"}, ids(left.Remaining))
	_, attached = b.RoomID()
	assert.False(t, attached)

	left, ok = d.LeaveRoom(a)
	require.True(t, ok)
	assert.True(t, left.Deleted)
	assert.Empty(t, left.Remaining)

	_, found := d.Resolve(room.ID())
	assert.False(t, found)
	assert.Equal(t, 0, d.Len())
}

func TestDirectory_CreateRoom(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*Directory)
		requested domain.RoomID
		gen       func() domain.RoomID
		wantID    domain.RoomID
		wantErr   error
	}{
		{
			name:      "explicit id",
			requested: "kitchen",
			wantID:    "kitchen",
		},
		{
			name: "explicit id already live",
			setup: func(d *Directory) {
				_, err := d.CreateRoom("kitchen", newConn("owner"))
				require.NoError(t, err)
			},
			requested: "kitchen",
			wantErr:   domain.ErrRoomAlreadyExists,
		},
		{
			name: "generated id skips live ids",
			setup: func(d *Directory) {
				_, err := d.CreateRoom("r1", newConn("owner"))
				require.NoError(t, err)
			},
			gen: func() func() domain.RoomID {
				n := 0
				return func() domain.RoomID {
					n++
					return domain.RoomID(fmt.Sprintf("r%d", n))
				}
			}(),
			wantID: "r2",
		},
		{
			name: "generator exhausted",
			setup: func(d *Directory) {
				_, err := d.CreateRoom("same", newConn("owner"))
				require.NoError(t, err)
			},
			gen:     func() domain.RoomID { return "same" },
			wantErr: domain.ErrRoomAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []DirectoryOption
			if tt.gen != nil {
				opts = append(opts, WithIDGenerator(tt.gen))
			}
			d := NewDirectory(opts...)
			if tt.setup != nil {
				tt.setup(d)
			}
			c := newConn("creator")

			room, err := d.CreateRoom(tt.requested, c)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				_, attached := c.RoomID()
				assert.False(t, attached)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, room.ID())
			assert.Equal(t, tt.wantID, roomOf(t, c))
		})
	}
}

func TestDirectory_CreateWhileAttached(t *testing.T) {
	d := NewDirectory()
	a := newConn("a")
	room, err := d.CreateRoom("", a)
	require.NoError(t, err)

	_, err = d.CreateRoom("", a)
	require.ErrorIs(t, err, domain.ErrAlreadyInRoom)
	_, err = d.JoinRoom(room.ID(), a)
	require.ErrorIs(t, err, domain.ErrAlreadyInRoom)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 1, room.MemberCount())
}

func TestDirectory_JoinErrors(t *testing.T) {
	t.Run("room not found", func(t *testing.T) {
		d := NewDirectory()
		c := newConn("c")
		_, err := d.JoinRoom("nonexistent", c)
		require.ErrorIs(t, err, domain.ErrRoomNotFound)
		_, attached := c.RoomID()
		assert.False(t, attached)
	})

	t.Run("room full at capacity two", func(t *testing.T) {
		d := NewDirectory(WithMaxMembers(2))
		a, b, c := newConn("a"), newConn("b"), newConn("c")
		room, err := d.CreateRoom("", a)
		require.NoError(t, err)
		_, err = d.JoinRoom(room.ID(), b)
		require.NoError(t, err)

		_, err = d.JoinRoom(room.ID(), c)
		require.ErrorIs(t, err, domain.ErrRoomFull)
		assert.Equal(t, []domain.PeerID{"a", "b"}, ids(room.Members()))
		_, attached := c.RoomID()
		assert.False(t, attached)
	})

	t.Run("unbounded", func(t *testing.T) {
		d := NewDirectory(WithMaxMembers(0))
		room, err := d.CreateRoom("", newConn("owner"))
		require.NoError(t, err)
		for i := range 10 {
			_, err := d.JoinRoom(room.ID(), newConn(fmt.Sprintf("p%d", i)))
			require.NoError(t, err)
		}
		assert.Equal(t, 11, room.MemberCount())
	})

	t.Run("room closed after resolve", func(t *testing.T) {
		d := NewDirectory()
		a := newConn("a")
		room, err := d.CreateRoom("", a)
		require.NoError(t, err)
		_, ok := d.LeaveRoom(a)
		require.True(t, ok)

		// A stale *Room must not be resurrected.
		assert.True(t, room.closed.Load())
		_, err = d.JoinRoom(room.ID(), newConn("late"))
		require.ErrorIs(t, err, domain.ErrRoomNotFound)
	})
}

func TestDirectory_CreateReusesIDOfClosingRoom(t *testing.T) {
	d := NewDirectory()
	old, err := d.CreateRoom("shared", newConn("a"))
	require.NoError(t, err)

	// Emptied and closed, but LeaveRoom has not reached the map yet.
	old.mu.Lock()
	old.members = nil
	old.closed.Store(true)
	old.mu.Unlock()

	b := newConn("b")
	fresh, err := d.CreateRoom("shared", b)
	require.NoError(t, err)
	assert.NotSame(t, old, fresh)

	got, ok := d.Resolve("shared")
	require.True(t, ok)
	assert.Same(t, fresh, got)
	assert.Equal(t, []domain.PeerID{"b"}, ids(got.Members()))
}

func TestDirectory_LeaveIsIdempotent(t *testing.T) {
	d := NewDirectory()
	a, b := newConn("a"), newConn("b")
	room, err := d.CreateRoom("", a)
	require.NoError(t, err)
	_, err = d.JoinRoom(room.ID(), b)
	require.NoError(t, err)

	_, ok := d.LeaveRoom(b)
	require.True(t, ok)
	_, ok = d.LeaveRoom(b)
	assert.False(t, ok)

	assert.Equal(t, []domain.PeerID{"a"}, ids(room.Members()))
	_, found := d.Resolve(room.ID())
	assert.True(t, found)
}

func TestDirectory_MembersExceptAndMember(t *testing.T) {
	d := NewDirectory(WithMaxMembers(0))
	a, b, c := newConn("a"), newConn("b"), newConn("c")
	room, err := d.CreateRoom("", a)
	require.NoError(t, err)
	for _, m := range []*Connection{b, c} {
		_, err := d.JoinRoom(room.ID(), m)
		require.NoError(t, err)
	}

	assert.Equal(t, []domain.PeerID{"a", "c"}, ids(d.MembersExcept(room.ID(), b)))
	assert.Nil(t, d.MembersExcept("missing", b))

	got, ok := d.Member(room.ID(), "c")
	require.True(t, ok)
	assert.Same(t, c, got)
	_, ok = d.Member(room.ID(), "zz")
	assert.False(t, ok)
}

func TestDirectory_List(t *testing.T) {
	d := NewDirectory()
	_, err := d.CreateRoom("b-room", newConn("1"))
	require.NoError(t, err)
	room, err := d.CreateRoom("a-room", newConn("2"))
	require.NoError(t, err)
	_, err = d.JoinRoom(room.ID(), newConn("3"))
	require.NoError(t, err)

	assert.Equal(t, []RoomInfo{
		{ID: "a-room", MemberCount: 2},
		{ID: "b-room", MemberCount: 1},
	}, d.List())
}

// Each connection's binding must match the room that lists it, and no empty
// room may stay resolvable, whatever the interleaving.
func TestDirectory_ConcurrentChurn(t *testing.T) {
	d := NewDirectory(WithMaxMembers(3))
	const rooms = 8
	const peers = 64

	ids := make([]domain.RoomID, 0, rooms)
	owners := make([]*Connection, 0, rooms)
	for i := range rooms {
		owner := newConn(fmt.Sprintf("owner-%d", i))
		room, err := d.CreateRoom("", owner)
		require.NoError(t, err)
		ids = append(ids, room.ID())
		owners = append(owners, owner)
	}

	conns := make([]*Connection, peers)
	var wg conc.WaitGroup
	for i := range peers {
		conns[i] = newConn(fmt.Sprintf("p-%d", i))
		c := conns[i]
		target := ids[i%rooms]
		wg.Go(func() {
			for range 50 {
				if _, err := d.JoinRoom(target, c); err == nil {
					d.LeaveRoom(c)
				}
			}
		})
	}
	var mu sync.Mutex
	ownersLeft := 0
	for _, o := range owners[:rooms/2] {
		wg.Go(func() {
			if _, ok := d.LeaveRoom(o); ok {
				mu.Lock()
				ownersLeft++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	assert.Equal(t, rooms/2, ownersLeft)
	for _, c := range conns {
		_, attached := c.RoomID()
		assert.False(t, attached, "peer %s still attached", c.ID())
	}
	for _, info := range d.List() {
		room, ok := d.Resolve(info.ID)
		require.True(t, ok)
		for _, m := range room.Members() {
			assert.Equal(t, info.ID, roomOf(t, m))
		}
	}
	assert.Equal(t, rooms/2, d.Len())
}
