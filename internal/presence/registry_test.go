package presence

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronBIOO/QuickChat/internal/domain"
)

type frame struct {
	event string
	data  any
}

type fakeConn struct {
	id   string
	fail bool

	mu     sync.Mutex
	frames []frame
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event string, data any) error {
	if c.fail {
		return errors.New("closed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame{event, data})
	return nil
}

func (c *fakeConn) last() frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return frame{}
	}
	return c.frames[len(c.frames)-1]
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type recordingMirror struct {
	delay time.Duration

	mu     sync.Mutex
	events []string
}

func (m *recordingMirror) record(ev string) error {
	time.Sleep(m.delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *recordingMirror) SetOnline(_ context.Context, id string) error {
	return m.record("+" + id)
}

func (m *recordingMirror) SetOffline(_ context.Context, id string) error {
	return m.record("-" + id)
}

func (m *recordingMirror) seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

func TestConnectBroadcastsToEveryone(t *testing.T) {
	r := NewRegistry(nil)
	a := newConn("a1")
	b := newConn("b1")

	assert.Equal(t, []string{"alice"}, r.Connect("alice", a))
	assert.Equal(t, frame{domain.EventGetOnlineUsers, []string{"alice"}}, a.last())

	assert.Equal(t, []string{"alice", "bob"}, r.Connect("bob", b))
	assert.Equal(t, frame{domain.EventGetOnlineUsers, []string{"alice", "bob"}}, a.last())
	assert.Equal(t, frame{domain.EventGetOnlineUsers, []string{"alice", "bob"}}, b.last())

	assert.True(t, r.IsOnline("alice"))
	assert.Equal(t, 2, r.Count())
}

func TestMultipleConnectionsPerUser(t *testing.T) {
	r := NewRegistry(nil)
	tab1 := newConn("t1")
	tab2 := newConn("t2")
	other := newConn("o1")

	r.Connect("alice", tab1)
	r.Connect("alice", tab2)
	r.Connect("bob", other)
	assert.Len(t, r.Connections("alice"), 2)

	online := r.Disconnect("alice", tab1)
	assert.Equal(t, []string{"alice", "bob"}, online, "alice still has a tab open")
	assert.True(t, r.IsOnline("alice"))

	online = r.Disconnect("alice", tab2)
	assert.Equal(t, []string{"bob"}, online)
	assert.False(t, r.IsOnline("alice"))
	assert.Empty(t, r.Connections("alice"))
	assert.Equal(t, frame{domain.EventGetOnlineUsers, []string{"bob"}}, other.last())
}

func TestDisconnectUnknownIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	a := newConn("a1")
	r.Connect("alice", a)
	before := a.count()

	assert.Nil(t, r.Disconnect("alice", newConn("stranger")))
	assert.Nil(t, r.Disconnect("nobody", a))
	assert.Equal(t, before, a.count(), "no broadcast for unknown handles")
	assert.Equal(t, 1, r.Count())
}

func TestBroadcastSurvivesFailingConn(t *testing.T) {
	r := NewRegistry(nil)
	dead := &fakeConn{id: "dead", fail: true}
	live := newConn("live")

	r.Connect("alice", dead)
	r.Connect("bob", live)
	assert.Equal(t, []string{"alice", "bob"}, live.last().data)
}

func TestMirrorSeesTransitionsOnly(t *testing.T) {
	m := &recordingMirror{}
	r := NewRegistry(m)
	t1, t2 := newConn("t1"), newConn("t2")

	r.Connect("alice", t1)
	r.Connect("alice", t2)
	r.Disconnect("alice", t1)
	r.Disconnect("alice", t2)
	r.Connect("alice", t1)
	r.Close()

	assert.Equal(t, []string{"+alice", "-alice", "+alice"}, m.seen())

	// nothing is mirrored after Close
	r.Disconnect("alice", t1)
	r.Close()
	assert.Len(t, m.seen(), 3)
	assert.False(t, r.IsOnline("alice"))
}

func TestSlowMirrorDoesNotBlockConnects(t *testing.T) {
	m := &recordingMirror{delay: 200 * time.Millisecond}
	r := NewRegistry(m)

	const users = 10
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := fmt.Sprintf("u%d", i)
			r.Connect(uid, newConn(uid+"-c"))
		}(i)
	}
	wg.Wait()
	assert.Less(t, time.Since(start), 150*time.Millisecond, "connects waited on the mirror")
	assert.Len(t, r.Online(), users)

	r.Close()
	assert.Len(t, m.seen(), users, "queued updates are flushed on Close")
}

func TestMirrorKeepsPerUserOrder(t *testing.T) {
	m := &recordingMirror{delay: time.Millisecond}
	r := NewRegistry(m)
	c := newConn("c1")

	for i := 0; i < 5; i++ {
		r.Connect("alice", c)
		r.Disconnect("alice", c)
	}
	r.Close()

	want := []string{}
	for i := 0; i < 5; i++ {
		want = append(want, "+alice", "-alice")
	}
	assert.Equal(t, want, m.seen())
}

func TestConcurrentConnectDisconnect(t *testing.T) {
	r := NewRegistry(nil)
	watcher := newConn("watcher")
	r.Connect("watcher", watcher)

	const users = 50
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := fmt.Sprintf("u%02d", i)
			c := newConn(uid + "-c")
			r.Connect(uid, c)
			_ = r.Online()
			r.Disconnect(uid, c)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []string{"watcher"}, r.Online())
	assert.Equal(t, 1, r.Count())
	require.Equal(t, 1+2*users, watcher.count())
	assert.Equal(t, []string{"watcher"}, watcher.last().data, "final broadcast reflects final state")
}
