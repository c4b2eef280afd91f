// Package presence tracks which users hold open push-channel connections and
// tells every connection when that set changes.
package presence

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aaronBIOO/QuickChat/internal/domain"
	"github.com/aaronBIOO/QuickChat/internal/logging"
	"github.com/aaronBIOO/QuickChat/internal/metrics"
)

// Conn is one open push-channel connection. Send must not block.
type Conn interface {
	ID() string
	Send(event string, data any) error
}

// Mirror receives online/offline transitions, e.g. to publish the online set
// to other processes. Only the first connect and last disconnect of a user
// reach it.
type Mirror interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

const (
	mirrorTimeout = 3 * time.Second
	mirrorQueue   = 1024
)

type transition struct {
	userID string
	online bool
}

// Registry maps user id to that user's open connections. An entry exists only
// while its set is non-empty.
type Registry struct {
	// bmu orders broadcasts the same way as the mutations that caused them.
	bmu   sync.Mutex
	mu    sync.RWMutex
	conns map[string]map[string]Conn
	total int

	// Mirror writes run on one goroutine, fed in mutation order, so a slow
	// mirror never holds up connects or disconnects.
	mirror      Mirror
	transitions chan transition
	mirrorDone  chan struct{}
	closed      bool
}

func NewRegistry(mirror Mirror) *Registry {
	r := &Registry{
		conns:  make(map[string]map[string]Conn),
		mirror: mirror,
	}
	if mirror != nil {
		r.transitions = make(chan transition, mirrorQueue)
		r.mirrorDone = make(chan struct{})
		go r.runMirror()
	}
	return r
}

// Close flushes pending mirror updates and stops the mirror worker. The
// registry keeps tracking connections afterwards but mirrors nothing.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.transitions == nil || r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.transitions)
	r.mu.Unlock()
	<-r.mirrorDone
}

// Connect adds conn under userID and broadcasts the online list to every open
// connection, conn included. It returns the list it broadcast.
func (r *Registry) Connect(userID string, conn Conn) []string {
	r.bmu.Lock()
	defer r.bmu.Unlock()

	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]Conn)
		r.conns[userID] = set
	}
	if _, dup := set[conn.ID()]; !dup {
		r.total++
	}
	set[conn.ID()] = conn
	if !ok {
		r.queueLocked(userID, true)
	}
	online, targets := r.snapshotLocked()
	r.mu.Unlock()

	r.publish(online, targets)
	logging.Debug().Str("user_id", userID).Str("conn_id", conn.ID()).Int("online", len(online)).Msg("presence connect")
	return online
}

// Disconnect removes conn from userID's set, dropping the entry when it
// empties, and broadcasts the new online list. Unknown connections are
// ignored and nothing is broadcast; the returned list is then nil.
func (r *Registry) Disconnect(userID string, conn Conn) []string {
	r.bmu.Lock()
	defer r.bmu.Unlock()

	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if _, exists := set[conn.ID()]; !exists {
		r.mu.Unlock()
		return nil
	}
	delete(set, conn.ID())
	r.total--
	if len(set) == 0 {
		delete(r.conns, userID)
		r.queueLocked(userID, false)
	}
	online, targets := r.snapshotLocked()
	r.mu.Unlock()

	r.publish(online, targets)
	logging.Debug().Str("user_id", userID).Str("conn_id", conn.ID()).Int("online", len(online)).Msg("presence disconnect")
	return online
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// Online returns the ids of connected users, sorted.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineLocked()
}

// Connections returns a copy of userID's open connections.
func (r *Registry) Connections(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.conns[userID]
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Count is the number of open connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

func (r *Registry) onlineLocked() []string {
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *Registry) allLocked() []Conn {
	out := make([]Conn, 0, r.total)
	for _, set := range r.conns {
		for _, c := range set {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) snapshotLocked() ([]string, []Conn) {
	metrics.WSConnections.Set(float64(r.total))
	metrics.OnlineUsers.Set(float64(len(r.conns)))
	return r.onlineLocked(), r.allLocked()
}

func (r *Registry) publish(online []string, targets []Conn) {
	for _, c := range targets {
		if err := c.Send(domain.EventGetOnlineUsers, online); err != nil {
			logging.Debug().Err(err).Str("conn_id", c.ID()).Msg("online list push failed")
		}
	}
}

// queueLocked hands a transition to the mirror worker. A full queue drops
// the update rather than stall the caller.
func (r *Registry) queueLocked(userID string, online bool) {
	if r.transitions == nil || r.closed {
		return
	}
	select {
	case r.transitions <- transition{userID: userID, online: online}:
	default:
		logging.Warn().Str("user_id", userID).Bool("online", online).Msg("presence mirror queue full, update dropped")
	}
}

func (r *Registry) runMirror() {
	defer close(r.mirrorDone)
	for t := range r.transitions {
		r.mirrorTransition(t.userID, t.online)
	}
}

func (r *Registry) mirrorTransition(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	var err error
	if online {
		err = r.mirror.SetOnline(ctx, userID)
	} else {
		err = r.mirror.SetOffline(ctx, userID)
	}
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Bool("online", online).Msg("presence mirror update failed")
	}
}
