// Package delivery pushes freshly stored messages to the open connections of
// the two people in the conversation.
package delivery

import (
	"context"

	"github.com/aaronBIOO/QuickChat/internal/domain"
	"github.com/aaronBIOO/QuickChat/internal/logging"
	"github.com/aaronBIOO/QuickChat/internal/metrics"
	"github.com/aaronBIOO/QuickChat/internal/presence"
)

// Lookup gives the open connections of a user. presence.Registry satisfies it.
type Lookup interface {
	Connections(userID string) []presence.Conn
}

// Report says how many connections a dispatch reached.
type Report struct {
	Receiver int
	Sender   int
	Failed   int
}

// Delivered is the number of successful pushes.
func (r Report) Delivered() int {
	return r.Receiver + r.Sender
}

type Dispatcher struct {
	lookup Lookup
}

func NewDispatcher(lookup Lookup) *Dispatcher {
	return &Dispatcher{lookup: lookup}
}

// Dispatch pushes msg, which must already be stored, as a newMessage event.
// Nothing is pushed while the receiver is offline. Otherwise every receiver
// connection gets it, then every sender connection not already covered, so
// the sender's other tabs stay in sync. Push failures are only counted.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *domain.Message) Report {
	var rep Report
	receivers := d.lookup.Connections(msg.ReceiverID)
	if len(receivers) == 0 {
		logging.Ctx(ctx).Debug().Str("message_id", msg.ID).Str("receiver_id", msg.ReceiverID).Msg("receiver offline, push skipped")
		return rep
	}

	pushed := make(map[string]struct{}, len(receivers))
	for _, c := range receivers {
		pushed[c.ID()] = struct{}{}
		if d.push(ctx, c, msg) {
			rep.Receiver++
		} else {
			rep.Failed++
		}
	}
	for _, c := range d.lookup.Connections(msg.SenderID) {
		if _, done := pushed[c.ID()]; done {
			continue
		}
		pushed[c.ID()] = struct{}{}
		if d.push(ctx, c, msg) {
			rep.Sender++
		} else {
			rep.Failed++
		}
	}
	return rep
}

func (d *Dispatcher) push(ctx context.Context, c presence.Conn, msg *domain.Message) bool {
	if err := c.Send(domain.EventNewMessage, msg); err != nil {
		metrics.PushDeliveries.WithLabelValues("failed").Inc()
		logging.Ctx(ctx).Debug().Err(err).Str("conn_id", c.ID()).Str("message_id", msg.ID).Msg("push failed")
		return false
	}
	metrics.PushDeliveries.WithLabelValues("ok").Inc()
	return true
}
