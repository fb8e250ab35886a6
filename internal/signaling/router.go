package signaling

import (
	"log/slog"

	"github.com/jacksongoode/decay/internal/metrics"
)

// router applies the per-frame delivery rules against the registry.
//
// The server never inspects negotiation payloads: targeted frames are
// forwarded raw so offers, answers and candidates (and any extra fields a
// client attaches) reach the peer byte for byte.
type router struct {
	reg     *registry
	metrics *metrics.Metrics
	log     *slog.Logger
}

// handleFrame routes one inbound text frame from connection myID.
//
// Failures are deliberately silent: malformed frames and frames addressed to
// an identity that is no longer registered are dropped without any error to
// the sender. Both are expected under normal churn.
func (rt *router) handleFrame(myID uint64, data []byte) {
	msg, err := parseMessage(data)
	if err != nil {
		rt.metrics.Inc(metrics.DropReasonMalformed)
		rt.log.Debug("dropped malformed frame", "conn_id", myID, "err", err)
		return
	}

	rt.reg.touch(myID)

	switch msg.Type {
	case messageTypeWelcome, messageTypeUserList:
		// Server-originated only; a client sending these is ignored.
		rt.metrics.Inc(metrics.DropReasonServerOnly)

	case messageTypePeerStateChange:
		rt.deliver(myID, *msg.ToID, data)
		switch *msg.State {
		case peerStateConnected:
			rt.reg.pair(*msg.FromID, *msg.ToID)
		case peerStateDisconnected:
			rt.reg.unpair(*msg.FromID, *msg.ToID)
		}

	case messageTypeConnectionRequest, messageTypeRTCOffer, messageTypeRTCAnswer, messageTypeRTCCandidate:
		rt.deliver(myID, *msg.ToID, data)

	case messageTypeConnectionResponse:
		// The from_id field names the request's original target, which is now
		// responding back; it is the routing target here.
		rt.deliver(myID, *msg.FromID, data)
	}
}

func (rt *router) deliver(fromID, toID uint64, data []byte) {
	q, ok := rt.reg.lookup(toID)
	if !ok {
		rt.metrics.Inc(metrics.DropReasonUnknownTarget)
		rt.log.Debug("dropped frame for unknown target", "conn_id", fromID, "target_id", toID)
		return
	}
	if q.enqueue(frame{kind: frameText, payload: data}) {
		rt.metrics.Inc(metrics.MessagesRouted)
	}
}

// handleClose runs the disconnect path for myID: notify every paired peer,
// remove the record, and broadcast the refreshed roster to the survivors.
// Callers guarantee it runs at most once per connection.
func (rt *router) handleClose(myID uint64) {
	for _, peerID := range rt.reg.peers(myID) {
		if q, ok := rt.reg.lookup(peerID); ok {
			notice := encodePeerStateChange(myID, peerID, peerStateDisconnected)
			q.enqueue(frame{kind: frameText, payload: notice})
		}
	}

	if _, ok := rt.reg.unregister(myID); !ok {
		return
	}
	rt.metrics.Inc(metrics.ConnectionsClosed)
	rt.broadcastRoster()
}

func (rt *router) broadcastRoster() {
	rt.reg.broadcastRoster()
	rt.metrics.Inc(metrics.RosterBroadcasts)
}
