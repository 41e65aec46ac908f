package broker

import (
	"context"

	"panehub/server/internal/transport"
	"panehub/server/internal/util"
)

// PollInit opens a polling connection of the given kind and returns its
// sid. The greeting is queued for the first query.
func (b *Broker) PollInit(ctx context.Context, kind transport.Kind) string {
	c := transport.NewPollingConn(util.NewSID(), kind, b.now)
	b.OpenConn(ctx, c)
	return c.ID()
}

// PollQuery drains the frames queued for sid. ok is false when sid is not
// a live connection.
func (b *Broker) PollQuery(kind transport.Kind, sid string) (frames [][]byte, ok bool) {
	c, ok := b.registry.Get(kind, sid)
	if !ok {
		return nil, false
	}
	return c.Drain(), true
}

// PollSend handles one frame posted by sid as if it had arrived over a
// socket.
func (b *Broker) PollSend(ctx context.Context, kind transport.Kind, sid string, frame []byte) bool {
	if _, ok := b.registry.Get(kind, sid); !ok {
		return false
	}
	if kind == transport.KindSource {
		b.HandleSourceMessage(sid, frame)
	} else {
		b.HandleSubMessage(ctx, sid, frame)
	}
	return true
}
