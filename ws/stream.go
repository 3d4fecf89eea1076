package ws

import (
	"context"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/gorilla/websocket"
	"sync/atomic"
)

// Stream yields notifications in arrival order. It has a single consumer and
// ends with a *core.ChannelClosedError that is returned by every later call.
type Stream struct {
	channel *Channel
	conn    *websocket.Conn
	reading atomic.Bool
	err     error
}

// Next blocks until the next notification arrives. Cancelling ctx closes the
// websocket, since a partially read frame cannot be resumed.
//
// A frame that is not a JSON object or array yields a *MalformedFrameError;
// the stream stays usable.
func (s *Stream) Next(ctx context.Context) (*types.Notification, error) {
	if !s.reading.CompareAndSwap(false, true) {
		return nil, ErrConcurrentRead
	}
	defer s.reading.Store(false)
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn := s.conn
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	_, data, err := conn.ReadMessage()
	if !stop() {
		s.err = s.channel.terminate(err, ctx.Err())
		if err != nil {
			return nil, s.err
		}
	} else if err != nil {
		s.err = s.channel.terminate(err, nil)
		return nil, s.err
	}
	n, err := types.DecodeNotification(data)
	if err != nil {
		return nil, &MalformedFrameError{Frame: data, Err: err}
	}
	return n, nil
}
