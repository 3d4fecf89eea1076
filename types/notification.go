package types

import "github.com/pkg/errors"

// Notification is a single frame pushed by the daemon over the websocket.
type Notification struct {
	*Response
	raw []byte
}

func DecodeNotification(data []byte) (*Notification, error) {
	resp, err := DecodeResponse(data)
	if err != nil {
		return nil, errors.Wrap(err, "notification")
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return &Notification{Response: resp, raw: raw}, nil
}

// Type returns the "type" field of the frame, or "" if there is none.
func (n *Notification) Type() string {
	t, err := n.GetString("type")
	if err != nil {
		return ""
	}
	return t
}

func (n *Notification) Raw() []byte {
	raw := make([]byte, len(n.raw))
	copy(raw, n.raw)
	return raw
}
