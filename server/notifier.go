package server

import (
	"context"
	"encoding/json"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gorilla/websocket"
	log "github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"net/http"
	"time"
)

const (
	notificationTopic = "jmrpc.notifications"
	writeWait         = 5 * time.Second
)

// Notifier fans notifications out to every authenticated websocket client.
// Publish blocks until each subscriber has written the frame, so clients
// see notifications in publication order.
type Notifier struct {
	pubSub   *gochannel.GoChannel
	validate func(token string) error
	upgrader websocket.Upgrader
	log      log.Logger
}

func NewNotifier(validate func(token string) error) *Notifier {
	logger := log.New("component", "notifier")
	return &Notifier{
		pubSub: gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, newWatermillLogger(logger)),
		validate: validate,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logger,
	}
}

func (n *Notifier) Publish(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode notification")
	}
	return n.pubSub.Publish(notificationTopic, message.NewMessage(watermill.NewUUID(), data))
}

func (n *Notifier) Close() error {
	return n.pubSub.Close()
}

// ServeWS expects the ws token as the first frame and answers with an
// auth_ack frame before any notification.
func (n *Notifier) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.log.Warn("Unable to upgrade connection", "err", err)
		return
	}
	defer conn.Close()

	_, token, err := conn.ReadMessage()
	if err != nil {
		return
	}
	if err := n.validate(string(token)); err != nil {
		n.writeAck(conn, types.AuthAck{Type: types.AuthAckType, Authenticated: false, Error: types.MsgInvalidCredentials})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
			time.Now().Add(writeWait))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := n.pubSub.Subscribe(ctx, notificationTopic)
	if err != nil {
		n.log.Error("Unable to subscribe", "err", err)
		return
	}
	if !n.writeAck(conn, types.AuthAck{Type: types.AuthAckType, Authenticated: true}) {
		return
	}
	n.log.Debug("Websocket client authenticated", "remote", GetIP(r))

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.TextMessage, msg.Payload)
			msg.Ack()
			if err != nil {
				n.log.Debug("Websocket client gone", "err", err)
				return
			}
		}
	}
}

func (n *Notifier) writeAck(conn *websocket.Conn, ack types.AuthAck) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ack); err != nil {
		n.log.Debug("Unable to send auth ack", "err", err)
		return false
	}
	return true
}
