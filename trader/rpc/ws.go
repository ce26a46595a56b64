package rpc

import (
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = (wsPongWait * 9) / 10
	wsBuffer       = 64
)

// notificationStream serves the notification feed over a websocket.
// ?id=<transaction id> limits the feed to one transaction.
type notificationStream struct {
	notifier Notifier
	upgrader websocket.Upgrader
}

func newNotificationStream(notifier Notifier, allowedOrigins []string) *notificationStream {
	return &notificationStream{
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), allowedOrigins)
			},
		},
	}
}

func originAllowed(origin string, allowed []string) bool {
	// non browser clients send no origin
	if origin == "" || len(allowed) == 0 || slices.Contains(allowed, "*") {
		return true
	}
	if slices.Contains(allowed, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && slices.Contains(allowed, u.Scheme+"://"+u.Host)
}

func (s *notificationStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		Logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	filter := r.URL.Query().Get("id")
	notifications, unsubscribe := s.notifier.SubscribeChan(wsBuffer)
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		// the feed is one way, reading only processes control frames
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	Logger.Debug().Str("remote", r.RemoteAddr).Str("filter", filter).Msg("Notification stream opened")
	for {
		select {
		case <-closed:
			Logger.Debug().Str("remote", r.RemoteAddr).Msg("Notification stream closed")
			return
		case <-r.Context().Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			if filter != "" && n.ID != filter {
				continue
			}
			payload, err := sonnet.Marshal(n)
			if err != nil {
				Logger.Error().Err(err).Msg("Failed to encode notification")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
