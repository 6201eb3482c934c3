package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/deepgram/connected/internal/connections"
	"github.com/deepgram/connected/internal/services/drill"
	"github.com/deepgram/connected/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the configured frontend origin once one is exposed in config
		return true
	},
}

const (
	messageUpdate = "update"
	messageResult = "result"
	messageError  = "error"
)

type watchMessage struct {
	Type   string        `json:"type"`
	Update *drill.Update `json:"update,omitempty"`
	Result *drill.Result `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// HandleWatchDrill streams poller updates for a drill over a websocket,
// sends the final result and closes. Polling stops when the client goes
// away.
func HandleWatchDrill(sessions SessionManager, poller FeedbackPoller, manager *connections.Manager, w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	watcherID := uuid.NewString()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error(logger.WEBSOCKET, "Could not upgrade watch connection for drill %s: %v", id, err)
		return
	}

	manager.AddConnection(id, conn)
	logger.Info(logger.WEBSOCKET, "Watcher %s attached to drill %s (%d watching)", watcherID, id, manager.WatcherCount(id))
	defer func() {
		manager.RemoveConnection(conn)
		conn.Close()
		logger.Info(logger.WEBSOCKET, "Watcher %s detached from drill %s (%d watching)", watcherID, id, manager.WatcherCount(id))
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	manager.KeepAlive(conn, done)

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug(logger.WEBSOCKET, "Watcher %s of drill %s went away: %v", watcherID, id, err)
				}
				return
			}
		}
	}()

	writeWait := manager.GetTimeouts().WriteWait
	write := func(msg watchMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	res, err := poller.Run(ctx, id, func(u drill.Update) {
		if err := write(watchMessage{Type: messageUpdate, Update: &u}); err != nil {
			logger.Debug(logger.WEBSOCKET, "Failed to send update for drill %s: %v", id, err)
			cancel()
		}
	})
	if err != nil {
		if ctx.Err() == nil {
			_ = write(watchMessage{Type: messageError, Error: err.Error()})
		}
		return
	}

	forgetFinishedDrill(ctx, sessions, id, res)

	if err := write(watchMessage{Type: messageResult, Result: res}); err != nil {
		logger.Debug(logger.WEBSOCKET, "Failed to send result for drill %s: %v", id, err)
		return
	}
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(res.State))
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait))
}
