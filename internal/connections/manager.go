package connections

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deepgram/connected/pkg/logger"
)

// TimeoutConfig holds the various timeout settings for WebSocket connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

// Manager tracks the sockets watching drills, keyed by connection with the
// drill id as value.
type Manager struct {
	connections sync.Map
	timeouts    TimeoutConfig
}

func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		timeouts: timeouts,
	}
}

// AddConnection registers conn as a watcher of drillID
func (m *Manager) AddConnection(drillID string, conn *websocket.Conn) {
	m.connections.Store(conn, drillID)
	logger.Debug(logger.WEBSOCKET, "Watcher added for drill %s", drillID)
}

func (m *Manager) RemoveConnection(conn *websocket.Conn) {
	if drillID, ok := m.connections.LoadAndDelete(conn); ok {
		logger.Debug(logger.WEBSOCKET, "Watcher removed for drill %s", drillID)
	}
}

// GetConnectionCount returns the current number of active connections
func (m *Manager) GetConnectionCount() int {
	count := 0
	m.connections.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// WatcherCount returns how many connections are watching drillID
func (m *Manager) WatcherCount(drillID string) int {
	count := 0
	m.connections.Range(func(key, value interface{}) bool {
		if value.(string) == drillID {
			count++
		}
		return true
	})
	return count
}

func (m *Manager) GetTimeouts() TimeoutConfig {
	return m.timeouts
}

// KeepAlive arms the read deadline and pong handler on conn, then pings
// it every PingPeriod from a new goroutine until done is closed or a ping
// cannot be written. The returned channel closes when pinging stops.
// Call it before starting the connection's reader.
func (m *Manager) KeepAlive(conn *websocket.Conn, done <-chan struct{}) <-chan struct{} {
	timeouts := m.GetTimeouts()

	_ = conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(timeouts.PingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(timeouts.WriteWait)
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					logger.Debug(logger.WEBSOCKET, "Ping failed: %v", err)
					return
				}
			case <-done:
				return
			}
		}
	}()
	return stopped
}

// CloseAll sends a going-away close frame to every watcher and forgets
// them. Used on shutdown.
func (m *Manager) CloseAll() {
	deadline := time.Now().Add(m.GetTimeouts().WriteWait)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")

	m.connections.Range(func(key, value interface{}) bool {
		conn := key.(*websocket.Conn)
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
		m.connections.Delete(conn)
		return true
	})
}
