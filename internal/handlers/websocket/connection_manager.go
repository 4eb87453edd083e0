package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxline/voxline/internal/relay"
	"github.com/voxline/voxline/pkg/Logger"
)

// ConnectionManager tracks live relay sessions for the stats endpoint. Each
// session owns its own lifecycle; the manager only observes.
type ConnectionManager struct {
	logger   *Logger.Logger
	mutex    sync.RWMutex
	sessions map[uuid.UUID]*relay.Session
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(logger *Logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		logger:   logger,
		sessions: make(map[uuid.UUID]*relay.Session),
	}
}

// Register adds a session to the live set.
func (cm *ConnectionManager) Register(session *relay.Session) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.sessions[session.ID()] = session
	cm.logger.Infof("Registered session %s (%d active)", session.ID(), len(cm.sessions))
}

// Unregister removes a session from the live set.
func (cm *ConnectionManager) Unregister(id uuid.UUID) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if _, exists := cm.sessions[id]; exists {
		delete(cm.sessions, id)
		cm.logger.Infof("Unregistered session %s (%d active)", id, len(cm.sessions))
	}
}

// GetSessionCount returns the number of active sessions
func (cm *ConnectionManager) GetSessionCount() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return len(cm.sessions)
}

// GetStats returns connection manager statistics
func (cm *ConnectionManager) GetStats() map[string]interface{} {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	sessionStats := make([]map[string]interface{}, 0, len(cm.sessions))
	for _, session := range cm.sessions {
		sessionStats = append(sessionStats, map[string]interface{}{
			"session_id":     session.ID().String(),
			"state":          session.State(),
			"connected_at":   session.ConnectedAt().Format(time.RFC3339),
			"dropped_chunks": session.DroppedChunks(),
		})
	}

	return map[string]interface{}{
		"active_sessions": len(cm.sessions),
		"sessions":        sessionStats,
	}
}
