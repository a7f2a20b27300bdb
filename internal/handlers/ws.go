package handlers

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/bloodlink-dev/bloodlink/internal/models"
	"github.com/bloodlink-dev/bloodlink/internal/types"
	"github.com/bloodlink-dev/bloodlink/internal/utils"
)

var (
	alertClients   = make(map[uint]map[*websocket.Conn]bool)
	alertClientsMu sync.RWMutex
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// BroadcastAlertUpdate pushes the alert's current state to everyone watching
// its live feed.
func BroadcastAlertUpdate(alert *models.Alert) {
	alertClientsMu.RLock()
	clients, exists := alertClients[alert.ID]
	if !exists || len(clients) == 0 {
		alertClientsMu.RUnlock()
		return
	}

	// Copy the connections so the lock is not held while writing
	clientsCopy := make([]*websocket.Conn, 0, len(clients))
	for conn := range clients {
		clientsCopy = append(clientsCopy, conn)
	}
	alertClientsMu.RUnlock()

	for _, conn := range clientsCopy {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Printf("Failed to set write deadline for broadcast: %v", err)
			continue
		}

		err := conn.WriteJSON(map[string]any{
			"type":  "alert_update",
			"alert": alert,
		})

		if err != nil {
			log.Printf("Failed to broadcast alert update to client: %v", err)
			alertClientsMu.Lock()
			if clients, exists := alertClients[alert.ID]; exists {
				delete(clients, conn)
				if len(clients) == 0 {
					delete(alertClients, alert.ID)
				}
			}
			alertClientsMu.Unlock()
			conn.Close()
		}
	}
}

func AlertFeed(c *gin.Context) {
	raw := c.Param("id")
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}
	alertID := uint(parsed)

	actor, err := utils.GetCurrentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	if actor.Role == types.RoleDonor {
		c.JSON(http.StatusForbidden, gin.H{"error": "Operation not permitted for this role"})
		return
	}
	if err := requireAlertAccess(c, alertID, actor); err != nil {
		respondError(c, err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			for _, allowed := range Cfg.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Failed to set initial read deadline: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Failed to set read deadline in pong handler: %v", err)
		}
		return nil
	})

	alertClientsMu.Lock()
	if alertClients[alertID] == nil {
		alertClients[alertID] = make(map[*websocket.Conn]bool)
	}
	alertClients[alertID][conn] = true
	alertClientsMu.Unlock()

	defer func() {
		alertClientsMu.Lock()

		if clients, exists := alertClients[alertID]; exists {
			delete(clients, conn)

			if len(clients) == 0 {
				delete(alertClients, alertID)
			}
		}

		alertClientsMu.Unlock()
		conn.Close()

		log.Printf("WebSocket connection closed for alert %d", alertID)
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Failed to set write deadline for welcome message: %v", err)
		return
	}

	err = conn.WriteJSON(map[string]string{
		"type":     "connected",
		"message":  "Alert feed connected",
		"alert_id": raw,
	})

	if err != nil {
		log.Printf("Failed to send welcome message: %v", err)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Failed to set write deadline for alert %d: %v", alertID, err)
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Ping failed for alert %d: %v", alertID, err)
				return
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Failed to set read deadline for alert %d: %v", alertID, err)
			break
		}

		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for alert %d: %v", alertID, err)
			}
			break
		}

		if messageType == websocket.TextMessage {
			log.Printf("Received message from client on alert %d: %s", alertID, string(message))
		}
	}
}
