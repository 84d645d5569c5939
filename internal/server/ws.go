package server

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"kagami/internal/webcam"
)

// wsEvent はWebSocketで配信するイベント
type wsEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// image-captured イベント
	Image *SnapshotResponse `json:"image,omitempty"`

	// init-error イベント
	Message string `json:"message,omitempty"`

	// device-changed イベント
	ActiveIndex *int               `json:"active_index,omitempty"`
	Device      *DeviceInfo        `json:"device,omitempty"`
	Settings    *TrackSettingsInfo `json:"settings,omitempty"`
}

// wsControl はクライアントから受信する操作メッセージ
type wsControl struct {
	Type     string `json:"type"` // "trigger" | "switch"
	DeviceID string `json:"device_id"`
	Forward  bool   `json:"forward"`
}

// wsHub はWebSocket接続を管理し、コーディネーターの通知を配信する
type wsHub struct {
	coordinator *webcam.Coordinator
	triggerCh   chan<- struct{}
	switchCh    chan<- webcam.SwitchRequest

	mu          sync.Mutex
	connections map[*websocket.Conn]struct{}
}

// upgrader はWebSocketへのアップグレード設定
// 同一ホストの閲覧ページから使う前提でオリジンは検証しない
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// newWSHub は新しいwsHubを作成する
func newWSHub(coordinator *webcam.Coordinator, triggerCh chan<- struct{}, switchCh chan<- webcam.SwitchRequest) *wsHub {
	return &wsHub{
		coordinator: coordinator,
		triggerCh:   triggerCh,
		switchCh:    switchCh,
		connections: make(map[*websocket.Conn]struct{}),
	}
}

// run はコーディネーターの通知チャンネルを監視して全接続へ配信する
func (h *wsHub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case captured, ok := <-h.coordinator.Images():
			if !ok {
				return
			}
			h.broadcast(wsEvent{
				Type:      "image-captured",
				Timestamp: time.Now(),
				Image: &SnapshotResponse{
					MIMEType:  captured.MIMEType(),
					Width:     captured.Width(),
					Height:    captured.Height(),
					DataURL:   captured.DataURL(),
					Timestamp: time.Now(),
				},
			})

		case err, ok := <-h.coordinator.Errors():
			if !ok {
				return
			}
			h.broadcast(wsEvent{
				Type:      "init-error",
				Timestamp: time.Now(),
				Message:   err.Error(),
			})

		case change, ok := <-h.coordinator.DeviceChanges():
			if !ok {
				return
			}
			event := wsEvent{
				Type:        "device-changed",
				Timestamp:   time.Now(),
				ActiveIndex: &change.ActiveIndex,
			}
			if change.Device != nil {
				event.Device = &DeviceInfo{
					ID:     change.Device.ID,
					Label:  change.Device.Label,
					Kind:   string(change.Device.Kind),
					Active: true,
				}
			}
			settings := newTrackSettingsInfo(change.Settings)
			event.Settings = &settings
			h.broadcast(event)
		}
	}
}

// broadcast は全接続へイベントを送信する
// 書き込みに失敗した接続は切断済みとみなして除外する
func (h *wsHub) broadcast(event wsEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.connections {
		if err := conn.WriteJSON(event); err != nil {
			delete(h.connections, conn)
			_ = conn.Close()
		}
	}
}

// add は接続を登録する
func (h *wsHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn] = struct{}{}
}

// remove は接続を解除する
func (h *wsHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, conn)
}

// closeAll は全接続を閉じる
func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.connections {
		_ = conn.Close()
	}
	h.connections = make(map[*websocket.Conn]struct{})
}

// handleEvents はWebSocketイベント配信エンドポイント
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		log.Printf("WebSocketのアップグレードに失敗: %v", err)
		return
	}

	s.hub.add(conn)
	defer func() {
		s.hub.remove(conn)
		_ = conn.Close()
	}()

	// 操作メッセージの読み取りループ
	for {
		var control wsControl
		if err := conn.ReadJSON(&control); err != nil {
			return
		}

		switch control.Type {
		case "trigger":
			select {
			case s.triggerCh <- struct{}{}:
			default:
			}
		case "switch":
			select {
			case s.switchCh <- webcam.SwitchRequest{DeviceID: control.DeviceID, Forward: control.Forward}:
			default:
			}
		}
	}
}
