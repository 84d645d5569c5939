package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kagami/internal/webcam"
)

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はシステム状態取得エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status: "running",
		Server: ServerInfo{
			Host: s.config.Server.Host,
			Port: s.config.Server.Port,
		},
		State:     string(s.coordinator.State()),
		Devices:   len(s.coordinator.Devices()),
		Timestamp: time.Now(),
	})
}

// handleDevices は映像入力デバイス一覧取得エンドポイント
func (s *Server) handleDevices(c *gin.Context) {
	devices := s.coordinator.Devices()
	activeIndex := s.coordinator.ActiveIndex()

	infos := make([]DeviceInfo, 0, len(devices))
	for i, device := range devices {
		infos = append(infos, DeviceInfo{
			ID:     device.ID,
			Label:  device.Label,
			Kind:   string(device.Kind),
			Active: i == activeIndex,
		})
	}

	c.JSON(http.StatusOK, DevicesResponse{
		Devices:     infos,
		ActiveIndex: activeIndex,
	})
}

// handleSession は現在のキャプチャセッション取得エンドポイント
func (s *Server) handleSession(c *gin.Context) {
	response := SessionResponse{
		State:  string(s.coordinator.State()),
		Mirror: s.coordinator.ShouldMirror(),
	}

	if session := s.coordinator.Session(); session != nil {
		response.Session = &SessionInfo{
			ID:       session.ID,
			Settings: newTrackSettingsInfo(session.Settings),
		}
	}

	c.JSON(http.StatusOK, response)
}

// handleSwitch はカメラ切り替えエンドポイント
func (s *Server) handleSwitch(c *gin.Context) {
	var body SwitchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "リクエストボディの解析に失敗しました",
			Timestamp: time.Now(),
		})
		return
	}

	var err error
	if body.DeviceID != "" {
		err = s.coordinator.SwitchToDevice(c.Request.Context(), body.DeviceID, nil)
	} else {
		err = s.coordinator.RotateDevice(c.Request.Context(), body.Forward)
	}

	if err != nil {
		var acqErr *webcam.AcquisitionError
		if errors.As(err, &acqErr) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error:     "acquisition_failed",
				Message:   acqErr.Error(),
				Timestamp: time.Now(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "switch_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	s.handleSession(c)
}

// handleSnapshot はスナップショット取得エンドポイント
func (s *Server) handleSnapshot(c *gin.Context) {
	captured, err := s.coordinator.CaptureSnapshot()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:     "snapshot_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, SnapshotResponse{
		MIMEType:  captured.MIMEType(),
		Width:     captured.Width(),
		Height:    captured.Height(),
		DataURL:   captured.DataURL(),
		Timestamp: time.Now(),
	})
}

// handleStream はMJPEGストリーミングエンドポイント
func (s *Server) handleStream(c *gin.Context) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	// レスポンスライターを取得
	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	// プレビューフレームチャンネルを取得
	frameChan := s.coordinator.PreviewFrames()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	// ストリーミングループ
	for {
		select {
		case <-clientGone:
			// クライアントが切断された
			return

		case frame, ok := <-frameChan:
			if !ok {
				// チャンネルがクローズされた
				return
			}

			// MJPEGフレームを書き込み
			if _, err := writer.Write([]byte("--frame\r\n")); err != nil {
				return
			}
			if _, err := writer.Write([]byte("Content-Type: image/jpeg\r\n\r\n")); err != nil {
				return
			}
			if _, err := writer.Write(frame); err != nil {
				return
			}
			if _, err := writer.Write([]byte("\r\n")); err != nil {
				return
			}

			// バッファをフラッシュ
			flusher.Flush()
		}
	}
}

// handleRoot はルートパスのハンドラ
func (s *Server) handleRoot(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, `<!DOCTYPE html>
<html lang="ja">
<head>
    <meta charset="UTF-8">
    <title>Kagami - Webカメラプレビュー</title>
</head>
<body>
    <h1>Kagami Webカメラプレビュー</h1>
    <p>サーバーが正常に起動しています。</p>
    <p>ステータス: <a href="/api/status">/api/status</a></p>
    <p>デバイス一覧: <a href="/api/devices">/api/devices</a></p>
    <p>プレビュー: <a href="/api/stream">/api/stream</a></p>
    <p>ヘルスチェック: <a href="/health">/health</a></p>
</body>
</html>`)
}
