package server

import (
	"time"

	"kagami/internal/webcam"
)

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerInfo はサーバーの基本情報
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StatusResponse はシステム状態のレスポンス
type StatusResponse struct {
	Status    string     `json:"status"`
	Server    ServerInfo `json:"server"`
	State     string     `json:"state"`
	Devices   int        `json:"devices"`
	Timestamp time.Time  `json:"timestamp"`
}

// DeviceInfo は映像入力デバイスの情報
type DeviceInfo struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Kind   string `json:"kind"`
	Active bool   `json:"active"`
}

// DevicesResponse はデバイス一覧のレスポンス
type DevicesResponse struct {
	Devices     []DeviceInfo `json:"devices"`
	ActiveIndex int          `json:"active_index"`
}

// TrackSettingsInfo は解決済みのトラック設定
type TrackSettingsInfo struct {
	DeviceID   string `json:"device_id"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FrameRate  int    `json:"frame_rate"`
	FacingMode string `json:"facing_mode,omitempty"`
}

// SessionResponse は現在のキャプチャセッションのレスポンス
type SessionResponse struct {
	State   string       `json:"state"`
	Session *SessionInfo `json:"session,omitempty"`
	Mirror  bool         `json:"mirror"`
}

// SessionInfo はセッションの詳細
type SessionInfo struct {
	ID       string            `json:"id"`
	Settings TrackSettingsInfo `json:"settings"`
}

// SwitchRequestBody はカメラ切り替え要求のボディ
// device_id が非空なら明示指定、空なら forward による巡回
type SwitchRequestBody struct {
	DeviceID string `json:"device_id"`
	Forward  bool   `json:"forward"`
}

// SnapshotResponse はスナップショットのレスポンス
type SnapshotResponse struct {
	MIMEType  string    `json:"mime_type"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	DataURL   string    `json:"data_url"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse はエラーのレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// newTrackSettingsInfo は解決済み設定をレスポンス表現へ変換する
func newTrackSettingsInfo(s webcam.TrackSettings) TrackSettingsInfo {
	return TrackSettingsInfo{
		DeviceID:   s.DeviceID,
		Width:      s.Width,
		Height:     s.Height,
		FrameRate:  s.FrameRate,
		FacingMode: string(s.FacingMode),
	}
}
