package webcam

import (
	"context"
)

// DeviceKind は入力デバイスの種別を表す
type DeviceKind string

// DeviceKindVideoInput は映像入力デバイスを表す
// 列挙結果はこの種別のみにフィルタ済み
const DeviceKindVideoInput DeviceKind = "videoinput"

// VideoInputDevice はホストが報告する映像入力デバイスのスナップショット
// 列挙のたびに丸ごと再生成され、ID の一致以外に呼び出しをまたぐ同一性は持たない
type VideoInputDevice struct {
	ID    string     // デバイス識別子（V4L2ではデバイスパス）
	Label string     // 表示名
	Kind  DeviceKind // 種別（常に videoinput）
}

// FacingMode はカメラの向きを表す
type FacingMode string

const (
	// FacingUser は自分撮り側（内側）カメラを表す
	FacingUser FacingMode = "user"
	// FacingEnvironment は外側カメラを表す
	FacingEnvironment FacingMode = "environment"
)

// State はコーディネーターの状態を表す
type State string

const (
	StateIdle      State = "idle"      // セッションなし
	StateAcquiring State = "acquiring" // ストリーム取得中
	StateLive      State = "live"      // セッションが生存中
	StateStopped   State = "stopped"   // 旧セッションの解放直後
)

// MirrorMode はプレビューの左右反転の指定
type MirrorMode string

const (
	// MirrorAuto はフェイシングモードから自動判定する
	MirrorAuto MirrorMode = "auto"
	// MirrorAlways は常に反転する
	MirrorAlways MirrorMode = "always"
	// MirrorNever は反転しない
	MirrorNever MirrorMode = "never"
)

// TrackSettings はストリーム取得後に解決された実際の設定
// 要求した制約と一致するとは限らない
type TrackSettings struct {
	DeviceID   string     // 解決されたデバイス識別子
	Width      int        // 実際の幅
	Height     int        // 実際の高さ
	FrameRate  int        // 実際のフレームレート
	FacingMode FacingMode // 実際のカメラの向き（不明な場合は空）
}

// SwitchRequest はカメラ切り替え要求
// DeviceID が非空なら明示指定、空なら Forward による巡回
type SwitchRequest struct {
	DeviceID string
	Forward  bool
}

// DeviceChange はアクティブデバイス変更の通知
type DeviceChange struct {
	ActiveIndex int               // 列挙リスト内の位置（見つからない場合は -1）
	Device      *VideoInputDevice // 該当デバイス（ActiveIndex が -1 の場合は nil）
	Settings    TrackSettings     // 解決済みのトラック設定
}

// Enumerator は映像入力デバイスの列挙機能を提供する
type Enumerator interface {
	// ListVideoInputs は利用可能な映像入力デバイスを列挙する
	// 権限未付与の場合はエラーなしで空リストを返すことがある
	ListVideoInputs(ctx context.Context) ([]VideoInputDevice, error)
}

// StreamProvider は制約からキャプチャストリームを取得する
type StreamProvider interface {
	// AcquireStream は制約を満たすストリームを取得する
	AcquireStream(ctx context.Context, constraints TrackConstraints) (*MediaStream, error)
}
