package webcam

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// VideoTrack はキャプチャストリーム内の単一の映像トラック
type VideoTrack struct {
	settings TrackSettings
	frames   chan []byte
	errs     chan error

	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  atomic.Bool
}

func newVideoTrack(settings TrackSettings, cancel context.CancelFunc) *VideoTrack {
	if cancel == nil {
		cancel = func() {}
	}
	return &VideoTrack{
		settings: settings,
		frames:   make(chan []byte, 10),
		errs:     make(chan error, 5),
		cancel:   cancel,
	}
}

// Settings は解決済みのトラック設定を返す
func (t *VideoTrack) Settings() TrackSettings {
	return t.settings
}

// Frames はJPEGフレームのチャンネルを返す
func (t *VideoTrack) Frames() <-chan []byte {
	return t.frames
}

// Errors はトラックのエラーチャンネルを返す
func (t *VideoTrack) Errors() <-chan error {
	return t.errs
}

// Stop はトラックを停止する。複数回呼んでも安全
func (t *VideoTrack) Stop() {
	t.stopOnce.Do(func() {
		t.stopped.Store(true)
		t.cancel()
	})
}

// Stopped はトラックが停止済みかを返す
func (t *VideoTrack) Stopped() bool {
	return t.stopped.Load()
}

// MediaStream は取得済みのキャプチャストリームを表す
// 所有者（Coordinator）以外は長期の参照を保持しない
type MediaStream struct {
	id     string
	tracks []*VideoTrack
}

func newMediaStream(tracks ...*VideoTrack) *MediaStream {
	return &MediaStream{
		id:     uuid.New().String(),
		tracks: tracks,
	}
}

// ID はストリームの一意識別子を返す
func (s *MediaStream) ID() string {
	return s.id
}

// Tracks はストリームの全トラックを返す
func (s *MediaStream) Tracks() []*VideoTrack {
	return s.tracks
}

// Stop は全トラックを停止する
func (s *MediaStream) Stop() {
	for _, track := range s.tracks {
		track.Stop()
	}
}

// V4L2StreamProvider はffmpeg経由のキャプチャでStreamProviderを実装する
type V4L2StreamProvider struct {
	enumerator Enumerator
}

// NewV4L2StreamProvider は新しいV4L2StreamProviderを作成する
func NewV4L2StreamProvider(enumerator Enumerator) *V4L2StreamProvider {
	return &V4L2StreamProvider{enumerator: enumerator}
}

// AcquireStream は制約を満たすストリームを取得する
func (p *V4L2StreamProvider) AcquireStream(ctx context.Context, constraints TrackConstraints) (*MediaStream, error) {
	device := constraints.DeviceID.Primary()
	if device == "" {
		device = p.defaultDevice(ctx)
	}

	width, height, fps := constraints.Width, constraints.Height, constraints.FrameRate
	defaults := DefaultTrackConstraints()
	if width <= 0 {
		width = defaults.Width
	}
	if height <= 0 {
		height = defaults.Height
	}
	if fps <= 0 {
		fps = defaults.FrameRate
	}

	grabber := NewGrabber(device, width, height, fps)
	if err := grabber.Probe(ctx); err != nil {
		return nil, fmt.Errorf("デバイス %s のキャプチャ確認に失敗: %w", device, err)
	}

	// V4L2はカメラの向きを報告しないため、要求制約から引き継ぐ
	facing := FacingMode(constraints.FacingMode.Primary())

	settings := TrackSettings{
		DeviceID:   device,
		Width:      width,
		Height:     height,
		FrameRate:  fps,
		FacingMode: facing,
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	track := newVideoTrack(settings, cancel)
	grabber.Stream(streamCtx, track.frames, track.errs)

	return newMediaStream(track), nil
}

// defaultDevice は既定のデバイスパスを返す
// 列挙に失敗しても既定値での取得は試みる
func (p *V4L2StreamProvider) defaultDevice(ctx context.Context) string {
	if p.enumerator != nil {
		if devices, err := p.enumerator.ListVideoInputs(ctx); err == nil && len(devices) > 0 {
			return devices[0].ID
		}
	}
	return "/dev/video0"
}

// MockStreamProvider はテスト用のモックStreamProvider実装
type MockStreamProvider struct {
	mu       sync.Mutex
	settings TrackSettings
	streams  []*MediaStream

	shouldFail  bool
	acquireHook func()
}

// NewMockStreamProvider は新しいMockStreamProviderを作成する
// settings は取得されるトラックの雛形になる
func NewMockStreamProvider(settings TrackSettings) *MockStreamProvider {
	return &MockStreamProvider{settings: settings}
}

// AcquireStream はモックストリームを取得する
func (p *MockStreamProvider) AcquireStream(_ context.Context, constraints TrackConstraints) (*MediaStream, error) {
	p.mu.Lock()
	hook := p.acquireHook
	shouldFail := p.shouldFail
	p.mu.Unlock()

	if hook != nil {
		hook()
	}

	if shouldFail {
		return nil, fmt.Errorf("モック: ストリーム取得に失敗")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	settings := p.settings
	if id := constraints.DeviceID.Primary(); id != "" {
		settings.DeviceID = id
	} else if settings.DeviceID == "" {
		settings.DeviceID = "mock-device-0"
	}
	if settings.FacingMode == "" {
		settings.FacingMode = FacingMode(constraints.FacingMode.Primary())
	}

	track := newVideoTrack(settings, nil)
	stream := newMediaStream(track)
	p.streams = append(p.streams, stream)

	return stream, nil
}

// SetShouldFail はテスト用に取得失敗を設定する
func (p *MockStreamProvider) SetShouldFail(shouldFail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shouldFail = shouldFail
}

// SetAcquireHook は取得処理中に呼ばれるフックを設定する
// 切り替えの追い越しをテストで再現するために使う
func (p *MockStreamProvider) SetAcquireHook(hook func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquireHook = hook
}

// AcquireCount は取得が成功した回数を返す
func (p *MockStreamProvider) AcquireCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.streams)
}

// LiveStreams は停止していないトラックを持つストリーム数を返す
func (p *MockStreamProvider) LiveStreams() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	live := 0
	for _, stream := range p.streams {
		for _, track := range stream.Tracks() {
			if !track.Stopped() {
				live++
				break
			}
		}
	}
	return live
}

// EmitFrame は最後に取得されたストリームへフレームを送信する
func (p *MockStreamProvider) EmitFrame(frame []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.streams) == 0 {
		return
	}
	stream := p.streams[len(p.streams)-1]
	for _, track := range stream.Tracks() {
		select {
		case track.frames <- frame:
		default:
		}
	}
}

// ProviderType はStreamProviderの種別
type ProviderType string

const (
	// ProviderV4L2 はffmpeg経由のV4L2プロバイダ
	ProviderV4L2 ProviderType = "v4l2"
	// ProviderMock はテスト・開発用のモックプロバイダ
	ProviderMock ProviderType = "mock"
)

// ProviderCreator はプロバイダ作成関数の型
type ProviderCreator func(enumerator Enumerator) StreamProvider

// ProviderFactory はStreamProvider作成ファクトリー
type ProviderFactory struct {
	creators map[ProviderType]ProviderCreator
}

// NewProviderFactory は標準のプロバイダを登録済みのファクトリーを作成する
func NewProviderFactory() *ProviderFactory {
	factory := &ProviderFactory{
		creators: make(map[ProviderType]ProviderCreator),
	}

	factory.Register(ProviderV4L2, func(enumerator Enumerator) StreamProvider {
		return NewV4L2StreamProvider(enumerator)
	})
	factory.Register(ProviderMock, func(_ Enumerator) StreamProvider {
		return NewMockStreamProvider(TrackSettings{
			Width:      1280,
			Height:     720,
			FrameRate:  15,
			FacingMode: FacingEnvironment,
		})
	})

	return factory
}

// Register はプロバイダ作成関数を登録する
func (f *ProviderFactory) Register(providerType ProviderType, creator ProviderCreator) {
	f.creators[providerType] = creator
}

// Create は指定された種別のプロバイダを作成する
func (f *ProviderFactory) Create(providerType ProviderType, enumerator Enumerator) (StreamProvider, error) {
	creator, exists := f.creators[providerType]
	if !exists {
		return nil, fmt.Errorf("サポートされていないプロバイダ種別: %s", providerType)
	}
	return creator(enumerator), nil
}

// SupportedTypes はサポートされているプロバイダ種別を返す
func (f *ProviderFactory) SupportedTypes() []ProviderType {
	types := make([]ProviderType, 0, len(f.creators))
	for providerType := range f.creators {
		types = append(types, providerType)
	}
	return types
}
