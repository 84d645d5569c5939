package webcam

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Options はCoordinatorの設定
type Options struct {
	DisplayWidth    int               // スナップショットのフォールバック幅
	DisplayHeight   int               // スナップショットのフォールバック高さ
	BaseConstraints *TrackConstraints // 基準の制約（nilなら既定値）
	InitialDeviceID string            // 起動時に選択するデバイス（空なら既定デバイス）
	SwitchEnabled   bool              // 巡回切り替えの有効/無効
	MirrorMode      MirrorMode        // ミラーリング指定
	CaptureRaw      bool              // スナップショットでピクセルバッファも保持
	ImageType       string            // スナップショットのMIMEタイプ
	ImageQuality    int               // JPEG品質
}

// DefaultOptions は既定のOptionsを返す
func DefaultOptions() Options {
	return Options{
		DisplayWidth:  640,
		DisplayHeight: 480,
		SwitchEnabled: true,
		MirrorMode:    MirrorAuto,
		ImageType:     ImageTypeJPEG,
		ImageQuality:  DefaultImageQuality,
	}
}

// CaptureSession は生存中のキャプチャストリームとその取得条件を包む
// Coordinatorが排他的に所有し、同時に高々1つしか生存しない
type CaptureSession struct {
	ID          string           // セッション識別子
	Stream      *MediaStream     // 取得したストリーム
	Constraints TrackConstraints // 取得に使った制約
	Settings    TrackSettings    // 解決済みのトラック設定
}

// Coordinator はデバイス列挙・セッション管理・スナップショット生成を統括する
type Coordinator struct {
	opts       Options
	enumerator Enumerator
	provider   StreamProvider

	mu          sync.Mutex
	state       State
	session     *CaptureSession
	devices     []VideoInputDevice
	activeIndex int
	generation  uint64
	latestFrame []byte
	pumpStop    chan struct{}

	// 通知チャンネル
	previewCh chan []byte
	imageCh   chan *CapturedImage
	errorCh   chan error
	changeCh  chan DeviceChange

	// 外部フィード（Start前に設定する）
	triggerCh <-chan struct{}
	switchCh  <-chan SwitchRequest
	rescanCh  <-chan struct{}

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewCoordinator は新しいCoordinatorを作成する
func NewCoordinator(enumerator Enumerator, provider StreamProvider, opts Options) *Coordinator {
	return &Coordinator{
		opts:        opts,
		enumerator:  enumerator,
		provider:    provider,
		state:       StateIdle,
		activeIndex: -1,
		previewCh:   make(chan []byte, 10),
		imageCh:     make(chan *CapturedImage, 4),
		errorCh:     make(chan error, 8),
		changeCh:    make(chan DeviceChange, 4),
		stopCh:      make(chan struct{}),
	}
}

// SetTriggerFeed はスナップショットのトリガーフィードを設定する
// Startの前に呼ぶこと
func (c *Coordinator) SetTriggerFeed(feed <-chan struct{}) {
	c.triggerCh = feed
}

// SetSwitchFeed はカメラ切り替え要求のフィードを設定する
// Startの前に呼ぶこと
func (c *Coordinator) SetSwitchFeed(feed <-chan SwitchRequest) {
	c.switchCh = feed
}

// SetRescanFeed はデバイス再列挙のシグナルフィードを設定する
// Startの前に呼ぶこと
func (c *Coordinator) SetRescanFeed(feed <-chan struct{}) {
	c.rescanCh = feed
}

// Start は初期列挙と既定デバイスの取得を行い、フィードの監視を開始する
// 初期化中の列挙・取得エラーはErrors()チャンネルへ報告され、
// 以降の切り替えで暗黙的にリトライできる
func (c *Coordinator) Start(ctx context.Context) error {
	if c.enumerator == nil || c.provider == nil {
		return fmt.Errorf("enumeratorとproviderは必須です")
	}

	// 初期列挙。権限未付与ならこの時点では空や不完全なことがある
	// 失敗しても既定デバイスの取得は試みる
	devices, err := c.enumerator.ListVideoInputs(ctx)
	c.mu.Lock()
	if err != nil {
		c.devices = nil
		c.reportErrorLocked(err)
	} else {
		c.devices = devices
	}
	c.mu.Unlock()

	if err := c.SwitchToDevice(ctx, c.opts.InitialDeviceID, nil); err != nil {
		// 切り替え側で報告済み。コンポーネントは利用可能なまま
		_ = err
	}

	c.wg.Add(1)
	go c.run(ctx)

	return nil
}

// run は外部フィードを監視するループ
func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return

		case _, ok := <-c.triggerCh:
			if !ok {
				c.triggerCh = nil
				continue
			}
			if img, err := c.CaptureSnapshot(); err != nil {
				c.reportError(err)
			} else {
				_ = img // CaptureSnapshotが通知済み
			}

		case req, ok := <-c.switchCh:
			if !ok {
				c.switchCh = nil
				continue
			}
			c.handleSwitchRequest(ctx, req)

		case _, ok := <-c.rescanCh:
			if !ok {
				c.rescanCh = nil
				continue
			}
			c.Rescan(ctx)
		}
	}
}

// handleSwitchRequest は切り替え要求フィードの1件を処理する
func (c *Coordinator) handleSwitchRequest(ctx context.Context, req SwitchRequest) {
	if req.DeviceID != "" {
		if err := c.SwitchToDevice(ctx, req.DeviceID, nil); err != nil {
			// SwitchToDeviceが報告済み
			_ = err
		}
		return
	}
	if !c.opts.SwitchEnabled {
		return
	}
	if err := c.RotateDevice(ctx, req.Forward); err != nil {
		_ = err
	}
}

// SwitchToDevice はアクティブなキャプチャセッションを切り替える
//
// 呼び出しの時点で旧セッションは完全に解放される（全トラック停止・
// プレビュー停止）。deviceIDが空なら既定の制約で取得し、非空なら
// 完全一致のデバイス制約を合成する。取得成功後に列挙をやり直すのは、
// 権限付与によって列挙できる内容が変わるため（初回列挙は権限付与前で
// 空や不完全なことがある）
//
// 取得に失敗した場合はAcquisitionErrorを返すが、セッションは
// 半初期化状態にならず、後続の切り替えでリトライできる
func (c *Coordinator) SwitchToDevice(ctx context.Context, deviceID string, base *TrackConstraints) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.releaseSessionLocked()
	c.state = StateAcquiring

	constraints := c.opts.BaseConstraints
	if base != nil {
		constraints = base
	}
	merged := DefaultTrackConstraints()
	if constraints != nil {
		merged = *constraints
	}
	if deviceID != "" {
		merged = merged.WithDevice(deviceID)
	}
	c.mu.Unlock()

	// 取得は非同期のプラットフォーム呼び出し。ロックを持たずに待つ
	stream, err := c.provider.AcquireStream(ctx, merged)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		// 別の切り替えに追い越された。後勝ちでこの取得結果は破棄する
		if err == nil && stream != nil {
			stream.Stop()
		}
		return nil
	}

	if err != nil {
		c.state = StateIdle
		acqErr := &AcquisitionError{Message: "デバイスの切り替えに失敗しました", Cause: err}
		c.reportErrorLocked(acqErr)
		return acqErr
	}

	session := &CaptureSession{
		ID:          uuid.New().String(),
		Stream:      stream,
		Constraints: merged,
	}
	tracks := stream.Tracks()
	if len(tracks) > 0 {
		session.Settings = tracks[0].Settings()
	}
	c.session = session

	if len(tracks) > 0 {
		c.startPumpLocked(tracks[0])
	}

	// 2回目の列挙。権限付与後は正確なデバイス識別子が得られる
	c.refreshDevicesLocked(ctx)
	c.activeIndex = c.indexOfLocked(session.Settings.DeviceID)
	c.state = StateLive
	c.emitChangeLocked()

	return nil
}

// RotateDevice は既知のデバイスを巡回して切り替える
// デバイスが2台未満の場合は何もしない
func (c *Coordinator) RotateDevice(ctx context.Context, forward bool) error {
	c.mu.Lock()
	count := len(c.devices)
	if count < 2 {
		c.mu.Unlock()
		return nil
	}

	// 後退は「count-1 を足す」ことで負の剰余を避ける
	step := count - 1
	if forward {
		step = 1
	}
	next := (c.activeIndex + step) % count
	target := c.devices[next].ID
	c.mu.Unlock()

	return c.SwitchToDevice(ctx, target, nil)
}

// Rescan はデバイス一覧を再列挙してアクティブ位置を更新する
func (c *Coordinator) Rescan(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refreshDevicesLocked(ctx)
	prev := c.activeIndex
	if c.session != nil {
		c.activeIndex = c.indexOfLocked(c.session.Settings.DeviceID)
	} else {
		c.activeIndex = -1
	}
	if c.activeIndex != prev {
		c.emitChangeLocked()
	}
}

// ShouldMirror はプレビューを左右反転すべきかを返す
// 明示指定が最優先、autoの場合は内側カメラのときだけ反転する。
// 解決済み設定を優先し、なければ要求制約の値で判定する
func (c *Coordinator) ShouldMirror() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.opts.MirrorMode {
	case MirrorAlways:
		return true
	case MirrorNever:
		return false
	}

	if c.session != nil && c.session.Settings.FacingMode != "" {
		return c.session.Settings.FacingMode == FacingUser
	}

	var facing *Constraint
	if c.session != nil {
		facing = c.session.Constraints.FacingMode
	} else if c.opts.BaseConstraints != nil {
		facing = c.opts.BaseConstraints.FacingMode
	}
	return FacingMode(facing.Primary()) == FacingUser
}

// CaptureSnapshot はライブフレームから静止画を生成する
// ストリーム状態の純粋な変換で、副作用は画像取得通知のみ
func (c *Coordinator) CaptureSnapshot() (*CapturedImage, error) {
	c.mu.Lock()
	var frame []byte
	if c.latestFrame != nil {
		frame = append([]byte(nil), c.latestFrame...)
	}
	var native TrackSettings
	if c.session != nil {
		native = c.session.Settings
	}
	opts := SnapshotOptions{
		DisplayWidth:  c.opts.DisplayWidth,
		DisplayHeight: c.opts.DisplayHeight,
		ImageType:     c.opts.ImageType,
		ImageQuality:  c.opts.ImageQuality,
		CaptureRaw:    c.opts.CaptureRaw,
	}
	c.mu.Unlock()

	if frame == nil {
		return nil, fmt.Errorf("フレームがまだ取得されていません")
	}

	captured, err := EncodeSnapshot(frame, native, opts)
	if err != nil {
		return nil, err
	}

	// 画像取得を通知
	select {
	case c.imageCh <- captured:
	default:
	}

	return captured, nil
}

// State は現在の状態を返す
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Devices は既知のデバイス一覧を返す
func (c *Coordinator) Devices() []VideoInputDevice {
	c.mu.Lock()
	defer c.mu.Unlock()

	devices := make([]VideoInputDevice, len(c.devices))
	copy(devices, c.devices)
	return devices
}

// ActiveIndex はアクティブデバイスの列挙リスト内の位置を返す
// 一致するデバイスがない場合は -1
func (c *Coordinator) ActiveIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeIndex
}

// Session は現在のセッション情報のコピーを返す
// セッションがない場合は nil
func (c *Coordinator) Session() *CaptureSession {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	session := *c.session
	return &session
}

// PreviewFrames はプレビュー用のJPEGフレームチャンネルを返す
func (c *Coordinator) PreviewFrames() <-chan []byte {
	return c.previewCh
}

// Images は画像取得の通知チャンネルを返す
func (c *Coordinator) Images() <-chan *CapturedImage {
	return c.imageCh
}

// Errors は初期化・取得エラーの通知チャンネルを返す
func (c *Coordinator) Errors() <-chan error {
	return c.errorCh
}

// DeviceChanges はアクティブデバイス変更の通知チャンネルを返す
func (c *Coordinator) DeviceChanges() <-chan DeviceChange {
	return c.changeCh
}

// Close は全トラックを同期的に停止し、フィードの監視を終了する
// 複数回呼んでも安全
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.generation++
		c.releaseSessionLocked()
		c.state = StateIdle
		c.activeIndex = -1
		c.mu.Unlock()

		close(c.stopCh)
		c.wg.Wait()
	})
}

// releaseSessionLocked は現在のセッションを完全に解放する（ロック済み前提）
func (c *Coordinator) releaseSessionLocked() {
	if c.pumpStop != nil {
		close(c.pumpStop)
		c.pumpStop = nil
	}
	if c.session != nil {
		c.session.Stream.Stop()
		c.session = nil
		c.state = StateStopped
	}
	c.latestFrame = nil
}

// startPumpLocked はトラックからプレビューへのフレーム転送を開始する（ロック済み前提）
func (c *Coordinator) startPumpLocked(track *VideoTrack) {
	stop := make(chan struct{})
	c.pumpStop = stop
	c.wg.Add(1)
	go c.pump(track, stop)
}

// pump はトラックのフレームを最新フレーム保持とプレビューへ転送する
func (c *Coordinator) pump(track *VideoTrack, stop chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-stop:
			return

		case frame, ok := <-track.Frames():
			if !ok {
				return
			}

			c.mu.Lock()
			c.latestFrame = append([]byte(nil), frame...)
			c.mu.Unlock()

			// プレビューがフルなら古いフレームを破棄
			select {
			case c.previewCh <- frame:
			default:
				select {
				case <-c.previewCh:
				default:
				}
				select {
				case c.previewCh <- frame:
				default:
				}
			}

		case err, ok := <-track.Errors():
			if !ok {
				return
			}
			c.reportError(err)
		}
	}
}

// refreshDevicesLocked はデバイス一覧を再列挙する（ロック済み前提）
// 列挙の失敗はデバイス0台と同様に扱う
func (c *Coordinator) refreshDevicesLocked(ctx context.Context) {
	devices, err := c.enumerator.ListVideoInputs(ctx)
	if err != nil {
		c.devices = nil
		return
	}
	c.devices = devices
}

// indexOfLocked はデバイスIDの列挙リスト内の位置を返す（ロック済み前提）
// 見つからない場合は -1（エラーではない）
func (c *Coordinator) indexOfLocked(deviceID string) int {
	for i, device := range c.devices {
		if device.ID == deviceID {
			return i
		}
	}
	return -1
}

// reportError はエラー通知を送信する
func (c *Coordinator) reportError(err error) {
	select {
	case c.errorCh <- err:
	default:
	}
}

// reportErrorLocked はロック中でも安全にエラー通知を送信する
func (c *Coordinator) reportErrorLocked(err error) {
	select {
	case c.errorCh <- err:
	default:
	}
}

// emitChangeLocked はデバイス変更通知を送信する（ロック済み前提）
func (c *Coordinator) emitChangeLocked() {
	change := DeviceChange{ActiveIndex: c.activeIndex}
	if c.activeIndex >= 0 && c.activeIndex < len(c.devices) {
		device := c.devices[c.activeIndex]
		change.Device = &device
	}
	if c.session != nil {
		change.Settings = c.session.Settings
	}

	select {
	case c.changeCh <- change:
	default:
	}
}
