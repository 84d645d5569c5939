package webcam

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// V4L2Enumerator はLinux環境での映像入力デバイス列挙を実装する
type V4L2Enumerator struct{}

// NewV4L2Enumerator は新しいV4L2Enumeratorを作成する
func NewV4L2Enumerator() Enumerator {
	return &V4L2Enumerator{}
}

var devicePathRe = regexp.MustCompile(`^/dev/video(\d+)$`)

// ListVideoInputs は利用可能な映像入力デバイスを列挙する
// 結果は列挙のたびに丸ごと再生成され、順序はデバイス番号順になる
func (e *V4L2Enumerator) ListVideoInputs(ctx context.Context) ([]VideoInputDevice, error) {
	// v4l2-ctl がなければこのホストでは列挙できない
	if _, err := exec.LookPath("v4l2-ctl"); err != nil {
		return nil, ErrUnsupportedPlatform
	}

	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, &EnumerationError{Cause: err}
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	devices := make([]VideoInputDevice, 0, len(matches))
	seenLabels := make(map[string]bool)

	for _, path := range matches {
		select {
		case <-ctx.Done():
			return nil, &EnumerationError{Cause: ctx.Err()}
		default:
		}

		if !e.isReadableDevice(path) {
			continue
		}
		if !e.supportsColorCapture(ctx, path) {
			continue
		}

		label := e.deviceLabel(path)

		// 同一カメラの複数チャンネルは最小番号のみ残す
		if label != "" && seenLabels[label] {
			continue
		}
		seenLabels[label] = true

		devices = append(devices, VideoInputDevice{
			ID:    path,
			Label: label,
			Kind:  DeviceKindVideoInput,
		})
	}

	// デバイスが1台もなくてもエラーにしない
	// 権限未付与の環境では空リストが正常な結果になる
	return devices, nil
}

// isReadableDevice はデバイスファイルが存在し読み取り可能かチェックする
func (e *V4L2Enumerator) isReadableDevice(path string) bool {
	if !devicePathRe.MatchString(path) {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}

// supportsColorCapture はデバイスがカラー映像を取得できるかチェックする
// グレースケール専用のセンサー（IRカメラ等）は列挙から除外する
func (e *V4L2Enumerator) supportsColorCapture(ctx context.Context, path string) bool {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", path, "--list-formats-ext")
	output, err := cmd.Output()
	if err != nil {
		return false
	}

	formats := string(output)
	return strings.Contains(formats, "YUYV") || strings.Contains(formats, "MJPG")
}

// deviceLabel はv4l2-ctlの出力から表示名を取得する
// 取得できない場合はデバイス番号から生成する
func (e *V4L2Enumerator) deviceLabel(path string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", path, "--info")
	output, err := cmd.Output()
	if err == nil {
		for _, line := range strings.Split(string(output), "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "Card type") {
				continue
			}
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				if card := strings.TrimSpace(parts[1]); card != "" {
					return card
				}
			}
		}
	}

	// フォールバック: デバイス番号から生成
	return fmt.Sprintf("カメラ %d", extractDeviceNumber(path))
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(path string) int {
	m := devicePathRe.FindStringSubmatch(path)
	if len(m) < 2 {
		return 0
	}
	num, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return num
}

// MockEnumerator はテスト用のモックEnumerator実装
type MockEnumerator struct {
	mu      sync.Mutex
	devices []VideoInputDevice
	err     error
	calls   int
}

// NewMockEnumerator は新しいMockEnumeratorを作成する
func NewMockEnumerator(devices ...VideoInputDevice) *MockEnumerator {
	return &MockEnumerator{devices: devices}
}

// ListVideoInputs はモックデバイス一覧を返す
func (m *MockEnumerator) ListVideoInputs(_ context.Context) ([]VideoInputDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	// コピーを返す
	result := make([]VideoInputDevice, len(m.devices))
	copy(result, m.devices)
	return result, nil
}

// SetDevices はテスト用にデバイス一覧を差し替える
func (m *MockEnumerator) SetDevices(devices ...VideoInputDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = devices
}

// SetError はテスト用に列挙失敗を設定する
func (m *MockEnumerator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls は列挙が呼ばれた回数を返す
func (m *MockEnumerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
