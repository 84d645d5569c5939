package webcam

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
)

var deviceNameRe = regexp.MustCompile(`^video\d+$`)

// DeviceWatcher はデバイスディレクトリを監視してカメラの抜き差しを検知する
// 検知のたびに再列挙シグナルを1つ送出する
type DeviceWatcher struct {
	watcher *fsnotify.Watcher
	events  chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewDeviceWatcher は/devを監視する新しいDeviceWatcherを作成する
func NewDeviceWatcher() (*DeviceWatcher, error) {
	return NewDeviceWatcherFor("/dev")
}

// NewDeviceWatcherFor は指定ディレクトリを監視するDeviceWatcherを作成する
func NewDeviceWatcherFor(dir string) (*DeviceWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("デバイス監視の作成に失敗: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("ディレクトリ %s の監視に失敗: %w", dir, err)
	}

	w := &DeviceWatcher{
		watcher: watcher,
		events:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

// Events は再列挙シグナルのチャンネルを返す
// CoordinatorのSetRescanFeedへそのまま渡せる
func (w *DeviceWatcher) Events() <-chan struct{} {
	return w.events
}

// loop はfsnotifyイベントをフィルタして再列挙シグナルに変換する
func (w *DeviceWatcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !deviceNameRe.MatchString(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// シグナルが溜まっている場合は1つに畳む
			select {
			case w.events <- struct{}{}:
			default:
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// 監視エラーは無視して継続
		}
	}
}

// Close は監視を停止する
func (w *DeviceWatcher) Close() error {
	close(w.stopCh)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
