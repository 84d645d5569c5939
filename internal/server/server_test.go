package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"kagami/internal/config"
	"kagami/internal/webcam"
)

// testConfig はテスト用の設定を作成する
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:        "127.0.0.1",
			Port:        0, // ランダムポートを使用
			ReadTimeout: 5 * time.Second,
		},
		Webcam: config.WebcamConfig{
			Provider:      string(webcam.ProviderMock),
			DisplayWidth:  640,
			DisplayHeight: 480,
			FacingMode:    string(webcam.FacingEnvironment),
			CaptureWidth:  1280,
			CaptureHeight: 720,
			FrameRate:     15,
			SwitchEnabled: true,
			MirrorMode:    string(webcam.MirrorAuto),
			ImageType:     webcam.ImageTypeJPEG,
			ImageQuality:  92,
		},
	}
}

// newTestServer はモックのコーディネーターを組み込んだサーバーを作成する
func newTestServer(t *testing.T) (*Server, *webcam.Coordinator, *webcam.MockStreamProvider) {
	t.Helper()

	enumerator := webcam.NewMockEnumerator(
		webcam.VideoInputDevice{ID: "/dev/video0", Label: "テストカメラ0", Kind: webcam.DeviceKindVideoInput},
		webcam.VideoInputDevice{ID: "/dev/video1", Label: "テストカメラ1", Kind: webcam.DeviceKindVideoInput},
	)
	provider := webcam.NewMockStreamProvider(webcam.TrackSettings{
		Width:      1280,
		Height:     720,
		FrameRate:  15,
		FacingMode: webcam.FacingEnvironment,
	})

	cfg := testConfig()
	coordinator := webcam.NewCoordinator(enumerator, provider, cfg.CoordinatorOptions())

	// サーバー作成で操作フィードが登録されるため、Startより前に作成する
	srv := New(cfg, coordinator)

	ctx, cancel := context.WithCancel(context.Background())
	if err := coordinator.Start(ctx); err != nil {
		cancel()
		t.Fatalf("コーディネーターの起動に失敗しました: %v", err)
	}
	t.Cleanup(func() {
		coordinator.Close()
		cancel()
	})

	return srv, coordinator, provider
}

// makeTestJPEG はテスト用のJPEG画像を生成する
func makeTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("テスト画像の生成に失敗しました: %v", err)
	}
	return buf.Bytes()
}

// TestServerEndpoints は各エンドポイントのステータスコードをテストする
func TestServerEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	testCases := []struct {
		name           string
		endpoint       string
		expectedStatus int
	}{
		{"ルートエンドポイント", "/", http.StatusOK},
		{"ヘルスチェックエンドポイント", "/health", http.StatusOK},
		{"ステータスエンドポイント", "/api/status", http.StatusOK},
		{"デバイス一覧エンドポイント", "/api/devices", http.StatusOK},
		{"セッションエンドポイント", "/api/session", http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tc.endpoint)
			if err != nil {
				t.Fatalf("HTTPリクエストでエラーが発生しました: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tc.expectedStatus {
				t.Errorf("予期しないステータスコード: got %d, want %d",
					resp.StatusCode, tc.expectedStatus)
			}
		})
	}
}

// TestDevicesEndpoint はデバイス一覧の内容をテストする
func TestDevicesEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/devices")
	if err != nil {
		t.Fatalf("HTTPリクエストでエラーが発生しました: %v", err)
	}
	defer resp.Body.Close()

	var body DevicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスの解析に失敗しました: %v", err)
	}

	if len(body.Devices) != 2 {
		t.Fatalf("デバイス数が一致しません: got %d, want 2", len(body.Devices))
	}
	if body.Devices[0].ID != "/dev/video0" {
		t.Errorf("デバイスIDが一致しません: got %s, want /dev/video0", body.Devices[0].ID)
	}
	if body.ActiveIndex < 0 {
		t.Errorf("アクティブデバイスが設定されていません: got %d", body.ActiveIndex)
	}
}

// TestSwitchEndpoint はカメラ切り替えエンドポイントをテストする
func TestSwitchEndpoint(t *testing.T) {
	srv, coordinator, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	payload := strings.NewReader(`{"device_id": "/dev/video1"}`)
	resp, err := http.Post(ts.URL+"/api/switch", "application/json", payload)
	if err != nil {
		t.Fatalf("HTTPリクエストでエラーが発生しました: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("予期しないステータスコード: got %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスの解析に失敗しました: %v", err)
	}

	if body.Session == nil {
		t.Fatal("セッションが返されていません")
	}
	if body.Session.Settings.DeviceID != "/dev/video1" {
		t.Errorf("切り替え先デバイスが一致しません: got %s, want /dev/video1",
			body.Session.Settings.DeviceID)
	}
	if coordinator.State() != webcam.StateLive {
		t.Errorf("状態が一致しません: got %s, want %s", coordinator.State(), webcam.StateLive)
	}
}

// TestSwitchEndpointInvalidBody は不正なボディの扱いをテストする
func TestSwitchEndpointInvalidBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/switch", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("HTTPリクエストでエラーが発生しました: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("予期しないステータスコード: got %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

// TestSnapshotEndpoint はスナップショットエンドポイントをテストする
func TestSnapshotEndpoint(t *testing.T) {
	srv, _, provider := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// フレーム到着前は503
	resp, err := http.Post(ts.URL+"/api/snapshot", "application/json", nil)
	if err != nil {
		t.Fatalf("HTTPリクエストでエラーが発生しました: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("予期しないステータスコード: got %d, want %d",
			resp.StatusCode, http.StatusServiceUnavailable)
	}

	// フレームを送信し、スナップショットが取得できるまで待つ
	provider.EmitFrame(makeTestJPEG(t, 320, 240))

	var body SnapshotResponse
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Post(ts.URL+"/api/snapshot", "application/json", nil)
		if err != nil {
			t.Fatalf("HTTPリクエストでエラーが発生しました: %v", err)
		}
		if resp.StatusCode == http.StatusOK {
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("レスポンスの解析に失敗しました: %v", err)
			}
			resp.Body.Close()
			break
		}
		resp.Body.Close()
		if time.Now().After(deadline) {
			t.Fatal("スナップショットの取得がタイムアウトしました")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if body.MIMEType != webcam.ImageTypeJPEG {
		t.Errorf("MIMEタイプが一致しません: got %s, want %s", body.MIMEType, webcam.ImageTypeJPEG)
	}
	// ストリームのネイティブ解像度が優先される
	if body.Width != 1280 || body.Height != 720 {
		t.Errorf("出力サイズが一致しません: got %dx%d, want 1280x720", body.Width, body.Height)
	}
	if !strings.HasPrefix(body.DataURL, "data:image/jpeg;base64,") {
		t.Errorf("データURLの形式が不正です: %.40s", body.DataURL)
	}
}

// TestWebSocketEvents はWebSocket経由のイベント配信と操作をテストする
func TestWebSocketEvents(t *testing.T) {
	srv, coordinator, provider := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// イベント配信ハブを起動
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go srv.hub.run(hubCtx)

	// フレームを送信し、スナップショット可能になるまで待つ
	provider.EmitFrame(makeTestJPEG(t, 320, 240))
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := coordinator.CaptureSnapshot(); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("フレームの到着がタイムアウトしました")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// WebSocketで接続
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket接続に失敗しました: %v", err)
	}
	defer conn.Close()

	// 撮影トリガーを送信
	if err := conn.WriteJSON(wsControl{Type: "trigger"}); err != nil {
		t.Fatalf("操作メッセージの送信に失敗しました: %v", err)
	}

	// image-captured イベントを待つ（他のイベントは読み飛ばす）
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var event wsEvent
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("イベントの受信に失敗しました: %v", err)
		}
		if event.Type != "image-captured" {
			continue
		}
		if event.Image == nil {
			t.Fatal("画像情報が含まれていません")
		}
		if event.Image.MIMEType != webcam.ImageTypeJPEG {
			t.Errorf("MIMEタイプが一致しません: got %s", event.Image.MIMEType)
		}
		if !strings.HasPrefix(event.Image.DataURL, "data:image/jpeg;base64,") {
			t.Errorf("データURLの形式が不正です: %.40s", event.Image.DataURL)
		}
		return
	}
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	srv, _, _ := newTestServer(t)

	// テスト用のコンテキスト（タイムアウト付き）
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// サーバーを別ゴルーチンで起動
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// サーバーが起動するまで少し待つ
	time.Sleep(100 * time.Millisecond)

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	// エラーチャンネルから結果を受信
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}
