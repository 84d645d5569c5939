package webcam

import (
	"bytes"
	"encoding/base64"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func TestEncodeSnapshot_NativeResolution(t *testing.T) {
	frame := makeTestJPEG(t, 1280, 720)
	native := TrackSettings{Width: 1280, Height: 720}
	opts := DefaultSnapshotOptions() // 640x480

	captured, err := EncodeSnapshot(frame, native, opts)
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}

	// ネイティブ解像度が既知なら設定サイズより優先される
	if captured.Width() != 1280 || captured.Height() != 720 {
		t.Errorf("Expected 1280x720, got %dx%d", captured.Width(), captured.Height())
	}

	img, err := jpeg.Decode(bytes.NewReader(captured.Data()))
	if err != nil {
		t.Fatalf("Output is not valid JPEG: %v", err)
	}
	if img.Bounds().Dx() != 1280 || img.Bounds().Dy() != 720 {
		t.Errorf("Decoded size mismatch: %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestEncodeSnapshot_FallbackToDisplaySize(t *testing.T) {
	frame := makeTestJPEG(t, 1280, 720)
	opts := DefaultSnapshotOptions()

	// ネイティブ解像度が不明（ゼロ）の場合は表示サイズへフォールバック
	captured, err := EncodeSnapshot(frame, TrackSettings{}, opts)
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}

	if captured.Width() != 640 || captured.Height() != 480 {
		t.Errorf("Expected 640x480 fallback, got %dx%d", captured.Width(), captured.Height())
	}

	img, err := jpeg.Decode(bytes.NewReader(captured.Data()))
	if err != nil {
		t.Fatalf("Output is not valid JPEG: %v", err)
	}
	if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 480 {
		t.Errorf("Decoded size mismatch: %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestEncodeSnapshot_NoUsableSize(t *testing.T) {
	frame := makeTestJPEG(t, 320, 240)
	opts := SnapshotOptions{ImageType: ImageTypeJPEG}

	if _, err := EncodeSnapshot(frame, TrackSettings{}, opts); err == nil {
		t.Error("Expected error when neither native nor display size is usable")
	}
}

func TestEncodeSnapshot_PNG(t *testing.T) {
	frame := makeTestJPEG(t, 320, 240)
	opts := DefaultSnapshotOptions()
	opts.ImageType = ImageTypePNG

	captured, err := EncodeSnapshot(frame, TrackSettings{Width: 320, Height: 240}, opts)
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}

	if captured.MIMEType() != ImageTypePNG {
		t.Errorf("Expected image/png, got %s", captured.MIMEType())
	}
	if _, err := png.Decode(bytes.NewReader(captured.Data())); err != nil {
		t.Errorf("Output is not valid PNG: %v", err)
	}
}

func TestEncodeSnapshot_UnsupportedType(t *testing.T) {
	frame := makeTestJPEG(t, 320, 240)
	opts := DefaultSnapshotOptions()
	opts.ImageType = "image/webp"

	if _, err := EncodeSnapshot(frame, TrackSettings{Width: 320, Height: 240}, opts); err == nil {
		t.Error("Expected error for unsupported image type")
	}
}

func TestEncodeSnapshot_RawPixels(t *testing.T) {
	frame := makeTestJPEG(t, 320, 240)

	// 無効時はピクセルバッファを保持しない
	opts := DefaultSnapshotOptions()
	captured, err := EncodeSnapshot(frame, TrackSettings{Width: 320, Height: 240}, opts)
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}
	if captured.Pixels() != nil {
		t.Error("Expected no pixel buffer when raw capture is disabled")
	}

	// 有効時は同じサイズのバッファを保持する
	opts.CaptureRaw = true
	captured, err = EncodeSnapshot(frame, TrackSettings{Width: 320, Height: 240}, opts)
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}
	pixels := captured.Pixels()
	if pixels == nil {
		t.Fatal("Expected pixel buffer when raw capture is enabled")
	}
	if pixels.Bounds().Dx() != 320 || pixels.Bounds().Dy() != 240 {
		t.Errorf("Pixel buffer size mismatch: %dx%d", pixels.Bounds().Dx(), pixels.Bounds().Dy())
	}
}

func TestCapturedImage_DataURL(t *testing.T) {
	frame := makeTestJPEG(t, 320, 240)
	captured, err := EncodeSnapshot(frame, TrackSettings{Width: 320, Height: 240}, DefaultSnapshotOptions())
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}

	url := captured.DataURL()
	prefix := "data:image/jpeg;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("Unexpected data URL prefix: %.40s", url)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("Data URL payload is not valid base64: %v", err)
	}
	if !bytes.Equal(decoded, captured.Data()) {
		t.Error("Data URL payload does not match encoded data")
	}

	// 2回目はキャッシュされた同じ値を返す
	if again := captured.DataURL(); again != url {
		t.Error("Expected cached data URL on second call")
	}
}
