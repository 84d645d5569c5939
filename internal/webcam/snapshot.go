package webcam

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"sync"

	"github.com/disintegration/imaging"
)

// 出力フォーマットのMIMEタイプ
const (
	ImageTypeJPEG = "image/jpeg"
	ImageTypePNG  = "image/png"
)

// DefaultImageQuality はJPEG出力の既定品質
const DefaultImageQuality = 92

// SnapshotOptions はスナップショット生成の設定
type SnapshotOptions struct {
	DisplayWidth  int    // ネイティブ解像度が不明な場合の出力幅
	DisplayHeight int    // ネイティブ解像度が不明な場合の出力高さ
	ImageType     string // 出力MIMEタイプ（既定: image/jpeg）
	ImageQuality  int    // JPEG品質 1-100（既定: 92）
	CaptureRaw    bool   // デコード済みピクセルバッファも保持する
}

// DefaultSnapshotOptions は既定のスナップショット設定を返す
func DefaultSnapshotOptions() SnapshotOptions {
	return SnapshotOptions{
		DisplayWidth:  640,
		DisplayHeight: 480,
		ImageType:     ImageTypeJPEG,
		ImageQuality:  DefaultImageQuality,
	}
}

// CapturedImage はエンコード済みの静止画を保持する不変値
// 生成後に変更されないため、派生値（データURL）は遅延計算してキャッシュする
type CapturedImage struct {
	data     []byte
	mimeType string
	width    int
	height   int
	pixels   *image.NRGBA

	dataURLOnce sync.Once
	dataURL     string
}

// Data はエンコード済みの画像データを返す
func (i *CapturedImage) Data() []byte {
	return i.data
}

// MIMEType は画像のMIMEタイプを返す
func (i *CapturedImage) MIMEType() string {
	return i.mimeType
}

// Width は出力画像の幅を返す
func (i *CapturedImage) Width() int {
	return i.width
}

// Height は出力画像の高さを返す
func (i *CapturedImage) Height() int {
	return i.height
}

// Pixels はデコード済みのピクセルバッファを返す
// CaptureRaw が無効の場合は nil
func (i *CapturedImage) Pixels() *image.NRGBA {
	return i.pixels
}

// DataURL はbase64のデータURL表現を返す
// 初回呼び出しで計算し、以降はキャッシュを返す
func (i *CapturedImage) DataURL() string {
	i.dataURLOnce.Do(func() {
		i.dataURL = fmt.Sprintf("data:%s;base64,%s",
			i.mimeType, base64.StdEncoding.EncodeToString(i.data))
	})
	return i.dataURL
}

// EncodeSnapshot はライブフレームからCapturedImageを生成する
// 出力サイズはネイティブ解像度が既知かつ非ゼロならそれを優先し、
// 不明な場合は設定された表示サイズへフォールバックする
func EncodeSnapshot(frame []byte, native TrackSettings, opts SnapshotOptions) (*CapturedImage, error) {
	src, err := imaging.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("フレームのデコードに失敗: %w", err)
	}

	width, height := native.Width, native.Height
	if width <= 0 || height <= 0 {
		width, height = opts.DisplayWidth, opts.DisplayHeight
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("出力サイズを決定できません")
	}

	bitmap := imaging.Clone(src)
	bounds := bitmap.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		bitmap = imaging.Resize(bitmap, width, height, imaging.Lanczos)
	}

	imageType := opts.ImageType
	if imageType == "" {
		imageType = ImageTypeJPEG
	}
	quality := opts.ImageQuality
	if quality <= 0 || quality > 100 {
		quality = DefaultImageQuality
	}

	var buf bytes.Buffer
	switch imageType {
	case ImageTypeJPEG:
		if err := jpeg.Encode(&buf, bitmap, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
		}
	case ImageTypePNG:
		if err := png.Encode(&buf, bitmap); err != nil {
			return nil, fmt.Errorf("PNGエンコードに失敗: %w", err)
		}
	default:
		return nil, fmt.Errorf("サポートされていない画像タイプ: %s", imageType)
	}

	captured := &CapturedImage{
		data:     buf.Bytes(),
		mimeType: imageType,
		width:    width,
		height:   height,
	}
	if opts.CaptureRaw {
		captured.pixels = bitmap
	}

	return captured, nil
}
