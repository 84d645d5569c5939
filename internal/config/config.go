package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"kagami/internal/webcam"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Webcam WebcamConfig `yaml:"webcam"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// WebcamConfig はカメラまわりの設定
type WebcamConfig struct {
	Provider string `yaml:"provider"` // ストリームプロバイダ ("v4l2" | "mock")
	Device   string `yaml:"device"`   // 起動時に選択するデバイス（空なら既定）

	// プレビュー・スナップショットの表示サイズ
	DisplayWidth  int `yaml:"display_width"`
	DisplayHeight int `yaml:"display_height"`

	// 基準のトラック制約
	FacingMode    string `yaml:"facing_mode"`    // "user" | "environment"
	CaptureWidth  int    `yaml:"capture_width"`  // 要求する画像幅
	CaptureHeight int    `yaml:"capture_height"` // 要求する画像高さ
	FrameRate     int    `yaml:"frame_rate"`     // フレームレート (fps)

	SwitchEnabled bool   `yaml:"switch_enabled"` // カメラ巡回切り替えの有効/無効
	MirrorMode    string `yaml:"mirror_mode"`    // "auto" | "always" | "never"
	CaptureRaw    bool   `yaml:"capture_raw"`    // スナップショットでピクセルバッファも保持
	ImageType     string `yaml:"image_type"`     // スナップショットのMIMEタイプ
	ImageQuality  int    `yaml:"image_quality"`  // JPEG品質 (1-100)
	HotplugWatch  bool   `yaml:"hotplug_watch"`  // /devの抜き差し監視
}

// Load は設定を読み込む
// デフォルト値から始め、KAGAMI_CONFIGで指定されたYAMLファイルと
// 環境変数（SERVER_HOST, PORT）で上書きする
func Load() (*Config, error) {
	cfg := defaultConfig()

	// 設定ファイルによる上書き
	if path := os.Getenv("KAGAMI_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	// 環境変数による上書き
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Webcam: WebcamConfig{
			Provider:      string(webcam.ProviderV4L2),
			DisplayWidth:  640,
			DisplayHeight: 480,
			FacingMode:    string(webcam.FacingEnvironment),
			CaptureWidth:  1280,
			CaptureHeight: 720,
			FrameRate:     15,
			SwitchEnabled: true,
			MirrorMode:    string(webcam.MirrorAuto),
			ImageType:     webcam.ImageTypeJPEG,
			ImageQuality:  webcam.DefaultImageQuality,
			HotplugWatch:  true,
		},
	}
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	switch webcam.ProviderType(c.Webcam.Provider) {
	case webcam.ProviderV4L2, webcam.ProviderMock:
	default:
		return fmt.Errorf("無効なプロバイダ種別: %s", c.Webcam.Provider)
	}

	if c.Webcam.DisplayWidth <= 0 || c.Webcam.DisplayHeight <= 0 {
		return fmt.Errorf("無効な表示サイズ: %dx%d", c.Webcam.DisplayWidth, c.Webcam.DisplayHeight)
	}

	switch webcam.FacingMode(c.Webcam.FacingMode) {
	case webcam.FacingUser, webcam.FacingEnvironment:
	default:
		return fmt.Errorf("無効なフェイシングモード: %s", c.Webcam.FacingMode)
	}

	switch webcam.MirrorMode(c.Webcam.MirrorMode) {
	case webcam.MirrorAuto, webcam.MirrorAlways, webcam.MirrorNever:
	default:
		return fmt.Errorf("無効なミラーモード: %s", c.Webcam.MirrorMode)
	}

	switch c.Webcam.ImageType {
	case webcam.ImageTypeJPEG, webcam.ImageTypePNG:
	default:
		return fmt.Errorf("無効な画像タイプ: %s", c.Webcam.ImageType)
	}

	if c.Webcam.ImageQuality < 1 || c.Webcam.ImageQuality > 100 {
		return fmt.Errorf("無効な画像品質: %d", c.Webcam.ImageQuality)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BaseConstraints は設定から基準のトラック制約を構築する
func (c *Config) BaseConstraints() webcam.TrackConstraints {
	return webcam.TrackConstraints{
		FacingMode: webcam.Plain(c.Webcam.FacingMode),
		Width:      c.Webcam.CaptureWidth,
		Height:     c.Webcam.CaptureHeight,
		FrameRate:  c.Webcam.FrameRate,
	}
}

// CoordinatorOptions は設定からキャプチャコーディネーター用のオプションを構築する
func (c *Config) CoordinatorOptions() webcam.Options {
	base := c.BaseConstraints()
	return webcam.Options{
		DisplayWidth:    c.Webcam.DisplayWidth,
		DisplayHeight:   c.Webcam.DisplayHeight,
		BaseConstraints: &base,
		InitialDeviceID: c.Webcam.Device,
		SwitchEnabled:   c.Webcam.SwitchEnabled,
		MirrorMode:      webcam.MirrorMode(c.Webcam.MirrorMode),
		CaptureRaw:      c.Webcam.CaptureRaw,
		ImageType:       c.Webcam.ImageType,
		ImageQuality:    c.Webcam.ImageQuality,
	}
}

// ProviderType は設定されたストリームプロバイダ種別を返す
func (c *Config) ProviderType() webcam.ProviderType {
	return webcam.ProviderType(c.Webcam.Provider)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
