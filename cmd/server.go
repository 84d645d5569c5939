// Package main はKagamiサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"kagami/internal/config"
	"kagami/internal/server"
	"kagami/internal/webcam"
)

func main() {
	// コマンドラインオプション
	var (
		host     = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port     = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		device   = flag.String("device", "", "起動時に選択するデバイス (例: /dev/video0)")
		provider = flag.String("provider", "", "ストリームプロバイダ (v4l2 | mock)")
		help     = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Kagami")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *device != "" {
		cfg.Webcam.Device = *device
	}
	if *provider != "" {
		cfg.Webcam.Provider = *provider
		if err := cfg.Validate(); err != nil {
			log.Fatalf("設定の検証に失敗しました: %v", err)
		}
	}

	// デバイス列挙とストリームプロバイダを作成
	enumerator := webcam.NewV4L2Enumerator()
	streamProvider, err := webcam.NewProviderFactory().Create(cfg.ProviderType(), enumerator)
	if err != nil {
		log.Fatalf("プロバイダの作成に失敗しました: %v", err)
	}

	// キャプチャコーディネーターを作成
	coordinator := webcam.NewCoordinator(enumerator, streamProvider, cfg.CoordinatorOptions())
	defer coordinator.Close()

	// サーバーを作成（コーディネーターへの操作フィードを登録する）
	srv := server.New(cfg, coordinator)

	// デバイスの抜き差し監視
	if cfg.Webcam.HotplugWatch {
		watcher, err := webcam.NewDeviceWatcher()
		if err != nil {
			log.Printf("デバイス監視を開始できません: %v", err)
		} else {
			defer watcher.Close()
			coordinator.SetRescanFeed(watcher.Events())
		}
	}

	// コンテキストを作成
	ctx := context.Background()

	// コーディネーターを起動
	if err := coordinator.Start(ctx); err != nil {
		log.Fatalf("コーディネーターの起動に失敗しました: %v", err)
	}

	// サーバーを起動
	log.Printf("Kagami サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
