package main

import (
	"context"
	"log"

	"kagami/internal/config"
	"kagami/internal/server"
	"kagami/internal/webcam"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// デバイス列挙とストリームプロバイダを作成
	enumerator := webcam.NewV4L2Enumerator()
	provider, err := webcam.NewProviderFactory().Create(cfg.ProviderType(), enumerator)
	if err != nil {
		log.Fatalf("プロバイダの作成に失敗しました: %v", err)
	}

	// キャプチャコーディネーターを作成
	coordinator := webcam.NewCoordinator(enumerator, provider, cfg.CoordinatorOptions())
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
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
