package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"kagami/internal/config"
	"kagami/internal/webcam"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config      *config.Config
	coordinator *webcam.Coordinator
	engine      *gin.Engine
	httpServer  *http.Server
	hub         *wsHub

	// コーディネーターへの外部フィード
	// WebSocketの操作メッセージをここへ流す
	triggerCh chan struct{}
	switchCh  chan webcam.SwitchRequest
}

// New は新しいServerインスタンスを作成する
// コーディネーターのStartより前に呼ぶこと（操作フィードを登録するため）
func New(cfg *config.Config, coordinator *webcam.Coordinator) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config:      cfg,
		coordinator: coordinator,
		engine:      engine,
		triggerCh:   make(chan struct{}, 4),
		switchCh:    make(chan webcam.SwitchRequest, 4),
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
	s.hub = newWSHub(coordinator, s.triggerCh, s.switchCh)

	coordinator.SetTriggerFeed(s.triggerCh)
	coordinator.SetSwitchFeed(s.switchCh)

	s.setupRoutes()
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)

	// ルートハンドラ（簡単な確認用）
	s.engine.GET("/", s.handleRoot)

	// APIエンドポイント
	api := s.engine.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/devices", s.handleDevices)
		api.GET("/session", s.handleSession)
		api.POST("/switch", s.handleSwitch)
		api.POST("/snapshot", s.handleSnapshot)
		api.GET("/stream", s.handleStream)
		api.GET("/events", s.handleEvents)
	}
}

// Handler はテスト用にHTTPハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// イベント配信ハブを起動
	hubCtx, hubCancel := context.WithCancel(ctx)
	defer hubCancel()
	go s.hub.run(hubCtx)

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.hub.closeAll()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}
