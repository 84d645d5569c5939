// Package server は、HTTPサーバーとWebSocket通信を管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// WebSocket接続の管理、プレビューストリームの配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - REST APIによるデバイス一覧・セッション・スナップショットの提供
//   - MJPEGによるプレビューストリームの配信
//   - WebSocketによるイベント通知（画像取得・エラー・デバイス変更）
//   - WebSocket経由の操作メッセージ（撮影トリガー・カメラ切り替え）の受付
//
// 仕様:
//   - ルーティングはgin-gonic/ginを使用
//   - WebSocketはgorilla/websocketを使用
//   - グレースフルシャットダウンに対応
//   - 複数クライアントの同時接続をサポート
package server
