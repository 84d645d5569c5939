// Package webcam 映像入力デバイスのライフサイクルとキャプチャを統括する
//
// # 責務
// - 映像入力デバイスの列挙（V4L2デバイスの検出・実名取得）
// - キャプチャセッションの取得・解放・デバイス切り替え
// - ライブストリームからの静止画スナップショット生成
// - ミラーリング判定（フェイシングモードに基づく）
// - 通知チャンネル（画像取得・初期化エラー・デバイス変更）の配信
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 利用可能なカメラを列挙して1台を選択したい
// - カメラを切り替えながらライブプレビューを配信したい
// - プレビュー中の映像から静止画を取得したい
//
// # 仕様
// - Enumerator: 映像入力デバイスの読み取り専用クエリ
// - StreamProvider: 制約からキャプチャストリームを取得する
// - Coordinator: セッションの排他的所有とデバイス切り替えの調停
// - 同時に生存するキャプチャセッションは常に高々1つ
// - 切り替えは世代カウンタで調停され、追い越された取得は無効化される
//
// # 前提要件
//   - v4l-utils: カメラ名の取得とデバイス判定に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: フレームキャプチャとストリーミングに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package webcam
