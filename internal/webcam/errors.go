package webcam

import (
	"errors"
	"fmt"
)

// ErrUnsupportedPlatform はホストがデバイス列挙機能を持たないことを表す
// このエラーはコンポーネントにとって致命的で、リトライしても回復しない
var ErrUnsupportedPlatform = errors.New("このプラットフォームではデバイス列挙がサポートされていません")

// EnumerationError はデバイス列挙の失敗を表す
// 回復可能で、次回の切り替え時に暗黙的にリトライされる
type EnumerationError struct {
	Cause error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("デバイス列挙に失敗: %v", e.Cause)
}

func (e *EnumerationError) Unwrap() error {
	return e.Cause
}

// AcquisitionError はメディアストリームの取得失敗を表す
// コーディネーターは半初期化状態にならず、再度の切り替えでリトライできる
type AcquisitionError struct {
	Message string // 人間向けの説明
	Cause   error  // プラットフォーム側の原因
}

func (e *AcquisitionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("ストリーム取得に失敗: %s", e.Message)
	}
	return fmt.Sprintf("ストリーム取得に失敗: %s: %v", e.Message, e.Cause)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Cause
}
