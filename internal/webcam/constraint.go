package webcam

// ConstraintKind は制約値の形を表すタグ
// 元の動的な形判定（文字列・リスト・exact/idealオブジェクト）を
// 明示的なバリアントに置き換えたもの
type ConstraintKind int

const (
	// ConstraintPlain は単一の値をそのまま要求する
	ConstraintPlain ConstraintKind = iota
	// ConstraintList は候補リスト（先頭を優先）
	ConstraintList
	// ConstraintExact は完全一致を要求する
	ConstraintExact
	// ConstraintIdeal は希望値（一致しなくてもよい）
	ConstraintIdeal
)

// Constraint は単一プロパティへの宣言的な要求を表す
type Constraint struct {
	Kind   ConstraintKind
	Value  string   // Plain / Exact / Ideal 用
	Values []string // List 用
}

// Plain は単一値の制約を作成する
func Plain(v string) *Constraint {
	return &Constraint{Kind: ConstraintPlain, Value: v}
}

// Exact は完全一致の制約を作成する
func Exact(v string) *Constraint {
	return &Constraint{Kind: ConstraintExact, Value: v}
}

// Ideal は希望値の制約を作成する
func Ideal(v string) *Constraint {
	return &Constraint{Kind: ConstraintIdeal, Value: v}
}

// OneOf は候補リストの制約を作成する
func OneOf(vs ...string) *Constraint {
	return &Constraint{Kind: ConstraintList, Values: vs}
}

// Primary は制約から代表値を1つ解決する
// 優先順位は 単一値 → リスト先頭 → exact → ideal
func (c *Constraint) Primary() string {
	if c == nil {
		return ""
	}
	switch c.Kind {
	case ConstraintPlain:
		return c.Value
	case ConstraintList:
		if len(c.Values) > 0 {
			return c.Values[0]
		}
		return ""
	case ConstraintExact:
		return c.Value
	case ConstraintIdeal:
		return c.Value
	}
	return ""
}

// TrackConstraints はストリーム取得時の宣言的な要求
// 値渡しで消費され、プラットフォームが実際の設定に解決する
type TrackConstraints struct {
	DeviceID   *Constraint // デバイス識別子への制約
	FacingMode *Constraint // カメラの向きへの制約
	Width      int         // 要求する幅（0ならプロバイダ既定）
	Height     int         // 要求する高さ（0ならプロバイダ既定）
	FrameRate  int         // 要求するフレームレート（0ならプロバイダ既定）
}

// DefaultTrackConstraints は既定の制約を返す
// 外側カメラ・1280x720・15fps
func DefaultTrackConstraints() TrackConstraints {
	return TrackConstraints{
		FacingMode: Plain(string(FacingEnvironment)),
		Width:      1280,
		Height:     720,
		FrameRate:  15,
	}
}

// WithDevice はデバイスの完全一致制約を合成した複製を返す
// 元の制約は変更しない
func (tc TrackConstraints) WithDevice(id string) TrackConstraints {
	merged := tc
	merged.DeviceID = Exact(id)
	return merged
}
