package entity

import "time"

// Prediction はモデル推論の結果（arg-max デコード済み）を表します。
type Prediction struct {
	Index      int       `json:"index"`      // arg-max インデックス
	Label      Label     `json:"label"`      // インデックスに対応するラベル
	Confidence float32   `json:"confidence"` // 予測ラベルの確率（0.0 ~ 1.0）
	Scores     []float32 `json:"scores"`     // モデルの生出力
}

// Diagnosis は1回の診断リクエストの結果を表します。
// 画像そのものは保持せず、ダイジェストとサイズ情報のみを持ちます。
type Diagnosis struct {
	ID          string
	Prediction  Prediction
	Source      InputSource
	Advice      string
	ImageFormat string
	ImageWidth  int
	ImageHeight int
	ImageDigest string
	ModelName   string
	CreatedAt   time.Time
}
