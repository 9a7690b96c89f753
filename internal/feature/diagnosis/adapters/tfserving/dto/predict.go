// Package dto はTensorFlow Serving REST APIのリクエスト/レスポンス型を定義します。
package dto

// PredictRequest は :predict エンドポイントへの行形式リクエストです。
type PredictRequest struct {
	Instances []any `json:"instances"`
}

// PredictResponse は :predict エンドポイントのレスポンスです。
// 失敗時は Error のみが設定されます。
type PredictResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error"`
}
