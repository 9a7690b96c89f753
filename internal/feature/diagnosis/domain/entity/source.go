package entity

import (
	"fmt"
	"strings"
)

// InputSource は画像の入力経路（カメラ撮影 or ギャラリーから選択）を表します。
type InputSource string

const (
	SourceCamera  InputSource = "camera"
	SourceGallery InputSource = "gallery"
)

// ParseInputSource は文字列を入力経路に変換します。空文字の場合は gallery になります。
func ParseInputSource(s string) (InputSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return SourceGallery, nil
	case string(SourceCamera):
		return SourceCamera, nil
	case string(SourceGallery):
		return SourceGallery, nil
	default:
		return "", fmt.Errorf("unknown input source %q", s)
	}
}
