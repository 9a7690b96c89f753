// Package entity はdiagnosisフィーチャーのドメインモデルを定義します。
package entity

import (
	"fmt"
	"strings"

	"wheatleaf_backend/internal/feature/diagnosis/domain"
)

// Label はモデルが出力する小麦の葉の病害クラスを表します。
type Label string

const (
	LabelBrownRust  Label = "Brown_rust"
	LabelHealthy    Label = "Healthy"
	LabelLooseSmut  Label = "Loose_Smut"
	LabelYellowRust Label = "Yellow_rust"
	LabelSeptoria   Label = "Septoria"
)

// labels はモデル出力のインデックス順に並んだラベル表です。
// 並び順は学習済みモデルの出力次元と一致していなければなりません。
var labels = [...]Label{
	LabelBrownRust,
	LabelHealthy,
	LabelLooseSmut,
	LabelYellowRust,
	LabelSeptoria,
}

// NumLabels はラベル表の要素数（モデル出力の次元数）です。
const NumLabels = len(labels)

const expertAdvice = "Consider consulting with an agricultural expert for treatment options."

var recommendations = map[Label]string{
	LabelBrownRust:  "Disease detected: Brown rust. Orange-brown pustules spread quickly in mild, humid weather. " + expertAdvice,
	LabelHealthy:    "Your wheat plant appears to be healthy!",
	LabelLooseSmut:  "Disease detected: Loose smut. The infection is seed-borne, so plan certified or treated seed for the next sowing. " + expertAdvice,
	LabelYellowRust: "Disease detected: Yellow rust. Striped yellow pustules can cut yield sharply if left untreated. " + expertAdvice,
	LabelSeptoria:   "Disease detected: Septoria. Leaf blotch lesions move up the canopy with rain splash. " + expertAdvice,
}

// Labels はラベル表のコピーをインデックス順で返します。
func Labels() []Label {
	out := make([]Label, NumLabels)
	copy(out, labels[:])
	return out
}

// LabelFromIndex はモデル出力のインデックスをラベルに変換します。
func LabelFromIndex(i int) (Label, error) {
	if i < 0 || i >= NumLabels {
		return "", fmt.Errorf("%w: label index %d out of range [0,%d)", domain.ErrUnknownLabel, i, NumLabels)
	}
	return labels[i], nil
}

// ParseLabel は文字列をラベルに変換します。大文字小文字は区別しません。
func ParseLabel(s string) (Label, error) {
	for _, l := range labels {
		if strings.EqualFold(string(l), strings.TrimSpace(s)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownLabel, s)
}

// Index はラベル表におけるインデックスを返します。未知のラベルの場合は -1 を返します。
func (l Label) Index() int {
	for i, x := range labels {
		if x == l {
			return i
		}
	}
	return -1
}

// IsHealthy は健康な葉を表すラベルかどうかを返します。
func (l Label) IsHealthy() bool {
	return l == LabelHealthy
}

// Recommendation はラベルに対する定型の推奨メッセージを返します。
func (l Label) Recommendation() string {
	return recommendations[l]
}

func (l Label) String() string {
	return string(l)
}

// LabelInfo はラベル表の1行（公開用）を表します。
type LabelInfo struct {
	Index          int
	Label          Label
	Healthy        bool
	Recommendation string
}

// LabelCount はラベルごとの診断件数を表します。
type LabelCount struct {
	Label Label
	Count int64
}
