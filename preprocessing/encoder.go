package preprocessing

import (
	"fmt"
	"sort"

	"github.com/YuminosukeSato/medcost/core/model"
	"github.com/YuminosukeSato/medcost/pkg/errors"
)

// LabelEncoder はscikit-learn互換のカテゴリ値エンコーダー
// 学習時に観測した語彙をソートし、各値に整数コードを割り当てる。
//
// 同じ語彙で学習すれば割り当ては常に同一（決定的・冪等）。
// 学習時に存在しなかった値の変換は UnknownCategoryError になる。
type LabelEncoder struct {
	model.BaseEstimator `json:"-"`

	// Column はこのエンコーダーが担当するカテゴリ列の名前
	Column string `json:"column"`

	// Classes はソート済みの語彙。インデックスがそのままコードになる
	Classes []string `json:"classes"`

	index map[string]int
}

// NewLabelEncoder は新しいLabelEncoderを作成する
func NewLabelEncoder(column string) *LabelEncoder {
	return &LabelEncoder{Column: column}
}

// Fit は値の集合から語彙を学習する
func (e *LabelEncoder) Fit(values []string) error {
	if len(values) == 0 {
		return errors.NewValueError("LabelEncoder.Fit", "empty data")
	}

	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}

	e.Classes = make([]string, 0, len(seen))
	for v := range seen {
		e.Classes = append(e.Classes, v)
	}
	sort.Strings(e.Classes)

	e.buildIndex()
	e.SetFitted()
	return nil
}

// Transform は学習済み語彙でカテゴリ値列を整数コード列に変換する
func (e *LabelEncoder) Transform(values []string) ([]float64, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("LabelEncoder", "Transform")
	}

	codes := make([]float64, len(values))
	for i, v := range values {
		code, ok := e.index[v]
		if !ok {
			return nil, errors.NewUnknownCategoryError(e.Column, v, e.Classes)
		}
		codes[i] = float64(code)
	}
	return codes, nil
}

// TransformOne は1つのカテゴリ値を整数コードに変換する（推論用）
func (e *LabelEncoder) TransformOne(value string) (int, error) {
	if !e.IsFitted() {
		return 0, errors.NewNotFittedError("LabelEncoder", "TransformOne")
	}

	code, ok := e.index[value]
	if !ok {
		return 0, errors.NewUnknownCategoryError(e.Column, value, e.Classes)
	}
	return code, nil
}

// InverseTransform は整数コードを元のカテゴリ値に戻す
func (e *LabelEncoder) InverseTransform(codes []int) ([]string, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("LabelEncoder", "InverseTransform")
	}

	values := make([]string, len(codes))
	for i, code := range codes {
		if code < 0 || code >= len(e.Classes) {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform",
				fmt.Sprintf("code %d out of range [0, %d)", code, len(e.Classes)))
		}
		values[i] = e.Classes[code]
	}
	return values, nil
}

// MarkFitted はデシリアライズ後にエンコーダーを学習済み状態へ復元する
func (e *LabelEncoder) MarkFitted() error {
	if e.Column == "" || len(e.Classes) == 0 {
		return errors.NewValueError("LabelEncoder.MarkFitted", "inconsistent persisted state")
	}
	e.buildIndex()
	e.SetFitted()
	return nil
}

func (e *LabelEncoder) buildIndex() {
	e.index = make(map[string]int, len(e.Classes))
	for i, v := range e.Classes {
		e.index[v] = i
	}
}

// String はエンコーダーの文字列表現を返す
func (e *LabelEncoder) String() string {
	if !e.IsFitted() {
		return fmt.Sprintf("LabelEncoder(column=%s)", e.Column)
	}
	return fmt.Sprintf("LabelEncoder(column=%s, n_classes=%d)", e.Column, len(e.Classes))
}
