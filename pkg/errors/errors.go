// Package errors はプロジェクト全体のエラーハンドリングを提供します。
// パイプライン各段と推論APIが使う型付きエラーを定義し、
// cockroachdb/errors によるスタックトレース付与と zerolog への
// 構造化出力をサポートします。
package errors

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	推定器（estimator）共通のエラー型
//
// ===========================================================================

// NotFittedError は未学習のモデルやスケーラーを使用した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("medcost: %s: this estimator is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("medcost: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("medcost: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	パイプライン／推論のドメインエラー型
//
// ===========================================================================

// DataError は生データの読み込み・検証に失敗した場合のエラーです。
// パイプラインの実行を中断させます（リトライなし）。
type DataError struct {
	Source string // 入力ファイルなど
	Row    int    // 1始まりの行番号。行に紐付かない場合は0
	Column string
	Reason string
}

func (e *DataError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("medcost: data error in %s at row %d, column %q: %s", e.Source, e.Row, e.Column, e.Reason)
	}
	return fmt.Sprintf("medcost: data error in %s: %s", e.Source, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("source", e.Source).
		Int("row", e.Row).
		Str("column", e.Column).
		Str("reason", e.Reason).
		Str("type", "DataError")
}

// NewDataError は新しいDataErrorを作成し、スタックトレースを付与します。
func NewDataError(source string, row int, column, reason string) error {
	err := &DataError{Source: source, Row: row, Column: column, Reason: reason}
	return errors.WithStack(err)
}

// UnknownCategoryError は学習時の語彙に存在しないカテゴリ値が
// 推論時に渡された場合のエラーです。リクエスト単位で拒否され、
// パイプライン全体の失敗にはなりません。
type UnknownCategoryError struct {
	Column string
	Value  string
	Known  []string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("medcost: unknown category %q for column %q (known: %s)", e.Value, e.Column, strings.Join(e.Known, ", "))
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnknownCategoryError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("column", e.Column).
		Str("value", e.Value).
		Strs("known", e.Known).
		Str("type", "UnknownCategoryError")
}

// NewUnknownCategoryError は新しいUnknownCategoryErrorを作成し、スタックトレースを付与します。
func NewUnknownCategoryError(column, value string, known []string) error {
	err := &UnknownCategoryError{Column: column, Value: value, Known: known}
	return errors.WithStack(err)
}

// FieldViolation は1フィールド分のドメイン制約違反です。
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError は推論リクエストのフィールドが宣言されたドメインの
// 範囲外である場合のエラーです。違反は全フィールド分を集約して保持します
// （最初の1件だけで打ち切らない）。
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Reason)
	}
	return fmt.Sprintf("medcost: validation failed: %s", strings.Join(parts, "; "))
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	fields := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		fields[i] = v.Field
	}
	event.Strs("fields", fields).
		Int("violations", len(e.Violations)).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(violations []FieldViolation) error {
	err := &ValidationError{Violations: violations}
	return errors.WithStack(err)
}

// TrainingFailure は候補モデルの学習失敗、または有限でない予測値の
// 出力を表すエラーです。該当候補のみを選抜から除外し、
// Selector自体は中断しません。
type TrainingFailure struct {
	Candidate string
	Stage     string // "fit" or "predict"
	Err       error
}

func (e *TrainingFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("medcost: candidate %q failed during %s: %v", e.Candidate, e.Stage, e.Err)
	}
	return fmt.Sprintf("medcost: candidate %q failed during %s", e.Candidate, e.Stage)
}

func (e *TrainingFailure) Unwrap() error { return e.Err }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *TrainingFailure) MarshalZerologObject(event *zerolog.Event) {
	event.Str("candidate", e.Candidate).
		Str("stage", e.Stage).
		AnErr("cause", e.Err).
		Str("type", "TrainingFailure")
}

// NewTrainingFailure は新しいTrainingFailureを作成し、スタックトレースを付与します。
func NewTrainingFailure(candidate, stage string, cause error) error {
	err := &TrainingFailure{Candidate: candidate, Stage: stage, Err: cause}
	return errors.WithStack(err)
}

// ArtifactMissing は推論サーバー起動時に永続化済みアーティファクトが
// 見つからない場合のエラーです。サーバーは起動を拒否します。
type ArtifactMissing struct {
	Path string
	Part string // "model", "encoders", "scaler"
}

func (e *ArtifactMissing) Error() string {
	return fmt.Sprintf("medcost: artifact part %q missing at %s", e.Part, e.Path)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ArtifactMissing) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Str("part", e.Part).
		Str("type", "ArtifactMissing")
}

// NewArtifactMissing は新しいArtifactMissingを作成し、スタックトレースを付与します。
func NewArtifactMissing(path, part string) error {
	err := &ArtifactMissing{Path: path, Part: part}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	センチネルエラー
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNoCandidates は全候補が失格となり選抜できない場合のエラーです。
	ErrNoCandidates = New("no candidate produced finite predictions")
)
