package model

import (
	"encoding/gob"
	"os"
	"sync"

	"github.com/YuminosukeSato/medcost/pkg/errors"
)

// モデルはgobで永続化する。gobは具象型を復元できないため、
// 各モデルパッケージは init() で種別名とファクトリを登録し、
// 保存時は種別名付きのエンベロープに包む。
// 永続化されるモデルのフィールドはエクスポートされたプレーンなGo型に
// 限定すること（mat.Dense等は gob 不可）。

type envelope struct {
	Kind string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Regressor{}
)

// RegisterRegressor はモデル種別名とファクトリ関数を登録する。
// 各モデルパッケージの init() から呼ばれる。
func RegisterRegressor(kind string, factory func() Regressor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// SaveRegressor は学習済みモデルを種別名付きでファイルに保存する
//
// 使用例:
//
//	reg := linear.NewLinearRegression()
//	// ... 学習 ...
//	err := model.SaveRegressor(reg, "model.gob")
func SaveRegressor(reg Regressor, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filename)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(envelope{Kind: reg.Name()}); err != nil {
		return errors.Wrap(err, "failed to encode model envelope")
	}
	if err := encoder.Encode(reg); err != nil {
		return errors.Wrapf(err, "failed to encode model %q", reg.Name())
	}
	return nil
}

// LoadRegressor はファイルから学習済みモデルを読み込む。
// エンベロープの種別名から登録済みファクトリで具象型を生成し、
// 復元後は学習済み状態に設定する。
func LoadRegressor(filename string) (Regressor, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", filename)
	}
	defer file.Close()

	decoder := gob.NewDecoder(file)
	var env envelope
	if err := decoder.Decode(&env); err != nil {
		return nil, errors.Wrap(err, "failed to decode model envelope")
	}

	registryMu.RLock()
	factory, ok := registry[env.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Newf("unknown model kind %q (is its package imported?)", env.Kind)
	}

	reg := factory()
	if err := decoder.Decode(reg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode model %q", env.Kind)
	}
	if fitted, ok := reg.(interface{ SetFitted() }); ok {
		fitted.SetFitted()
	}
	return reg, nil
}
