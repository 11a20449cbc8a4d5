// model.go
package model

import (
	"errors"
	"fmt"
	"sort"
)

// 模型类型标识，配置里用这些名字点模型
const (
	KindKNN     = "knn"
	KindForest  = "forest"
	KindNetwork = "network"
)

var (
	// ErrDegenerateFold 训练折里只剩一个类别，硬拟合出来的模型没有意义
	ErrDegenerateFold = errors.New("degenerate training fold: 训练折仅包含单一类别")

	// ErrNotFitted 尚未调用Fit
	ErrNotFitted = errors.New("模型尚未训练")

	// ErrUnknownModel 配置点了没注册的模型
	ErrUnknownModel = errors.New("未注册的模型类型")
)

// Classifier 统一的二分类能力
// 三种实现可以互换，管线不感知具体模型
type Classifier interface {
	Name() string

	// Fit 在特征矩阵和标签上训练
	Fit(x [][]float64, y []string) error

	// Predict 给每行一个标签
	Predict(x [][]float64) ([]string, error)

	// PredictProba 给每行一个正类概率
	PredictProba(x [][]float64) ([]float64, error)
}

// Config 模型构造参数，按Kind取各自关心的字段
type Config struct {
	Kind     string
	Positive string
	Negative string
	Seed     int64

	// knn
	K int

	// forest
	Trees    int
	Mtry     int
	MaxDepth int
	MinLeaf  int

	// network
	Hidden    []int
	LearnRate float64
	Epochs    int
	BatchSize int
}

type builder func(Config) Classifier

var registry = map[string]builder{}

func register(kind string, b builder) {
	registry[kind] = b
}

// New 按配置构造模型，模型选择只发生在这一处
func New(cfg Config) (Classifier, error) {
	if cfg.Positive == "" || cfg.Negative == "" || cfg.Positive == cfg.Negative {
		return nil, fmt.Errorf("正负类标签配置无效: %q / %q", cfg.Positive, cfg.Negative)
	}
	b, ok := registry[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, cfg.Kind)
	}
	return b(cfg), nil
}

// Kinds 已注册的模型类型
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// checkTrainingSet 训练入口的公共校验
func checkTrainingSet(x [][]float64, y []string, positive, negative string) error {
	if len(x) == 0 || len(y) == 0 {
		return fmt.Errorf("训练集为空")
	}
	if len(x) != len(y) {
		return fmt.Errorf("特征 %d 行与标签 %d 行数量不一致", len(x), len(y))
	}

	width := len(x[0])
	if width == 0 {
		return fmt.Errorf("特征矩阵没有列")
	}
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("第 %d 行特征宽度 %d 与首行 %d 不一致", i, len(row), width)
		}
	}

	seenPos, seenNeg := false, false
	for i, label := range y {
		switch label {
		case positive:
			seenPos = true
		case negative:
			seenNeg = true
		default:
			return fmt.Errorf("第 %d 行标签 %q 不在 {%s, %s} 内", i, label, positive, negative)
		}
	}
	if !seenPos || !seenNeg {
		return ErrDegenerateFold
	}
	return nil
}
