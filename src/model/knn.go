// knn.go
package model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

func init() {
	register(KindKNN, func(cfg Config) Classifier { return NewKNN(cfg) })
}

// KNN 距离分类器
// 训练只是记住标准化后的样本，预测时取欧氏距离最近的k个做多数表决
type KNN struct {
	cfg    Config
	scaler *Scaler
	x      [][]float64
	y      []string
	k      int
	fitted bool
}

func NewKNN(cfg Config) *KNN {
	return &KNN{cfg: cfg}
}

func (m *KNN) Name() string { return KindKNN }

// Fit 记录训练样本并拟合中心化缩放参数
// k未配置时取round(sqrt(n))，偶数加一变奇数，表决不出平局
func (m *KNN) Fit(x [][]float64, y []string) error {
	if err := checkTrainingSet(x, y, m.cfg.Positive, m.cfg.Negative); err != nil {
		return err
	}

	scaler, err := FitScaler(x)
	if err != nil {
		return err
	}

	k := m.cfg.K
	if k <= 0 {
		k = int(math.Round(math.Sqrt(float64(len(x)))))
	}
	if k < 1 {
		k = 1
	}
	if k%2 == 0 {
		k++
	}
	if k > len(x) {
		k = len(x)
	}

	m.scaler = scaler
	m.x = scaler.Transform(x)
	m.y = append([]string(nil), y...)
	m.k = k
	m.fitted = true
	return nil
}

func (m *KNN) Predict(x [][]float64) ([]string, error) {
	probs, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(probs))
	for i, p := range probs {
		if p > 0.5 {
			out[i] = m.cfg.Positive
		} else {
			out[i] = m.cfg.Negative
		}
	}
	return out, nil
}

// PredictProba 正类概率取k个近邻中正类的占比
func (m *KNN) PredictProba(x [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}

	out := make([]float64, len(x))
	dist := make([]float64, len(m.x))
	idx := make([]int, len(m.x))

	for qi, row := range x {
		if len(row) != len(m.scaler.Mean) {
			return nil, fmt.Errorf("第 %d 行特征宽度 %d 与训练时 %d 不一致", qi, len(row), len(m.scaler.Mean))
		}
		z := m.scaler.TransformRow(row)

		for i, train := range m.x {
			dist[i] = floats.Distance(z, train, 2)
			idx[i] = i
		}
		sort.Slice(idx, func(a, b int) bool { return dist[idx[a]] < dist[idx[b]] })

		pos := 0
		for _, i := range idx[:m.k] {
			if m.y[i] == m.cfg.Positive {
				pos++
			}
		}
		out[qi] = float64(pos) / float64(m.k)
	}
	return out, nil
}

// K 实际生效的近邻数
func (m *KNN) K() (int, error) {
	if !m.fitted {
		return 0, ErrNotFitted
	}
	return m.k, nil
}
