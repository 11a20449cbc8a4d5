// metrics.go
package evaluate

import (
	"fmt"
)

// ConfusionMatrix 二分类混淆矩阵
// 预测值等于正类计正，其余一律计负
type ConfusionMatrix struct {
	TP int // 真正：预测正、实际正
	FP int // 假正：预测正、实际负
	TN int // 真负：预测负、实际负
	FN int // 假负：预测负、实际正
}

// Confusion 由预测与真实标签构建混淆矩阵
func Confusion(pred, truth []string, positive string) (ConfusionMatrix, error) {
	var m ConfusionMatrix
	if len(pred) != len(truth) {
		return m, fmt.Errorf("预测 %d 条与真实 %d 条数量不一致", len(pred), len(truth))
	}
	if len(pred) == 0 {
		return m, fmt.Errorf("没有可评估的样本")
	}

	for i := range pred {
		predPos := pred[i] == positive
		truthPos := truth[i] == positive
		switch {
		case predPos && truthPos:
			m.TP++
		case predPos && !truthPos:
			m.FP++
		case !predPos && !truthPos:
			m.TN++
		default:
			m.FN++
		}
	}
	return m, nil
}

func (m ConfusionMatrix) Total() int {
	return m.TP + m.FP + m.TN + m.FN
}

// Metrics 四项常规指标
// 分母为零的项约定取0而不是NaN，报表里永远是可比较的数
type Metrics struct {
	Accuracy    float64 // (TP+TN)/total
	Precision   float64 // TP/(TP+FP)
	Sensitivity float64 // TP/(TP+FN)，召回
	Specificity float64 // TN/(TN+FP)
}

func (m ConfusionMatrix) Metrics() Metrics {
	return Metrics{
		Accuracy:    ratio(m.TP+m.TN, m.Total()),
		Precision:   ratio(m.TP, m.TP+m.FP),
		Sensitivity: ratio(m.TP, m.TP+m.FN),
		Specificity: ratio(m.TN, m.TN+m.FP),
	}
}

// Mean 四项指标的算术平均，阈值扫描用它做综合分
func (m Metrics) Mean() float64 {
	return (m.Accuracy + m.Precision + m.Sensitivity + m.Specificity) / 4
}

// ErrorRate 恒等于1-Accuracy
func (m Metrics) ErrorRate() float64 {
	return 1 - m.Accuracy
}

// ApplyThreshold 概率严格大于t判为正类
func ApplyThreshold(probs []float64, t float64, positive, negative string) []string {
	out := make([]string, len(probs))
	for i, p := range probs {
		if p > t {
			out[i] = positive
		} else {
			out[i] = negative
		}
	}
	return out
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
