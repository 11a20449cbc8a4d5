// metrics_test.go
package evaluate

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestConfusion(t *testing.T) {
	pred := []string{"Delay", "Delay", "Delay", "Not Delay", "Not Delay", "Not Delay", "Not Delay"}
	truth := []string{"Delay", "Delay", "Not Delay", "Delay", "Not Delay", "Not Delay", "Not Delay"}

	m, err := Confusion(pred, truth, "Delay")
	if err != nil {
		t.Fatalf("Confusion 出错: %v", err)
	}
	if m.TP != 2 || m.FP != 1 || m.TN != 3 || m.FN != 1 {
		t.Fatalf("混淆矩阵不对: %+v", m)
	}
	if m.Total() != 7 {
		t.Errorf("Total = %d, 期望 7", m.Total())
	}

	mt := m.Metrics()
	if !almostEqual(mt.Accuracy, 5.0/7.0) {
		t.Errorf("Accuracy = %v, 期望 %v", mt.Accuracy, 5.0/7.0)
	}
	if !almostEqual(mt.Precision, 2.0/3.0) {
		t.Errorf("Precision = %v, 期望 %v", mt.Precision, 2.0/3.0)
	}
	if !almostEqual(mt.Sensitivity, 2.0/3.0) {
		t.Errorf("Sensitivity = %v, 期望 %v", mt.Sensitivity, 2.0/3.0)
	}
	if !almostEqual(mt.Specificity, 3.0/4.0) {
		t.Errorf("Specificity = %v, 期望 %v", mt.Specificity, 3.0/4.0)
	}
	if !almostEqual(mt.ErrorRate(), 1-mt.Accuracy) {
		t.Errorf("ErrorRate = %v, 应恒等于 1-Accuracy", mt.ErrorRate())
	}
}

func TestConfusionErrors(t *testing.T) {
	if _, err := Confusion([]string{"a"}, []string{"a", "b"}, "a"); err == nil {
		t.Error("长度不一致应报错")
	}
	if _, err := Confusion(nil, nil, "a"); err == nil {
		t.Error("空输入应报错")
	}
}

// 分母为零的指标取0，不是NaN
func TestMetricsZeroDenominator(t *testing.T) {
	// 没有任何正类预测：Precision 分母为零
	m := ConfusionMatrix{TP: 0, FP: 0, TN: 3, FN: 2}
	mt := m.Metrics()
	if mt.Precision != 0 {
		t.Errorf("无正类预测时 Precision = %v, 期望 0", mt.Precision)
	}

	// 没有任何实际正类：Sensitivity 分母为零
	m = ConfusionMatrix{TP: 0, FP: 2, TN: 3, FN: 0}
	mt = m.Metrics()
	if mt.Sensitivity != 0 {
		t.Errorf("无实际正类时 Sensitivity = %v, 期望 0", mt.Sensitivity)
	}

	// 没有任何实际负类：Specificity 分母为零
	m = ConfusionMatrix{TP: 4, FP: 0, TN: 0, FN: 1}
	mt = m.Metrics()
	if mt.Specificity != 0 {
		t.Errorf("无实际负类时 Specificity = %v, 期望 0", mt.Specificity)
	}

	for _, v := range []float64{mt.Accuracy, mt.Precision, mt.Sensitivity, mt.Specificity} {
		if math.IsNaN(v) {
			t.Fatalf("指标出现 NaN: %+v", mt)
		}
	}
}

func TestMetricsMean(t *testing.T) {
	mt := Metrics{Accuracy: 0.8, Precision: 0.6, Sensitivity: 0.4, Specificity: 0.2}
	if !almostEqual(mt.Mean(), 0.5) {
		t.Errorf("Mean = %v, 期望 0.5", mt.Mean())
	}
}

// 严格大于阈值才判正，等于阈值判负
func TestApplyThreshold(t *testing.T) {
	probs := []float64{0.2, 0.5, 0.50000001, 0.9}
	got := ApplyThreshold(probs, 0.5, "Delay", "Not Delay")
	want := []string{"Not Delay", "Not Delay", "Delay", "Delay"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("probs[%d]=%v: 判为 %s, 期望 %s", i, probs[i], got[i], want[i])
		}
	}
}
