// scale_test.go
package model

import (
	"math"
	"testing"
)

func TestFitScaler(t *testing.T) {
	x := [][]float64{
		{1, 10, 5},
		{2, 20, 5},
		{3, 30, 5},
	}

	s, err := FitScaler(x)
	if err != nil {
		t.Fatalf("FitScaler 出错: %v", err)
	}
	if s.Mean[0] != 2 || s.Mean[1] != 20 || s.Mean[2] != 5 {
		t.Errorf("Mean = %v, 期望 [2 20 5]", s.Mean)
	}
	// 常数列标准差按1处理, 缩放后恒为0
	if s.Std[2] != 1 {
		t.Errorf("常数列 Std = %v, 期望 1", s.Std[2])
	}

	z := s.Transform(x)
	for j := 0; j < 3; j++ {
		sum := 0.0
		for i := range z {
			sum += z[i][j]
		}
		if math.Abs(sum) > 1e-9 {
			t.Errorf("列 %d 变换后均值 %v, 期望 0", j, sum/float64(len(z)))
		}
	}
	if z[0][2] != 0 || z[1][2] != 0 {
		t.Errorf("常数列变换后应恒为0, 实际 %v %v", z[0][2], z[1][2])
	}
}

func TestScalerRoundTrip(t *testing.T) {
	x := [][]float64{
		{1.5, -3},
		{4.2, 8},
		{-0.7, 2},
	}
	s, err := FitScaler(x)
	if err != nil {
		t.Fatalf("FitScaler 出错: %v", err)
	}

	row := []float64{2.2, 5.1}
	back := s.InverseRow(s.TransformRow(row))
	for j := range row {
		if math.Abs(back[j]-row[j]) > 1e-9 {
			t.Errorf("往返第 %d 列 = %v, 期望 %v", j, back[j], row[j])
		}
	}
}

func TestFitScalerEmpty(t *testing.T) {
	if _, err := FitScaler(nil); err == nil {
		t.Error("空矩阵应报错")
	}
	if _, err := FitScaler([][]float64{{}}); err == nil {
		t.Error("没有列的矩阵应报错")
	}
}

// 单行训练集不能算标准差, 按1处理不产生NaN
func TestFitScalerSingleRow(t *testing.T) {
	s, err := FitScaler([][]float64{{3, 7}})
	if err != nil {
		t.Fatalf("FitScaler 出错: %v", err)
	}
	for j, sd := range s.Std {
		if sd != 1 {
			t.Errorf("列 %d Std = %v, 期望 1", j, sd)
		}
	}
	z := s.TransformRow([]float64{3, 7})
	for j, v := range z {
		if math.IsNaN(v) {
			t.Errorf("列 %d 变换出NaN", j)
		}
	}
}
