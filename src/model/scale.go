// scale.go
package model

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Scaler 记录训练集每列的均值与标准差
// 验证集必须用训练集的参数做同一变换，不能各算各的
type Scaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler 在训练矩阵上求各列的中心化缩放参数
// 常数列标准差为0，按1处理(该列缩放后恒为0)
func FitScaler(x [][]float64) (*Scaler, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return nil, fmt.Errorf("空矩阵无法拟合缩放参数")
	}

	d := len(x[0])
	s := &Scaler{
		Mean: make([]float64, d),
		Std:  make([]float64, d),
	}

	col := make([]float64, len(x))
	for j := 0; j < d; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		s.Mean[j] = stat.Mean(col, nil)
		sd := stat.StdDev(col, nil)
		if sd == 0 || len(x) < 2 {
			sd = 1
		}
		s.Std[j] = sd
	}
	return s, nil
}

// Transform 整矩阵变换，返回新矩阵
func (s *Scaler) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = s.TransformRow(row)
	}
	return out
}

// TransformRow 单行变换
func (s *Scaler) TransformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

// InverseRow 把标准化空间的点换回原始量纲
func (s *Scaler) InverseRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*s.Std[j] + s.Mean[j]
	}
	return out
}
