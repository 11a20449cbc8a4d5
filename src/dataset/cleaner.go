// cleaner.go
package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"

	"DelayPrediction/src/utils"
)

var (
	// ErrExcessiveRowLoss 整行删除策略只在缺失占比很小时才说得通，
	// 超过允许比例宁可失败也不能悄悄扔掉大量样本
	ErrExcessiveRowLoss = errors.New("整行删除损失超过允许比例")

	// ErrUnhandledMissing 进模型前仍有缺失值，说明有列没分到清洗策略
	ErrUnhandledMissing = errors.New("存在未处理的缺失值")
)

// missing 沿用同一套缺失判定：NA或空白
func missing(el series.Element) bool {
	return el.IsNA() || strings.TrimSpace(el.String()) == ""
}

// DropIncompleteRows 策略A：给定列(缺省为全部列)中任一缺失即整行删除
// 返回删除的行数
func DropIncompleteRows(df dataframe.DataFrame, cols ...string) (dataframe.DataFrame, int, error) {
	if len(cols) == 0 {
		cols = df.Names()
	}
	if err := RequireColumns(df, cols...); err != nil {
		return df, 0, err
	}

	colSeries := make([]series.Series, len(cols))
	for i, c := range cols {
		colSeries[i] = df.Col(c)
	}

	keep := make([]int, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		complete := true
		for _, s := range colSeries {
			if missing(s.Elem(i)) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}

	dropped := df.Nrow() - len(keep)
	if dropped == 0 {
		return df, 0, nil
	}

	out := df.Subset(keep)
	if out.Err != nil {
		return df, 0, fmt.Errorf("删行失败: %w", out.Err)
	}
	return out, dropped, nil
}

// GuardRowLoss 整行删除的损失超过maxLoss比例时报错
func GuardRowLoss(dropped, total int, maxLoss float64) error {
	if total <= 0 {
		return fmt.Errorf("%w: 输入表为空", ErrExcessiveRowLoss)
	}
	loss := float64(dropped) / float64(total)
	if loss > maxLoss {
		return fmt.Errorf("%w: 删除 %d/%d 行(%.2f%%)，允许上限 %.2f%%",
			ErrExcessiveRowLoss, dropped, total, loss*100, maxLoss*100)
	}
	return nil
}

// DropSparseColumns 策略B第一步：缺失比例超过cutoff的列整列删除
// skip中的列(联结键、目标列)不参与
func DropSparseColumns(df dataframe.DataFrame, cutoff float64, skip []string) (dataframe.DataFrame, []string, error) {
	var dropped []string
	n := df.Nrow()
	if n == 0 {
		return df, nil, nil
	}

	for _, name := range df.Names() {
		if utils.Contains(skip, name) {
			continue
		}
		s := df.Col(name)
		nMissing := 0
		for i := 0; i < n; i++ {
			if missing(s.Elem(i)) {
				nMissing++
			}
		}
		if float64(nMissing)/float64(n) > cutoff {
			dropped = append(dropped, name)
		}
	}

	if len(dropped) == 0 {
		return df, nil, nil
	}
	if len(dropped) == df.Ncol() {
		return df, dropped, fmt.Errorf("所有列缺失比例都超过 %.0f%%，数据不可用", cutoff*100)
	}

	out := df.Drop(dropped)
	if out.Err != nil {
		return df, dropped, fmt.Errorf("删列失败: %w", out.Err)
	}
	return out, dropped, nil
}

// ImputeMedian 策略B第二步：剩余缺失用该列中位数填充
// 天气数据按小时采样，删行会造成时间缺口，填充能保住联结所需的行
// 返回各列使用的中位数
func ImputeMedian(df dataframe.DataFrame, skip []string) (dataframe.DataFrame, map[string]float64, error) {
	medians := make(map[string]float64)
	n := df.Nrow()

	for _, name := range df.Names() {
		if utils.Contains(skip, name) {
			continue
		}

		vals := df.Col(name).Float()
		present := make([]float64, 0, n)
		nMissing := 0
		for _, v := range vals {
			if math.IsNaN(v) {
				nMissing++
			} else {
				present = append(present, v)
			}
		}
		if nMissing == 0 {
			continue
		}
		if len(present) == 0 {
			return df, medians, fmt.Errorf("列 %s 没有可用数值，无法计算中位数", name)
		}

		sort.Float64s(present)
		med := stat.Quantile(0.5, stat.Empirical, present, nil)
		medians[name] = med

		filled := make([]float64, n)
		for i, v := range vals {
			if math.IsNaN(v) {
				filled[i] = med
			} else {
				filled[i] = v
			}
		}
		df = df.Mutate(series.New(filled, series.Float, name))
		if df.Err != nil {
			return df, medians, fmt.Errorf("填充列 %s 失败: %w", name, df.Err)
		}
	}

	return df, medians, nil
}

// DropConstantColumns 只有单一取值的列没有信息量，直接剔除
func DropConstantColumns(df dataframe.DataFrame, skip []string) (dataframe.DataFrame, []string, error) {
	var dropped []string
	n := df.Nrow()

	for _, name := range df.Names() {
		if utils.Contains(skip, name) {
			continue
		}
		s := df.Col(name)
		distinct := make(map[string]struct{})
		for i := 0; i < n; i++ {
			el := s.Elem(i)
			if missing(el) {
				continue
			}
			distinct[el.String()] = struct{}{}
			if len(distinct) > 1 {
				break
			}
		}
		if len(distinct) <= 1 {
			dropped = append(dropped, name)
		}
	}

	return dropColumns(df, dropped)
}

// DropIdentifierColumns 剔除编号类标识列
// configured是配置点名的列；此外每行取值都不同的非数值列
// (机尾号一类)按标识列自动处理
func DropIdentifierColumns(df dataframe.DataFrame, configured, skip []string) (dataframe.DataFrame, []string, error) {
	var dropped []string
	n := df.Nrow()

	for _, name := range df.Names() {
		if utils.Contains(skip, name) {
			continue
		}
		if utils.Contains(configured, name) {
			dropped = append(dropped, name)
			continue
		}
		if n < 2 {
			continue
		}

		s := df.Col(name)
		numeric := false
		distinct := make(map[string]struct{}, n)
		for i := 0; i < n; i++ {
			el := s.Elem(i)
			if missing(el) {
				continue
			}
			v := strings.TrimSpace(el.String())
			if _, err := strconv.ParseFloat(v, 64); err == nil {
				numeric = true
				break
			}
			distinct[v] = struct{}{}
		}
		if !numeric && len(distinct) == n {
			dropped = append(dropped, name)
		}
	}

	return dropColumns(df, dropped)
}

// DropLowVarianceColumns 剔除方差相对同表峰值列低于cutoff的数值列
// 阈值是相对的：var(col) < cutoff * max(var)即剔除，
// 不用绝对阈值是因为各列量纲不同
func DropLowVarianceColumns(df dataframe.DataFrame, cutoff float64, skip []string) (dataframe.DataFrame, []string, error) {
	type colVar struct {
		name string
		v    float64
	}
	var variances []colVar
	maxVar := 0.0

	for _, name := range df.Names() {
		if utils.Contains(skip, name) {
			continue
		}
		vals := df.Col(name).Float()
		ok := true
		for _, v := range vals {
			if math.IsNaN(v) {
				ok = false
				break
			}
		}
		if !ok || len(vals) < 2 {
			continue
		}
		v := stat.Variance(vals, nil)
		variances = append(variances, colVar{name, v})
		if v > maxVar {
			maxVar = v
		}
	}

	if maxVar == 0 {
		return df, nil, nil
	}

	var dropped []string
	for _, cv := range variances {
		if cv.v < cutoff*maxVar {
			dropped = append(dropped, cv.name)
		}
	}

	return dropColumns(df, dropped)
}

// EnsureComplete 建模前的最后一道检查：任何残留缺失都视为策略缺口
func EnsureComplete(df dataframe.DataFrame) error {
	for _, name := range df.Names() {
		s := df.Col(name)
		for i := 0; i < df.Nrow(); i++ {
			if missing(s.Elem(i)) {
				return fmt.Errorf("%w: 列 %s 第 %d 行", ErrUnhandledMissing, name, i)
			}
		}
	}
	return nil
}

func dropColumns(df dataframe.DataFrame, names []string) (dataframe.DataFrame, []string, error) {
	if len(names) == 0 {
		return df, nil, nil
	}
	out := df.Drop(names)
	if out.Err != nil {
		return df, names, fmt.Errorf("删列失败: %w", out.Err)
	}
	return out, names, nil
}
