// cleaner_test.go
package dataset

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"DelayPrediction/src/utils"
)

func TestDropIncompleteRows(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"1", "", "3", "4"}, series.String, "a"),
		series.New([]float64{10, 20, math.NaN(), 40}, series.Float, "b"),
	)

	out, dropped, err := DropIncompleteRows(df)
	if err != nil {
		t.Fatalf("DropIncompleteRows 出错: %v", err)
	}
	if dropped != 2 {
		t.Errorf("删除 %d 行, 期望 2", dropped)
	}
	if out.Nrow() != 2 {
		t.Errorf("剩余 %d 行, 期望 2", out.Nrow())
	}
	got := out.Col("a").Records()
	if got[0] != "1" || got[1] != "4" {
		t.Errorf("剩余行 = %v, 期望 [1 4]", got)
	}
}

// 指定列时只看指定列的缺失
func TestDropIncompleteRowsSubsetColumns(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"1", "2"}, series.String, "key"),
		series.New([]string{"", "x"}, series.String, "other"),
	)

	out, dropped, err := DropIncompleteRows(df, "key")
	if err != nil {
		t.Fatalf("DropIncompleteRows 出错: %v", err)
	}
	if dropped != 0 || out.Nrow() != 2 {
		t.Errorf("只看key列时不应删行, 实际删了 %d 行", dropped)
	}
}

func TestGuardRowLoss(t *testing.T) {
	if err := GuardRowLoss(1, 100, 0.01); err != nil {
		t.Errorf("1%%损失不超过上限, 不应报错: %v", err)
	}
	err := GuardRowLoss(2, 100, 0.01)
	if err == nil {
		t.Fatal("2%损失超过1%上限, 应报错")
	}
	if !errors.Is(err, ErrExcessiveRowLoss) {
		t.Errorf("错误应能匹配 ErrExcessiveRowLoss, 实际 %v", err)
	}
	if err := GuardRowLoss(0, 0, 0.01); err == nil {
		t.Error("空表应报错")
	}
}

func TestDropSparseColumns(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"1", "2", "3", "4"}, series.String, "keep"),
		series.New([]string{"", "", "", "9"}, series.String, "gust"),
		series.New([]string{"", "", "", ""}, series.String, "hour"),
	)

	out, dropped, err := DropSparseColumns(df, 0.5, []string{"hour"})
	if err != nil {
		t.Fatalf("DropSparseColumns 出错: %v", err)
	}
	if len(dropped) != 1 || dropped[0] != "gust" {
		t.Errorf("删除列 = %v, 期望 [gust]", dropped)
	}
	if !utils.HasColumn(out, "hour") {
		t.Error("skip中的列不应被删")
	}
	if utils.HasColumn(out, "gust") {
		t.Error("缺失过半的列应被删")
	}
}

func TestImputeMedian(t *testing.T) {
	df := dataframe.New(
		series.New([]float64{1, math.NaN(), 3, math.NaN(), 10}, series.Float, "temp"),
		series.New([]string{"1", "2", "3", "4", "5"}, series.String, "hour"),
	)

	out, medians, err := ImputeMedian(df, []string{"hour"})
	if err != nil {
		t.Fatalf("ImputeMedian 出错: %v", err)
	}
	if medians["temp"] != 3 {
		t.Errorf("中位数 = %v, 期望 3", medians["temp"])
	}
	got := out.Col("temp").Float()
	want := []float64{1, 3, 3, 3, 10}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("第 %d 行 = %v, 期望 %v", i, got[i], want[i])
		}
	}
}

func TestImputeMedianAllMissing(t *testing.T) {
	df := dataframe.New(
		series.New([]float64{math.NaN(), math.NaN()}, series.Float, "temp"),
	)
	if _, _, err := ImputeMedian(df, nil); err == nil {
		t.Fatal("整列皆缺失时无中位数可用, 应报错")
	}
}

func TestDropConstantColumns(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"2013", "2013", "2013"}, series.String, "year"),
		series.New([]string{"5", "", "5"}, series.String, "visib"),
		series.New([]string{"1", "2", "3"}, series.String, "day"),
	)

	out, dropped, err := DropConstantColumns(df, []string{"day"})
	if err != nil {
		t.Fatalf("DropConstantColumns 出错: %v", err)
	}
	if len(dropped) != 2 {
		t.Fatalf("删除列 = %v, 期望 [year visib]", dropped)
	}
	if utils.HasColumn(out, "year") || utils.HasColumn(out, "visib") {
		t.Error("单一取值的列应被删, 缺失不影响判定")
	}
	if !utils.HasColumn(out, "day") {
		t.Error("day列取值不止一个, 不应被删")
	}
}

func TestDropIdentifierColumns(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"N14228", "N24211", "N39463"}, series.String, "tailnum"),
		series.New([]string{"UA", "UA", "AA"}, series.String, "carrier"),
		series.New([]string{"1", "2", "3"}, series.String, "day"),
	)

	out, dropped, err := DropIdentifierColumns(df, []string{"carrier"}, []string{"day"})
	if err != nil {
		t.Fatalf("DropIdentifierColumns 出错: %v", err)
	}
	if len(dropped) != 2 {
		t.Fatalf("删除列 = %v, 期望 [tailnum carrier]", dropped)
	}
	// carrier按配置点名删, tailnum按"非数值且每行取值都不同"自动删
	if utils.HasColumn(out, "tailnum") || utils.HasColumn(out, "carrier") {
		t.Error("标识列应被删")
	}
	// day每行取值也都不同, 但它是数值列, 自动规则不碰它
	if !utils.HasColumn(out, "day") {
		t.Error("数值列不应被自动规则误删")
	}
}

func TestDropLowVarianceColumns(t *testing.T) {
	df := dataframe.New(
		series.New([]float64{0, 1000, 0, 1000}, series.Float, "pressure"),
		series.New([]float64{1, 1.001, 1, 1.001}, series.Float, "visib"),
		series.New([]float64{1, 1.001, 1, 1.001}, series.Float, "hour"),
	)

	out, dropped, err := DropLowVarianceColumns(df, 1e-3, []string{"hour"})
	if err != nil {
		t.Fatalf("DropLowVarianceColumns 出错: %v", err)
	}
	if len(dropped) != 1 || dropped[0] != "visib" {
		t.Errorf("删除列 = %v, 期望 [visib]", dropped)
	}
	if !utils.HasColumn(out, "pressure") || !utils.HasColumn(out, "hour") {
		t.Error("峰值列与skip列都不应被删")
	}
}

// 所有列方差都为零时没有峰值可比, 不删任何列
func TestDropLowVarianceColumnsAllConstant(t *testing.T) {
	df := dataframe.New(
		series.New([]float64{1, 1}, series.Float, "a"),
		series.New([]float64{2, 2}, series.Float, "b"),
	)
	out, dropped, err := DropLowVarianceColumns(df, 1e-3, nil)
	if err != nil {
		t.Fatalf("DropLowVarianceColumns 出错: %v", err)
	}
	if len(dropped) != 0 || out.Ncol() != 2 {
		t.Errorf("不应删列, 实际删除 %v", dropped)
	}
}

func TestEnsureComplete(t *testing.T) {
	ok := dataframe.New(
		series.New([]string{"1", "2"}, series.String, "a"),
	)
	if err := EnsureComplete(ok); err != nil {
		t.Errorf("完整表不应报错: %v", err)
	}

	bad := dataframe.New(
		series.New([]string{"1", ""}, series.String, "a"),
	)
	err := EnsureComplete(bad)
	if err == nil {
		t.Fatal("残留缺失应报错")
	}
	if !errors.Is(err, ErrUnhandledMissing) {
		t.Errorf("错误应能匹配 ErrUnhandledMissing, 实际 %v", err)
	}
}
