package utils

import (
	"path/filepath"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
)

func TestContains(t *testing.T) {
	if !Contains([]string{"a", "b"}, "b") {
		t.Error("Contains应当找到b")
	}
	if Contains([]string{"a", "b"}, "c") {
		t.Error("Contains不应找到c")
	}
	if Contains([]int{}, 1) {
		t.Error("空切片不应包含任何元素")
	}
}

func TestHasColumn(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"1"}, series.String, "month"),
		series.New([]string{"2"}, series.String, "day"),
	)

	if !HasColumn(df, "month") {
		t.Error("应当找到month列")
	}
	if HasColumn(df, "hour") {
		t.Error("不应找到hour列")
	}
}

func TestStageSeed(t *testing.T) {
	// 同种子同阶段必须稳定
	a := StageSeed(123, "balance")
	b := StageSeed(123, "balance")
	if a != b {
		t.Fatalf("同阶段子种子不稳定: %d / %d", a, b)
	}

	// 不同阶段必须互不相同
	c := StageSeed(123, "split")
	if a == c {
		t.Errorf("不同阶段的子种子相同: %d", a)
	}

	// 顶层种子变了子种子也要变
	d := StageSeed(124, "balance")
	if a == d {
		t.Errorf("不同顶层种子派生出相同子种子: %d", a)
	}
}

func TestSaveToExcel(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"1", "2"}, series.String, "month"),
		series.New([]float64{10.5, 20.25}, series.Float, "temp"),
	)

	path := filepath.Join(t.TempDir(), "out.xlsx")
	if err := SaveToExcel(df, path); err != nil {
		t.Fatalf("SaveToExcel失败: %v", err)
	}

	// 读回来核对表头和第一行
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		t.Fatalf("读回xlsx失败: %v", err)
	}
	sheet := wb.Sheets[0]
	if got := sheet.Rows[0].Cells[0].String(); got != "month" {
		t.Errorf("表头 = %q, 想要 month", got)
	}
	if got := sheet.Rows[1].Cells[0].String(); got != "1" {
		t.Errorf("首行month = %q, 想要 1", got)
	}
}
