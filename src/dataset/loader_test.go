// loader_test.go
package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/encoding/simplifiedchinese"

	"DelayPrediction/src/config"
)

func TestSelectNamed(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"1", "2"}, series.String, "MONTH"),
		series.New([]string{"613", "1345"}, series.String, "SCHED_DEP"),
		series.New([]string{"x", "y"}, series.String, "EXTRA"),
	)
	schema := &config.TableSchema{
		Columns: map[string]string{
			"month":    "MONTH",
			"dep_time": "SCHED_DEP",
		},
	}

	out, err := SelectNamed(df, schema)
	if err != nil {
		t.Fatalf("SelectNamed 出错: %v", err)
	}
	// 规范名按字典序排列
	if strings.Join(out.Names(), ",") != "dep_time,month" {
		t.Errorf("列 = %v, 期望 [dep_time month]", out.Names())
	}
	if got := out.Col("month").Records()[1]; got != "2" {
		t.Errorf("month第1行 = %q, 期望 2", got)
	}
	if got := out.Col("dep_time").Records()[0]; got != "613" {
		t.Errorf("dep_time第0行 = %q, 期望 613", got)
	}
}

func TestSelectNamedMissingHeader(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"1"}, series.String, "MONTH"),
	)
	schema := &config.TableSchema{
		Columns: map[string]string{
			"month": "MONTH",
			"day":   "DAY",
		},
	}

	_, err := SelectNamed(df, schema)
	if err == nil {
		t.Fatal("表头缺列应报错")
	}
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("错误应能匹配 ErrSchemaMismatch, 实际 %v", err)
	}
	if !strings.Contains(err.Error(), "DAY") {
		t.Errorf("错误信息应点名缺的列, 实际 %q", err.Error())
	}
}

func TestSelectNamedEmptySchema(t *testing.T) {
	df := dataframe.New(series.New([]string{"1"}, series.String, "a"))
	if _, err := SelectNamed(df, &config.TableSchema{}); err == nil {
		t.Fatal("空列配置应报错")
	}
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flights.csv")
	content := "MONTH,SCHED_DEP,NOTE\n1,613,a\n2,1345,b\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写测试文件失败: %v", err)
	}

	schema := &config.TableSchema{
		Columns: map[string]string{
			"month":    "MONTH",
			"dep_time": "SCHED_DEP",
		},
	}

	df, err := LoadCSV(path, schema)
	if err != nil {
		t.Fatalf("LoadCSV 出错: %v", err)
	}
	if df.Nrow() != 2 || df.Ncol() != 2 {
		t.Fatalf("形状 %dx%d, 期望 2x2", df.Nrow(), df.Ncol())
	}
	if got := df.Col("dep_time").Records()[1]; got != "1345" {
		t.Errorf("dep_time第1行 = %q, 期望 1345", got)
	}
}

// GBK编码的表头转码后按名字选列
func TestLoadCSVGBK(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flights_gbk.csv")

	utf8Content := "月份,计划起飞\n1,613\n"
	gbkContent, err := simplifiedchinese.GBK.NewEncoder().String(utf8Content)
	if err != nil {
		t.Fatalf("GBK编码失败: %v", err)
	}
	if err := os.WriteFile(path, []byte(gbkContent), 0644); err != nil {
		t.Fatalf("写测试文件失败: %v", err)
	}

	schema := &config.TableSchema{
		Columns: map[string]string{
			"month":    "月份",
			"dep_time": "计划起飞",
		},
		GBK: true,
	}

	df, err := LoadCSV(path, schema)
	if err != nil {
		t.Fatalf("LoadCSV 出错: %v", err)
	}
	if got := df.Col("dep_time").Records()[0]; got != "613" {
		t.Errorf("dep_time第0行 = %q, 期望 613", got)
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	schema := &config.TableSchema{Columns: map[string]string{"a": "a"}}
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"), schema); err == nil {
		t.Fatal("文件不存在应报错")
	}
}

func TestRequireColumns(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"1"}, series.String, "month"),
	)
	if err := RequireColumns(df, "month"); err != nil {
		t.Errorf("列齐全不应报错: %v", err)
	}
	err := RequireColumns(df, "month", "day", "hour")
	if err == nil {
		t.Fatal("缺列应报错")
	}
	if !strings.Contains(err.Error(), "day") || !strings.Contains(err.Error(), "hour") {
		t.Errorf("错误信息应点名全部缺列, 实际 %q", err.Error())
	}
}
