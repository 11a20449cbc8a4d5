// loader.go
package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"DelayPrediction/src/config"
	"DelayPrediction/src/datasource/file"
)

// ErrSchemaMismatch 输入表的表头对不上列配置
// 列一律按名字选取，位置变了不受影响，名字对不上立刻失败
var ErrSchemaMismatch = errors.New("表头与列配置不一致")

// LoadCSV 读取CSV文件并按列配置选出规范列
// schema.GBK为真时先做GBK到UTF-8转码，航司导出的报表常带GBK编码
func LoadCSV(path string, schema *config.TableSchema) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.New(), fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if schema.GBK {
		r = transform.NewReader(f, simplifiedchinese.GBK.NewDecoder())
	}

	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{"", "NA", "NaN", "null"}),
	)
	if df.Err != nil {
		return df, fmt.Errorf("解析CSV失败 %s: %w", path, df.Err)
	}

	return SelectNamed(df, schema)
}

// LoadXLSX 读取xlsx工作表并按列配置选出规范列
func LoadXLSX(path, sheetName string, headerRow int, schema *config.TableSchema) (dataframe.DataFrame, error) {
	df, err := file.ReadXLSX(path, sheetName, headerRow)
	if err != nil {
		return df, err
	}
	return SelectNamed(df, schema)
}

// SelectNamed 按列配置选列并把表头改成规范名
// 规范名按字典序排列，保证同一配置下列顺序稳定
func SelectNamed(df dataframe.DataFrame, schema *config.TableSchema) (dataframe.DataFrame, error) {
	if len(schema.Columns) == 0 {
		return df, fmt.Errorf("%w: 列配置为空", ErrSchemaMismatch)
	}

	canonical := make([]string, 0, len(schema.Columns))
	for name := range schema.Columns {
		canonical = append(canonical, name)
	}
	sort.Strings(canonical)

	var missing []string
	actual := make([]string, 0, len(canonical))
	for _, name := range canonical {
		header := schema.Columns[name]
		if !hasColumn(df, header) {
			missing = append(missing, header)
			continue
		}
		actual = append(actual, header)
	}
	if len(missing) > 0 {
		return df, fmt.Errorf("%w: 缺少列 [%s]", ErrSchemaMismatch, strings.Join(missing, ", "))
	}

	out := df.Select(actual)
	if out.Err != nil {
		return out, fmt.Errorf("选列失败: %w", out.Err)
	}

	for _, name := range canonical {
		header := schema.Columns[name]
		if header == name {
			continue
		}
		out = out.Rename(name, header)
		if out.Err != nil {
			return out, fmt.Errorf("重命名列 %s 失败: %w", header, out.Err)
		}
	}

	return out, nil
}

// RequireColumns 阶段入口的表头校验，缺列立刻失败
func RequireColumns(df dataframe.DataFrame, cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !hasColumn(df, c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: 缺少列 [%s]", ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return nil
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}
