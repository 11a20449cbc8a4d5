// joiner.go
package dataset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ErrEmptyJoin 联结结果为空，键值两边对不上
var ErrEmptyJoin = errors.New("联结结果为空")

// NormalizeKeys 统一键列的写法
// 同一个键在航班表里可能是"1"、在天气表里可能是"01"或"1.0"，
// 全部归一成十进制整数写法后才能做等值联结
func NormalizeKeys(df dataframe.DataFrame, keys []string) (dataframe.DataFrame, error) {
	if err := RequireColumns(df, keys...); err != nil {
		return df, err
	}

	for _, key := range keys {
		records := df.Col(key).Records()
		normalized := make([]string, len(records))
		for i, r := range records {
			v, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
			if err != nil {
				return df, fmt.Errorf("键列 %s 第 %d 行的值 %q 不是数值", key, i, r)
			}
			normalized[i] = strconv.Itoa(int(v))
		}
		df = df.Mutate(series.New(normalized, series.String, key))
		if df.Err != nil {
			return df, fmt.Errorf("归一键列 %s 失败: %w", key, df.Err)
		}
	}
	return df, nil
}

// JoinOnKeys 按键做内联结，联结后删除键列
// 返回值misses是没有匹配到天气记录的航班行数，
// 未匹配必须带着数字上报，不允许无声丢弃
func JoinOnKeys(flight, weather dataframe.DataFrame, keys []string) (dataframe.DataFrame, int, error) {
	if err := RequireColumns(flight, keys...); err != nil {
		return flight, 0, err
	}
	if err := RequireColumns(weather, keys...); err != nil {
		return weather, 0, err
	}

	// 先数未匹配，再做联结
	weatherKeys := make(map[string]struct{}, weather.Nrow())
	for _, k := range keyStrings(weather, keys) {
		weatherKeys[k] = struct{}{}
	}

	misses := 0
	for _, k := range keyStrings(flight, keys) {
		if _, ok := weatherKeys[k]; !ok {
			misses++
		}
	}

	joined := flight.InnerJoin(weather, keys...)
	if joined.Err != nil {
		return joined, misses, fmt.Errorf("内联结失败: %w", joined.Err)
	}
	if joined.Nrow() == 0 {
		return joined, misses, fmt.Errorf("%w: 航班 %d 行，天气 %d 行，未匹配 %d 行",
			ErrEmptyJoin, flight.Nrow(), weather.Nrow(), misses)
	}

	// 键的信息已经由查到的天气列承载，键列本身不再保留
	out := joined.Drop(keys)
	if out.Err != nil {
		return joined, misses, fmt.Errorf("删除键列失败: %w", out.Err)
	}

	return out, misses, nil
}

func keyStrings(df dataframe.DataFrame, keys []string) []string {
	cols := make([][]string, len(keys))
	for j, k := range keys {
		cols[j] = df.Col(k).Records()
	}

	out := make([]string, df.Nrow())
	parts := make([]string, len(keys))
	for i := range out {
		for j := range keys {
			parts[j] = cols[j][i]
		}
		out[i] = strings.Join(parts, "\x1f")
	}
	return out
}
