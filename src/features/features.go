// features.go
package features

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"DelayPrediction/src/dataset"
)

// ErrBadClock 打包时刻字段无法解析或越界
var ErrBadClock = errors.New("时刻字段无法解析")

// SplitClock 把HMM/HHMM形式的打包整数时刻拆成小时和分钟
// 3位数首位是小时，4位数前两位是小时，其余是分钟
// 不足3位按左侧补零处理：5代表00:05
// 2400按午夜回绕到00:00，小时或分钟越界视为脏数据报错
func SplitClock(v string) (hour, minute int, err error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return 0, 0, fmt.Errorf("%w: 空值", ErrBadClock)
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, 0, fmt.Errorf("%w: %q", ErrBadClock, v)
		}
		n = int(f)
	}

	if n < 0 || n > 2400 {
		return 0, 0, fmt.Errorf("%w: %d 超出 [0, 2400]", ErrBadClock, n)
	}
	if n == 2400 {
		return 0, 0, nil
	}

	hour = n / 100
	minute = n % 100
	if minute > 59 {
		return 0, 0, fmt.Errorf("%w: %d 的分钟位是 %d", ErrBadClock, n, minute)
	}
	return hour, minute, nil
}

// MinutesOfDay 时刻换算成当日第几分钟
func MinutesOfDay(hour, minute int) int {
	return hour*60 + minute
}

// AddClockSplit 把col列的打包时刻拆成两列(小时、分钟)追加到表上
// 拆出的列保持字符串整数写法，小时列可直接当联结键用
func AddClockSplit(df dataframe.DataFrame, col, hourName, minuteName string) (dataframe.DataFrame, error) {
	if err := dataset.RequireColumns(df, col); err != nil {
		return df, err
	}

	records := df.Col(col).Records()
	hours := make([]string, len(records))
	minutes := make([]string, len(records))
	for i, r := range records {
		h, m, err := SplitClock(r)
		if err != nil {
			return df, fmt.Errorf("列 %s 第 %d 行: %w", col, i, err)
		}
		hours[i] = strconv.Itoa(h)
		minutes[i] = strconv.Itoa(m)
	}

	df = df.Mutate(series.New(hours, series.String, hourName))
	if df.Err != nil {
		return df, fmt.Errorf("追加列 %s 失败: %w", hourName, df.Err)
	}
	df = df.Mutate(series.New(minutes, series.String, minuteName))
	if df.Err != nil {
		return df, fmt.Errorf("追加列 %s 失败: %w", minuteName, df.Err)
	}
	return df, nil
}

// AddDuration 由计划起飞和计划到达两个打包时刻算出计划飞行时长(分钟)
// 差值为负说明跨天到达，加一天回正；该规则在测试里钉死
func AddDuration(df dataframe.DataFrame, depCol, arrCol, name string) (dataframe.DataFrame, error) {
	if err := dataset.RequireColumns(df, depCol, arrCol); err != nil {
		return df, err
	}

	depRecords := df.Col(depCol).Records()
	arrRecords := df.Col(arrCol).Records()
	durations := make([]float64, len(depRecords))

	for i := range depRecords {
		dh, dm, err := SplitClock(depRecords[i])
		if err != nil {
			return df, fmt.Errorf("列 %s 第 %d 行: %w", depCol, i, err)
		}
		ah, am, err := SplitClock(arrRecords[i])
		if err != nil {
			return df, fmt.Errorf("列 %s 第 %d 行: %w", arrCol, i, err)
		}

		d := MinutesOfDay(ah, am) - MinutesOfDay(dh, dm)
		if d < 0 {
			d += 24 * 60
		}
		durations[i] = float64(d)
	}

	df = df.Mutate(series.New(durations, series.Float, name))
	if df.Err != nil {
		return df, fmt.Errorf("追加列 %s 失败: %w", name, df.Err)
	}
	return df, nil
}

// LabelDelay 把目标列统一成两级类别
// 数值按"到达延误大于0分钟算延误"折算，已经是类别值的原样保留，
// 其他取值视为脏数据报错
func LabelDelay(df dataframe.DataFrame, col, positive, negative string) (dataframe.DataFrame, error) {
	if err := dataset.RequireColumns(df, col); err != nil {
		return df, err
	}

	records := df.Col(col).Records()
	labels := make([]string, len(records))
	for i, r := range records {
		s := strings.TrimSpace(r)
		switch s {
		case positive, negative:
			labels[i] = s
			continue
		}

		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return df, fmt.Errorf("目标列 %s 第 %d 行的值 %q 既不是类别也不是数值", col, i, r)
		}
		if v > 0 {
			labels[i] = positive
		} else {
			labels[i] = negative
		}
	}

	df = df.Mutate(series.New(labels, series.String, col))
	if df.Err != nil {
		return df, fmt.Errorf("改写目标列 %s 失败: %w", col, df.Err)
	}
	return df, nil
}

// BuildMatrix 把表拆成特征矩阵和标签向量
// 除目标列外所有列都进矩阵，列序与表序一致
func BuildMatrix(df dataframe.DataFrame, target string) (names []string, x [][]float64, y []string, err error) {
	if err := dataset.RequireColumns(df, target); err != nil {
		return nil, nil, nil, err
	}

	for _, n := range df.Names() {
		if n != target {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, nil, nil, fmt.Errorf("除目标列 %s 外没有特征列", target)
	}

	nrow := df.Nrow()
	cols := make([][]float64, len(names))
	for j, n := range names {
		vals := df.Col(n).Float()
		for i, v := range vals {
			if math.IsNaN(v) {
				return nil, nil, nil, fmt.Errorf("列 %s 第 %d 行不是数值", n, i)
			}
		}
		cols[j] = vals
	}

	x = make([][]float64, nrow)
	for i := 0; i < nrow; i++ {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = cols[j][i]
		}
		x[i] = row
	}

	y = df.Col(target).Records()
	return names, x, y, nil
}
