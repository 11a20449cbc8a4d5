// features_test.go
package features

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

func TestSplitClock(t *testing.T) {
	cases := []struct {
		in     string
		hour   int
		minute int
	}{
		{"613", 6, 13},
		{"1345", 13, 45},
		{"5", 0, 5},      // 不足3位左侧补零
		{"45", 0, 45},    // 两位数全是分钟
		{"0", 0, 0},      // 午夜
		{"2400", 0, 0},   // 2400回绕到00:00
		{"613.0", 6, 13}, // Excel读出来常带小数点
		{" 930 ", 9, 30},
	}
	for _, c := range cases {
		h, m, err := SplitClock(c.in)
		if err != nil {
			t.Errorf("SplitClock(%q) 出错: %v", c.in, err)
			continue
		}
		if h != c.hour || m != c.minute {
			t.Errorf("SplitClock(%q) = %d:%d, 期望 %d:%d", c.in, h, m, c.hour, c.minute)
		}
	}
}

func TestSplitClockBad(t *testing.T) {
	for _, in := range []string{"", "abc", "-5", "2401", "1360", "613.5"} {
		if _, _, err := SplitClock(in); err == nil {
			t.Errorf("SplitClock(%q) 应报错", in)
		} else if !errors.Is(err, ErrBadClock) {
			t.Errorf("SplitClock(%q) 的错误应能匹配 ErrBadClock, 实际 %v", in, err)
		}
	}
}

func TestMinutesOfDay(t *testing.T) {
	if got := MinutesOfDay(6, 13); got != 373 {
		t.Errorf("MinutesOfDay(6,13) = %d, 期望 373", got)
	}
	if got := MinutesOfDay(0, 0); got != 0 {
		t.Errorf("MinutesOfDay(0,0) = %d, 期望 0", got)
	}
}

func TestAddClockSplit(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"613", "1345", "5"}, series.String, "dep_time"),
	)

	out, err := AddClockSplit(df, "dep_time", "hour", "minute")
	if err != nil {
		t.Fatalf("AddClockSplit 出错: %v", err)
	}

	hours := out.Col("hour").Records()
	minutes := out.Col("minute").Records()
	wantH := []string{"6", "13", "0"}
	wantM := []string{"13", "45", "5"}
	for i := range wantH {
		if hours[i] != wantH[i] || minutes[i] != wantM[i] {
			t.Errorf("第 %d 行拆出 %s:%s, 期望 %s:%s", i, hours[i], minutes[i], wantH[i], wantM[i])
		}
	}
}

func TestAddClockSplitBadValue(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"613", "1399"}, series.String, "dep_time"),
	)
	if _, err := AddClockSplit(df, "dep_time", "hour", "minute"); err == nil {
		t.Fatal("脏时刻应报错而不是静默跳过")
	}
}

func TestAddDuration(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"600", "2330", "1000"}, series.String, "dep_time"),
		series.New([]string{"730", "30", "930"}, series.String, "arr_time"),
	)

	out, err := AddDuration(df, "dep_time", "arr_time", "duration")
	if err != nil {
		t.Fatalf("AddDuration 出错: %v", err)
	}

	got := out.Col("duration").Float()
	// 06:00->07:30 是90分钟；23:30->00:30 跨天是60分钟；10:00->09:30 当作跨天23.5小时
	want := []float64{90, 60, 1410}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("第 %d 行时长 = %v, 期望 %v", i, got[i], want[i])
		}
	}
}

func TestLabelDelay(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"12", "0", "-3", "Delay", "Not Delay"}, series.String, "arr_delay"),
	)

	out, err := LabelDelay(df, "arr_delay", "Delay", "Not Delay")
	if err != nil {
		t.Fatalf("LabelDelay 出错: %v", err)
	}

	got := out.Col("arr_delay").Records()
	want := []string{"Delay", "Not Delay", "Not Delay", "Delay", "Not Delay"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("第 %d 行标签 = %q, 期望 %q", i, got[i], want[i])
		}
	}
}

func TestLabelDelayBadValue(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"12", "maybe"}, series.String, "arr_delay"),
	)
	if _, err := LabelDelay(df, "arr_delay", "Delay", "Not Delay"); err == nil {
		t.Fatal("既非类别又非数值的目标值应报错")
	}
}

func TestBuildMatrix(t *testing.T) {
	df := dataframe.New(
		series.New([]float64{1, 2, 3}, series.Float, "a"),
		series.New([]float64{4, 5, 6}, series.Float, "b"),
		series.New([]string{"Delay", "Not Delay", "Delay"}, series.String, "arr_delay"),
	)

	names, x, y, err := BuildMatrix(df, "arr_delay")
	if err != nil {
		t.Fatalf("BuildMatrix 出错: %v", err)
	}
	if strings.Join(names, ",") != "a,b" {
		t.Errorf("特征名 = %v, 期望 [a b]", names)
	}
	if len(x) != 3 || len(x[0]) != 2 {
		t.Fatalf("矩阵形状 %dx%d, 期望 3x2", len(x), len(x[0]))
	}
	if x[1][0] != 2 || x[1][1] != 5 {
		t.Errorf("第1行 = %v, 期望 [2 5]", x[1])
	}
	if y[0] != "Delay" || y[1] != "Not Delay" {
		t.Errorf("标签 = %v", y)
	}
}

func TestBuildMatrixNonNumeric(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"x", "y"}, series.String, "a"),
		series.New([]string{"Delay", "Not Delay"}, series.String, "arr_delay"),
	)
	if _, _, _, err := BuildMatrix(df, "arr_delay"); err == nil {
		t.Fatal("非数值特征应报错")
	}
}

func TestBuildMatrixNoFeatures(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"Delay"}, series.String, "arr_delay"),
	)
	if _, _, _, err := BuildMatrix(df, "arr_delay"); err == nil {
		t.Fatal("只剩目标列时应报错")
	}
}
