// pipeline_test.go
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"DelayPrediction/src/config"
	"DelayPrediction/src/dataset"
	"DelayPrediction/src/model"
)

// 小流水线参数, 树和轮数都压到最小, 整条链路几秒内能跑完
func testPipelineConfig() *config.PipelineConfig {
	pcfg := &config.PipelineConfig{}
	pcfg.Seed = 123
	pcfg.TrainRatio = 0.7
	pcfg.MaxRowLoss = 0.01
	pcfg.SparseColCutoff = 0.5
	pcfg.VarianceCutoff = 1e-3
	pcfg.SweepStart = 0.30
	pcfg.SweepEnd = 0.70
	pcfg.SweepStep = 0.01
	pcfg.SweepModel = model.KindForest
	pcfg.Forest.Trees = 10
	pcfg.Forest.MinLeaf = 1
	pcfg.Forest.GridMtry = []int{1, 2}
	pcfg.Forest.GridTrees = []int{5}
	pcfg.Network.Hidden = []int{4}
	pcfg.Network.LearnRate = 0.01
	pcfg.Network.Epochs = 2
	pcfg.Network.BatchSize = 8
	pcfg.Explain.Perturbations = 50
	pcfg.Explain.TopFeatures = 3
	pcfg.Explain.Samples = 1
	pcfg.Target = "arr_delay"
	pcfg.Positive = "Delay"
	pcfg.Negative = "Not Delay"
	pcfg.JoinKeys = []string{"month", "day", "hour"}
	pcfg.Flight = config.TableSchema{Columns: map[string]string{
		"month":     "month",
		"day":       "day",
		"dep_time":  "dep_time",
		"arr_time":  "arr_time",
		"arr_delay": "arr_delay",
	}}
	pcfg.Weather = config.TableSchema{Columns: map[string]string{
		"month": "month",
		"day":   "day",
		"hour":  "hour",
		"temp":  "temp",
		"humid": "humid",
	}}
	return pcfg
}

// writeToyData 造一对能联上的小表
// 航班21行: 20行有对应天气, 1行(1月4日23时)查无天气
// 20行可联结航班里12行延误8行正点
func writeToyData(t *testing.T, dir string, delays []int) (flightPath, weatherPath string) {
	t.Helper()

	var fb strings.Builder
	fb.WriteString("month,day,dep_time,arr_time,arr_delay\n")
	i := 0
	for day := 1; day <= 4; day++ {
		for h := 6; h <= 10; h++ {
			m := (i * 7) % 30
			dep := h*100 + m
			arr := (h+1+(i%3))*100 + m + 15
			fmt.Fprintf(&fb, "1,%d,%d,%d,%d\n", day, dep, arr, delays[i])
			i++
		}
	}
	fb.WriteString("1,4,2305,2359,10\n")

	var wb strings.Builder
	wb.WriteString("month,day,hour,temp,humid\n")
	j := 0
	for day := 1; day <= 4; day++ {
		for h := 6; h <= 10; h++ {
			temp := fmt.Sprintf("%d", 30+j)
			if j == 3 {
				temp = "" // 缺一个温度, 走中位数填充
			}
			fmt.Fprintf(&wb, "1,%d,%d,%s,%d\n", day, h, temp, 50+(j*3)%20)
			j++
		}
	}
	// 两行没有任何航班的时段, 内联结自然忽略
	wb.WriteString("1,5,6,55,60\n")
	wb.WriteString("1,5,7,56,61\n")

	flightPath = filepath.Join(dir, "flights.csv")
	weatherPath = filepath.Join(dir, "weather.csv")
	if err := os.WriteFile(flightPath, []byte(fb.String()), 0644); err != nil {
		t.Fatalf("写航班表失败: %v", err)
	}
	if err := os.WriteFile(weatherPath, []byte(wb.String()), 0644); err != nil {
		t.Fatalf("写天气表失败: %v", err)
	}
	return flightPath, weatherPath
}

func mixedDelays() []int {
	// 12个正延误, 8个非正
	return []int{15, -3, 22, 0, 31, -8, 12, 0, 45, 9, -2, 18, 7, 0, 26, 11, -5, 33, 8, -1}
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	flightPath, weatherPath := writeToyData(t, dir, mixedDelays())

	runner := NewRunner(&config.Config{}, testPipelineConfig(), nil)
	res, err := runner.Run(flightPath, weatherPath)
	if err != nil {
		t.Fatalf("Run 出错: %v", err)
	}

	if res.FlightRaw != 21 {
		t.Errorf("FlightRaw = %d, 期望 21", res.FlightRaw)
	}
	if res.WeatherRaw != 22 {
		t.Errorf("WeatherRaw = %d, 期望 22", res.WeatherRaw)
	}
	if res.FlightDropped != 0 || res.PostJoinDropped != 0 {
		t.Errorf("完整数据不应删行: flight %d, post-join %d", res.FlightDropped, res.PostJoinDropped)
	}
	if res.JoinMisses != 1 {
		t.Errorf("JoinMisses = %d, 期望 1", res.JoinMisses)
	}
	if res.Joined != 20 {
		t.Errorf("Joined = %d, 期望 20", res.Joined)
	}
	if len(res.Medians) != 1 {
		t.Errorf("中位数填充 %v, 期望只有temp一列", res.Medians)
	}

	if res.ClassCounts["Delay"] != 12 || res.ClassCounts["Not Delay"] != 8 {
		t.Errorf("平衡前计数 = %v, 期望 Delay:12 Not Delay:8", res.ClassCounts)
	}
	if res.BalancedCounts["Delay"] != 12 || res.BalancedCounts["Not Delay"] != 12 {
		t.Errorf("平衡后计数 = %v, 期望两类各12", res.BalancedCounts)
	}
	if res.BalancedRows != 24 {
		t.Errorf("BalancedRows = %d, 期望 24", res.BalancedRows)
	}
	if res.TrainRows != 16 || res.ValRows != 8 {
		t.Errorf("拆分 %d/%d, 期望 16/8", res.TrainRows, res.ValRows)
	}

	// 键列联结后退场, 特征是航班侧的minute/duration加天气侧的temp/humid
	if len(res.Features) != 4 {
		t.Fatalf("特征 = %v, 期望 4 列", res.Features)
	}
	for _, want := range []string{"minute", "duration", "temp", "humid"} {
		found := false
		for _, f := range res.Features {
			if f == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("特征里缺 %s: %v", want, res.Features)
		}
	}

	if len(res.Models) != 3 {
		t.Fatalf("模型结果 %d 个, 期望 3", len(res.Models))
	}
	wantKinds := []string{model.KindKNN, model.KindForest, model.KindNetwork}
	for i, mr := range res.Models {
		if mr.Kind != wantKinds[i] {
			t.Errorf("第 %d 个模型 = %s, 期望 %s", i, mr.Kind, wantKinds[i])
		}
		for _, v := range []float64{mr.Metrics.Accuracy, mr.Metrics.Precision, mr.Metrics.Sensitivity, mr.Metrics.Specificity} {
			if v < 0 || v > 1 {
				t.Errorf("模型 %s 指标 %v 越界", mr.Kind, v)
			}
		}
		if mr.Confusion.Total() != res.ValRows {
			t.Errorf("模型 %s 混淆矩阵合计 %d, 期望 %d", mr.Kind, mr.Confusion.Total(), res.ValRows)
		}
	}
	// round(sqrt(16))=4, 偶数加一
	if res.Models[0].K != 5 {
		t.Errorf("KNN k = %d, 期望 5", res.Models[0].K)
	}
	if !res.Models[1].HasOOB {
		t.Error("森林应有袋外误差")
	}
	if len(res.Models[1].Importance) != 4 {
		t.Errorf("重要度 %d 项, 期望 4", len(res.Models[1].Importance))
	}
	if len(res.Models[2].LossHistory) != 2 {
		t.Errorf("损失记录 %d 条, 期望 2", len(res.Models[2].LossHistory))
	}

	if len(res.Grid) != 2 {
		t.Errorf("网格点 %d 个, 期望 2", len(res.Grid))
	}
	if res.BestMtry != 1 && res.BestMtry != 2 {
		t.Errorf("BestMtry = %d, 不在网格里", res.BestMtry)
	}
	if res.BestTrees != 5 {
		t.Errorf("BestTrees = %d, 期望 5", res.BestTrees)
	}

	if res.SweepModel != model.KindForest {
		t.Errorf("SweepModel = %s, 期望 forest", res.SweepModel)
	}
	if len(res.ValProbs) != res.ValRows || len(res.ValTruth) != res.ValRows {
		t.Errorf("验证集概率 %d 条标签 %d 条, 期望都是 %d", len(res.ValProbs), len(res.ValTruth), res.ValRows)
	}
	if len(res.Sweep) != 41 {
		t.Errorf("扫描点 %d 个, 期望 41", len(res.Sweep))
	}
	if res.BestThreshold.Threshold < 0.30 || res.BestThreshold.Threshold > 0.70 {
		t.Errorf("最优阈值 %v 越出扫描区间", res.BestThreshold.Threshold)
	}

	if len(res.Explained) != 1 {
		t.Fatalf("解释 %d 条, 期望 1", len(res.Explained))
	}
	ex := res.Explained[0]
	if ex.Row != 0 {
		t.Errorf("解释行号 = %d, 期望 0", ex.Row)
	}
	if ex.Truth != "Delay" && ex.Truth != "Not Delay" {
		t.Errorf("解释样本标签 = %q", ex.Truth)
	}
	if len(ex.Explanation.Contributions) == 0 || len(ex.Explanation.Contributions) > 3 {
		t.Errorf("贡献 %d 条, 期望 1..3", len(ex.Explanation.Contributions))
	}
	if ex.Explanation.R2 < 0 || ex.Explanation.R2 > 1 {
		t.Errorf("R2 = %v 越界", ex.Explanation.R2)
	}

	if res.FinishedAt.Before(res.StartedAt) {
		t.Error("结束时间早于开始时间")
	}
}

// 同一份输入同一个种子, 两次运行的数字完全一致
func TestRunDeterministic(t *testing.T) {
	dir := t.TempDir()
	flightPath, weatherPath := writeToyData(t, dir, mixedDelays())

	run := func() *Result {
		runner := NewRunner(&config.Config{}, testPipelineConfig(), nil)
		res, err := runner.Run(flightPath, weatherPath)
		if err != nil {
			t.Fatalf("Run 出错: %v", err)
		}
		return res
	}

	a, b := run(), run()
	if a.BestThreshold.Threshold != b.BestThreshold.Threshold {
		t.Errorf("两次最优阈值不同: %v vs %v", a.BestThreshold.Threshold, b.BestThreshold.Threshold)
	}
	for i := range a.Models {
		if a.Models[i].Metrics != b.Models[i].Metrics {
			t.Errorf("模型 %s 两次指标不同: %+v vs %+v", a.Models[i].Kind, a.Models[i].Metrics, b.Models[i].Metrics)
		}
	}
	if a.BestMtry != b.BestMtry || a.BestTrees != b.BestTrees {
		t.Errorf("两次网格选择不同: %d/%d vs %d/%d", a.BestMtry, a.BestTrees, b.BestMtry, b.BestTrees)
	}
}

// 表头对不上时在读数阶段就停, 错误带着阶段名
func TestRunSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	flightPath := filepath.Join(dir, "flights.csv")
	if err := os.WriteFile(flightPath, []byte("month,day\n1,2\n"), 0644); err != nil {
		t.Fatalf("写测试文件失败: %v", err)
	}

	runner := NewRunner(&config.Config{}, testPipelineConfig(), nil)
	_, err := runner.Run(flightPath, filepath.Join(dir, "weather.csv"))
	if err == nil {
		t.Fatal("缺列应报错")
	}

	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("错误应是 *StageError, 实际 %T", err)
	}
	if se.Stage != "load-flight" {
		t.Errorf("出错阶段 = %s, 期望 load-flight", se.Stage)
	}
	if !errors.Is(err, dataset.ErrSchemaMismatch) {
		t.Errorf("错误应能匹配 ErrSchemaMismatch, 实际 %v", err)
	}
}

// 全部样本同一类别时平衡阶段报错
func TestRunSingleClass(t *testing.T) {
	dir := t.TempDir()
	delays := make([]int, 20)
	for i := range delays {
		delays[i] = 10 + i // 全是延误
	}
	flightPath, weatherPath := writeToyData(t, dir, delays)

	runner := NewRunner(&config.Config{}, testPipelineConfig(), nil)
	_, err := runner.Run(flightPath, weatherPath)
	if err == nil {
		t.Fatal("单一类别应报错")
	}
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("错误应是 *StageError, 实际 %T", err)
	}
	if se.Stage != "balance" {
		t.Errorf("出错阶段 = %s, 期望 balance", se.Stage)
	}
}

// ExportPrepared开着时建模数据另存一份
func TestRunExportPrepared(t *testing.T) {
	dir := t.TempDir()
	flightPath, weatherPath := writeToyData(t, dir, mixedDelays())

	pcfg := testPipelineConfig()
	pcfg.ExportPrepared = true
	cfg := &config.Config{OutputDir: dir}

	runner := NewRunner(cfg, pcfg, nil)
	res, err := runner.Run(flightPath, weatherPath)
	if err != nil {
		t.Fatalf("Run 出错: %v", err)
	}
	if res.PreparedPath == "" {
		t.Fatal("PreparedPath 为空")
	}
	if _, err := os.Stat(res.PreparedPath); err != nil {
		t.Errorf("建模数据未落盘: %v", err)
	}
}
