// pipeline.go
package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"

	"DelayPrediction/src/config"
	"DelayPrediction/src/dataset"
	"DelayPrediction/src/evaluate"
	"DelayPrediction/src/explain"
	"DelayPrediction/src/features"
	"DelayPrediction/src/model"
	"DelayPrediction/src/sample"
	"DelayPrediction/src/storage"
	"DelayPrediction/src/tune"
	"DelayPrediction/src/utils"
)

// 管线内部使用的规范列名
// 列配置负责把输入文件的表头映射到这些名字上
const (
	ColDepTime  = "dep_time"
	ColArrTime  = "arr_time"
	ColHour     = "hour"
	ColMinute   = "minute"
	ColDuration = "duration"
)

// StageError 带着出错阶段名的错误
// 管线是十来个阶段串起来的，出错时必须能说清楚坏在哪一段
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("阶段 %s 失败: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// ModelResult 单个模型在验证集上的表现
type ModelResult struct {
	Kind      string
	Confusion evaluate.ConfusionMatrix
	Metrics   evaluate.Metrics
	TrainSecs float64

	// knn
	K int

	// forest
	OOBError   float64
	HasOOB     bool
	Importance []float64 // 与Features同序

	// network
	LossHistory []float64
}

// ExplainedSample 验证集中一条被解释的样本
type ExplainedSample struct {
	Row         int // 验证集行号
	Truth       string
	Explanation explain.Explanation
}

// Result 一次完整流水线的产出，报表和推送都从这里取数
type Result struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Seed       int64

	FlightPath  string
	WeatherPath string

	FlightRaw      int
	FlightDropped  int
	WeatherRaw     int
	WeatherDropped int

	DroppedIdentifier []string
	DroppedConstant   []string
	DroppedSparse     []string
	DroppedLowVar     []string
	Medians           map[string]float64

	JoinMisses      int
	Joined          int
	PostJoinDropped int

	ClassCounts    map[string]int // 平衡前
	BalancedCounts map[string]int
	BalancedRows   int
	TrainRows      int
	ValRows        int

	Features []string

	Models []ModelResult

	Grid      []tune.ForestOption
	BestMtry  int
	BestTrees int

	SweepModel    string
	Sweep         []tune.SweepPoint
	BestThreshold tune.SweepPoint

	// 扫描模型在验证集上的逐行概率与真实标签，概率散点图从这里取数
	ValProbs []float64
	ValTruth []string

	Explained []ExplainedSample

	// ExportPrepared开着时建模数据落盘的位置
	PreparedPath string
}

// Runner 把从读数到局部解释的整条流水线串起来
// 除日志外不落任何中间状态，同一份输入和种子跑多少次结果都一样
type Runner struct {
	cfg    *config.Config
	pcfg   *config.PipelineConfig
	logger *storage.Logger
}

func NewRunner(cfg *config.Config, pcfg *config.PipelineConfig, logger *storage.Logger) *Runner {
	return &Runner{cfg: cfg, pcfg: pcfg, logger: logger}
}

// Run 跑一遍完整管线
// 任何阶段出错都立即停下，错误带着阶段名往上抛
func (r *Runner) Run(flightPath, weatherPath string) (*Result, error) {
	pcfg := r.pcfg
	res := &Result{
		StartedAt:   time.Now(),
		Seed:        pcfg.Seed,
		FlightPath:  flightPath,
		WeatherPath: weatherPath,
	}

	/******************** 航班表 ********************/

	flight, err := r.loadTable(flightPath, &pcfg.Flight)
	if err != nil {
		return nil, r.fail("load-flight", err)
	}
	res.FlightRaw = flight.Nrow()
	r.info("航班表 %s 读入 %d 行 %d 列", flightPath, flight.Nrow(), flight.Ncol())

	// 键列、目标列和待拆的时刻列不参与列剔除
	flightSkip := append([]string{}, pcfg.JoinKeys...)
	flightSkip = append(flightSkip, pcfg.Target, ColDepTime, ColArrTime)

	flight, droppedID, err := dataset.DropIdentifierColumns(flight, pcfg.Flight.Drop, flightSkip)
	if err != nil {
		return nil, r.fail("clean-flight", err)
	}
	res.DroppedIdentifier = droppedID

	flight, droppedConst, err := dataset.DropConstantColumns(flight, flightSkip)
	if err != nil {
		return nil, r.fail("clean-flight", err)
	}
	res.DroppedConstant = droppedConst

	// 策略A：整行删除，损失超限就停
	flight, res.FlightDropped, err = dataset.DropIncompleteRows(flight)
	if err != nil {
		return nil, r.fail("clean-flight", err)
	}
	if err := dataset.GuardRowLoss(res.FlightDropped, res.FlightRaw, pcfg.MaxRowLoss); err != nil {
		return nil, r.fail("clean-flight", err)
	}
	r.info("航班表清洗删除 %d 行，剔除列 %v", res.FlightDropped, append(droppedID, droppedConst...))

	/******************** 特征 ********************/

	flight, err = features.AddClockSplit(flight, ColDepTime, ColHour, ColMinute)
	if err != nil {
		return nil, r.fail("features", err)
	}
	flight, err = features.AddDuration(flight, ColDepTime, ColArrTime, ColDuration)
	if err != nil {
		return nil, r.fail("features", err)
	}
	flight, err = features.LabelDelay(flight, pcfg.Target, pcfg.Positive, pcfg.Negative)
	if err != nil {
		return nil, r.fail("features", err)
	}

	// 拆出小时分钟并算完时长后，打包时刻列不再携带新信息
	flight = flight.Drop([]string{ColDepTime, ColArrTime})
	if flight.Err != nil {
		return nil, r.fail("features", flight.Err)
	}

	/******************** 天气表 ********************/

	weather, err := r.loadTable(weatherPath, &pcfg.Weather)
	if err != nil {
		return nil, r.fail("load-weather", err)
	}
	res.WeatherRaw = weather.Nrow()
	r.info("天气表 %s 读入 %d 行 %d 列", weatherPath, weather.Nrow(), weather.Ncol())

	weather, _, err = dataset.DropConstantColumns(weather, pcfg.JoinKeys)
	if err != nil {
		return nil, r.fail("clean-weather", err)
	}

	weather, res.DroppedSparse, err = dataset.DropSparseColumns(weather, pcfg.SparseColCutoff, pcfg.JoinKeys)
	if err != nil {
		return nil, r.fail("clean-weather", err)
	}

	// 键缺失的天气行联不上任何航班，先删掉再填充
	weather, res.WeatherDropped, err = dataset.DropIncompleteRows(weather, pcfg.JoinKeys...)
	if err != nil {
		return nil, r.fail("clean-weather", err)
	}

	weather, res.Medians, err = dataset.ImputeMedian(weather, pcfg.JoinKeys)
	if err != nil {
		return nil, r.fail("clean-weather", err)
	}

	weather, res.DroppedLowVar, err = dataset.DropLowVarianceColumns(weather, pcfg.VarianceCutoff, pcfg.JoinKeys)
	if err != nil {
		return nil, r.fail("clean-weather", err)
	}
	r.info("天气表整列剔除 %v，低方差剔除 %v，中位数填充 %d 列",
		res.DroppedSparse, res.DroppedLowVar, len(res.Medians))

	/******************** 联结 ********************/

	flight, err = dataset.NormalizeKeys(flight, pcfg.JoinKeys)
	if err != nil {
		return nil, r.fail("join", err)
	}
	weather, err = dataset.NormalizeKeys(weather, pcfg.JoinKeys)
	if err != nil {
		return nil, r.fail("join", err)
	}

	joined, misses, err := dataset.JoinOnKeys(flight, weather, pcfg.JoinKeys)
	if err != nil {
		return nil, r.fail("join", err)
	}
	res.JoinMisses = misses
	res.Joined = joined.Nrow()
	r.info("联结得到 %d 行，未匹配到天气的航班 %d 行", res.Joined, misses)

	// 第二遍清洗兜住联结引入的缺口，之后任何缺失都是策略漏洞
	joined, res.PostJoinDropped, err = dataset.DropIncompleteRows(joined)
	if err != nil {
		return nil, r.fail("post-join-clean", err)
	}
	if err := dataset.EnsureComplete(joined); err != nil {
		return nil, r.fail("post-join-clean", err)
	}

	if pcfg.ExportPrepared && r.cfg != nil && r.cfg.OutputDir != "" {
		path := filepath.Join(r.cfg.OutputDir, "prepared.xlsx")
		if err := utils.SaveToExcel(joined, path); err != nil {
			r.warn("建模数据落盘失败: %v", err)
		} else {
			res.PreparedPath = path
		}
	}

	/******************** 平衡与拆分 ********************/

	res.ClassCounts, err = sample.ClassCounts(joined, pcfg.Target)
	if err != nil {
		return nil, r.fail("balance", err)
	}

	balanced, err := sample.Oversample(joined, pcfg.Target, utils.StageSeed(pcfg.Seed, "balance"))
	if err != nil {
		return nil, r.fail("balance", err)
	}
	res.BalancedRows = balanced.Nrow()
	res.BalancedCounts, err = sample.ClassCounts(balanced, pcfg.Target)
	if err != nil {
		return nil, r.fail("balance", err)
	}
	r.info("类别平衡 %v -> %v", res.ClassCounts, res.BalancedCounts)

	train, val, err := sample.StratifiedSplit(balanced, pcfg.Target, pcfg.TrainRatio, utils.StageSeed(pcfg.Seed, "split"))
	if err != nil {
		return nil, r.fail("split", err)
	}
	res.TrainRows = train.Nrow()
	res.ValRows = val.Nrow()

	names, xTrain, yTrain, err := features.BuildMatrix(train, pcfg.Target)
	if err != nil {
		return nil, r.fail("split", err)
	}
	valNames, xVal, yVal, err := features.BuildMatrix(val, pcfg.Target)
	if err != nil {
		return nil, r.fail("split", err)
	}
	if strings.Join(names, ",") != strings.Join(valNames, ",") {
		return nil, r.fail("split", fmt.Errorf("训练集与验证集的特征列不一致: %v / %v", names, valNames))
	}
	res.Features = names
	r.info("训练 %d 行，验证 %d 行，特征 %v", res.TrainRows, res.ValRows, names)

	/******************** 训练与评估 ********************/

	fitted := make(map[string]model.Classifier)
	for _, kind := range []string{model.KindKNN, model.KindForest, model.KindNetwork} {
		mr, clf, err := r.trainOne(kind, names, xTrain, yTrain, xVal, yVal)
		if err != nil {
			return nil, r.fail("train-"+kind, err)
		}
		res.Models = append(res.Models, mr)
		fitted[kind] = clf
		r.info("模型 %s 验证集准确率 %.4f，训练耗时 %.1fs", kind, mr.Metrics.Accuracy, mr.TrainSecs)
	}

	/******************** 调参 ********************/

	gridBase := r.modelConfig(model.KindForest)
	gridBase.Seed = utils.StageSeed(pcfg.Seed, "tune")
	bestCfg, grid, err := tune.SearchForest(gridBase, pcfg.Forest.GridMtry, pcfg.Forest.GridTrees, xTrain, yTrain, xVal, yVal)
	if err != nil {
		return nil, r.fail("tune-forest", err)
	}
	res.Grid = grid
	res.BestMtry = bestCfg.Mtry
	res.BestTrees = bestCfg.Trees
	r.info("网格搜索选中 mtry=%d trees=%d", bestCfg.Mtry, bestCfg.Trees)

	// 选中的组合重训一片森林，后面的阈值扫描和解释都用它
	tuned := model.NewForest(bestCfg)
	if err := tuned.Fit(xTrain, yTrain); err != nil {
		return nil, r.fail("tune-forest", err)
	}
	fitted[model.KindForest] = tuned

	/******************** 阈值扫描 ********************/

	res.SweepModel = pcfg.SweepModel
	sweepClf, ok := fitted[pcfg.SweepModel]
	if !ok {
		return nil, r.fail("sweep", fmt.Errorf("配置的扫描模型 %q 未训练，可选 %v", pcfg.SweepModel, model.Kinds()))
	}

	probs, err := sweepClf.PredictProba(xVal)
	if err != nil {
		return nil, r.fail("sweep", err)
	}
	res.ValProbs = probs
	res.ValTruth = yVal
	best, points, err := tune.SweepThreshold(probs, yVal, pcfg.Positive, pcfg.Negative,
		pcfg.SweepStart, pcfg.SweepEnd, pcfg.SweepStep)
	if err != nil {
		return nil, r.fail("sweep", err)
	}
	res.Sweep = points
	res.BestThreshold = best
	r.info("阈值扫描选中 t=%.2f，四项指标均值 %.4f", best.Threshold, best.Mean)

	/******************** 局部解释 ********************/

	expl, err := explain.New(explain.Config{
		Perturbations: pcfg.Explain.Perturbations,
		Distance:      pcfg.Explain.Distance,
		KernelWidth:   pcfg.Explain.KernelWidth,
		TopFeatures:   pcfg.Explain.TopFeatures,
		Seed:          utils.StageSeed(pcfg.Seed, "explain"),
	}, names, xTrain)
	if err != nil {
		return nil, r.fail("explain", err)
	}

	nSamples := pcfg.Explain.Samples
	if nSamples > len(xVal) {
		nSamples = len(xVal)
	}
	for i := 0; i < nSamples; i++ {
		e, err := expl.Explain(sweepClf, xVal[i])
		if err != nil {
			return nil, r.fail("explain", err)
		}
		res.Explained = append(res.Explained, ExplainedSample{Row: i, Truth: yVal[i], Explanation: *e})
	}

	res.FinishedAt = time.Now()
	r.info("管线完成，耗时 %.1fs", res.FinishedAt.Sub(res.StartedAt).Seconds())
	return res, nil
}

// trainOne 训练一个模型并在验证集上评估
func (r *Runner) trainOne(kind string, names []string, xTrain [][]float64, yTrain []string, xVal [][]float64, yVal []string) (ModelResult, model.Classifier, error) {
	clf, err := model.New(r.modelConfig(kind))
	if err != nil {
		return ModelResult{}, nil, err
	}

	start := time.Now()
	if err := clf.Fit(xTrain, yTrain); err != nil {
		return ModelResult{}, nil, err
	}
	mr := ModelResult{Kind: kind, TrainSecs: time.Since(start).Seconds()}

	pred, err := clf.Predict(xVal)
	if err != nil {
		return ModelResult{}, nil, err
	}
	cm, err := evaluate.Confusion(pred, yVal, r.pcfg.Positive)
	if err != nil {
		return ModelResult{}, nil, err
	}
	mr.Confusion = cm
	mr.Metrics = cm.Metrics()

	switch m := clf.(type) {
	case *model.KNN:
		if k, err := m.K(); err == nil {
			mr.K = k
		}
	case *model.Forest:
		if oob, err := m.OOBError(); err == nil {
			mr.OOBError = oob
			mr.HasOOB = true
		}
		if imp, err := m.Importance(); err == nil {
			mr.Importance = imp
		}
	case *model.Network:
		mr.LossHistory = m.History()
	}

	return mr, clf, nil
}

// modelConfig 把管线配置折到单个模型的构造参数
// 每个模型用各自的子种子，改种子只影响对应阶段
func (r *Runner) modelConfig(kind string) model.Config {
	pcfg := r.pcfg
	return model.Config{
		Kind:      kind,
		Positive:  pcfg.Positive,
		Negative:  pcfg.Negative,
		Seed:      utils.StageSeed(pcfg.Seed, "model-"+kind),
		K:         pcfg.KNN.K,
		Trees:     pcfg.Forest.Trees,
		Mtry:      pcfg.Forest.Mtry,
		MaxDepth:  pcfg.Forest.MaxDepth,
		MinLeaf:   pcfg.Forest.MinLeaf,
		Hidden:    pcfg.Network.Hidden,
		LearnRate: pcfg.Network.LearnRate,
		Epochs:    pcfg.Network.Epochs,
		BatchSize: pcfg.Network.BatchSize,
	}
}

// loadTable 按扩展名选择读取方式
func (r *Runner) loadTable(path string, schema *config.TableSchema) (dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		sheet := ""
		headerRow := 0
		if r.cfg != nil {
			sheet = r.cfg.SheetName
			headerRow = r.cfg.HeaderRow
		}
		return dataset.LoadXLSX(path, sheet, headerRow, schema)
	default:
		return dataset.LoadCSV(path, schema)
	}
}

func (r *Runner) fail(stage string, err error) error {
	se := &StageError{Stage: stage, Err: err}
	if r.logger != nil {
		r.logger.Error(se.Error())
	}
	return se
}

func (r *Runner) info(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Info(fmt.Sprintf(format, args...))
	}
}

func (r *Runner) warn(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warning(fmt.Sprintf(format, args...))
	}
}
