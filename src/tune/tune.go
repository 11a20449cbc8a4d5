// tune.go
package tune

import (
	"fmt"
	"math"
	"sort"

	"DelayPrediction/src/evaluate"
	"DelayPrediction/src/model"
)

// ForestOption 一组候选超参数和它的评估结果
type ForestOption struct {
	Mtry  int
	Trees int

	// OOBError 只在拿得到袋外估计时有效
	OOBError float64
	HasOOB   bool

	ValAccuracy float64

	// Score 选择依据，越大越好
	Score float64
}

// SearchForest 对mtry和树数做网格搜索
// 每个组合训练一片森林，优先按袋外误差比较，拿不到袋外估计时退回
// 验证集准确率。并列时取树少的组合，再并列取mtry小的
func SearchForest(cfg model.Config, mtrys, trees []int, xTrain [][]float64, yTrain []string, xVal [][]float64, yVal []string) (model.Config, []ForestOption, error) {
	if len(xTrain) == 0 {
		return cfg, nil, fmt.Errorf("训练集为空，无法搜索超参数")
	}
	d := len(xTrain[0])

	if len(mtrys) == 0 {
		mtrys = defaultMtryGrid(d)
	}
	if len(trees) == 0 {
		trees = []int{50, 100, 200}
	}
	for _, m := range mtrys {
		if m < 1 || m > d {
			return cfg, nil, fmt.Errorf("mtry %d 超出特征数范围 [1,%d]", m, d)
		}
	}
	for _, t := range trees {
		if t < 1 {
			return cfg, nil, fmt.Errorf("树数必须为正: %d", t)
		}
	}

	options := make([]ForestOption, 0, len(mtrys)*len(trees))
	bestIdx := -1

	for _, nTrees := range trees {
		for _, mtry := range mtrys {
			c := cfg
			c.Kind = model.KindForest
			c.Mtry = mtry
			c.Trees = nTrees

			forest := model.NewForest(c)
			if err := forest.Fit(xTrain, yTrain); err != nil {
				return cfg, options, fmt.Errorf("网格点 mtry=%d trees=%d 训练失败: %w", mtry, nTrees, err)
			}

			opt := ForestOption{Mtry: mtry, Trees: nTrees}
			if oob, err := forest.OOBError(); err == nil {
				opt.OOBError = oob
				opt.HasOOB = true
				opt.Score = 1 - oob
			}

			pred, err := forest.Predict(xVal)
			if err != nil {
				return cfg, options, fmt.Errorf("网格点 mtry=%d trees=%d 验证失败: %w", mtry, nTrees, err)
			}
			cm, err := evaluate.Confusion(pred, yVal, cfg.Positive)
			if err != nil {
				return cfg, options, err
			}
			opt.ValAccuracy = cm.Metrics().Accuracy
			if !opt.HasOOB {
				opt.Score = opt.ValAccuracy
			}

			options = append(options, opt)
			if bestIdx < 0 || better(opt, options[bestIdx]) {
				bestIdx = len(options) - 1
			}
		}
	}

	best := cfg
	best.Kind = model.KindForest
	best.Mtry = options[bestIdx].Mtry
	best.Trees = options[bestIdx].Trees
	return best, options, nil
}

func better(a, b ForestOption) bool {
	if math.Abs(a.Score-b.Score) > 1e-9 {
		return a.Score > b.Score
	}
	if a.Trees != b.Trees {
		return a.Trees < b.Trees
	}
	return a.Mtry < b.Mtry
}

func defaultMtryGrid(d int) []int {
	c := int(math.Sqrt(float64(d)))
	if c < 1 {
		c = 1
	}
	set := map[int]bool{}
	for _, m := range []int{c - 1, c, c + 1} {
		if m >= 1 && m <= d {
			set[m] = true
		}
	}
	grid := make([]int, 0, len(set))
	for m := range set {
		grid = append(grid, m)
	}
	sort.Ints(grid)
	return grid
}

/******************** 阈值扫描 ********************/

// SweepPoint 一个候选阈值的四项指标
type SweepPoint struct {
	Threshold float64
	Metrics   evaluate.Metrics
	Mean      float64
}

// SweepThreshold 在[start,end]上按step扫描判定阈值
// 每个阈值把概率严格大于它的判成正类，算准确率、精确率、敏感度、
// 特异度的均值。取均值最大的阈值，并列时取离0.5最近的
func SweepThreshold(probs []float64, truth []string, positive, negative string, start, end, step float64) (SweepPoint, []SweepPoint, error) {
	if len(probs) == 0 {
		return SweepPoint{}, nil, fmt.Errorf("概率序列为空，无法扫描阈值")
	}
	if len(probs) != len(truth) {
		return SweepPoint{}, nil, fmt.Errorf("概率数 %d 和标签数 %d 不一致", len(probs), len(truth))
	}
	if step <= 0 {
		return SweepPoint{}, nil, fmt.Errorf("扫描步长必须为正: %v", step)
	}
	if end < start {
		return SweepPoint{}, nil, fmt.Errorf("扫描区间无效: [%v,%v]", start, end)
	}

	// 整数步进，避免浮点累加偏出区间
	n := int(math.Round((end - start) / step))
	points := make([]SweepPoint, 0, n+1)
	bestIdx := 0

	for i := 0; i <= n; i++ {
		t := start + float64(i)*step

		pred := evaluate.ApplyThreshold(probs, t, positive, negative)
		cm, err := evaluate.Confusion(pred, truth, positive)
		if err != nil {
			return SweepPoint{}, nil, err
		}
		met := cm.Metrics()
		points = append(points, SweepPoint{Threshold: t, Metrics: met, Mean: met.Mean()})

		best := points[bestIdx]
		cur := points[len(points)-1]
		if cur.Mean > best.Mean+1e-9 {
			bestIdx = len(points) - 1
			continue
		}
		if math.Abs(cur.Mean-best.Mean) <= 1e-9 &&
			math.Abs(cur.Threshold-0.5) < math.Abs(best.Threshold-0.5) {
			bestIdx = len(points) - 1
		}
	}

	return points[bestIdx], points, nil
}
