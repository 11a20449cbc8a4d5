// lime.go
package explain

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"DelayPrediction/src/model"
)

const ridgeLambda = 1e-6

// 扰动点到样本的距离度量
const (
	DistanceEuclidean = "euclidean"
	DistanceManhattan = "manhattan"
)

// Contribution 单个特征对一次预测的带符号贡献
// 权重在标准化尺度上，正值把预测往正类推
type Contribution struct {
	Feature string
	Weight  float64
}

// Explanation 一条样本的局部解释
type Explanation struct {
	// Predicted 被解释模型在该点给出的正类概率
	Predicted float64

	Intercept float64

	// Contributions 按权重绝对值降序
	Contributions []Contribution

	// R2 代理模型对扰动集的加权拟合优度，截到[0,1]
	R2 float64
}

type Config struct {
	Perturbations int     // 默认500
	Distance      string  // euclidean(默认)或manhattan
	KernelWidth   float64 // 标准化距离上的核宽，默认 0.75*sqrt(维数)
	TopFeatures   int     // 代理模型保留的特征数，默认6
	Seed          int64
}

// Explainer 用局部加权线性代理解释单条预测
// 在样本附近撒扰动点，按到样本的距离加权，先对全部特征拟合一个
// 加权线性模型，再只留权重最大的几个特征重新拟合
type Explainer struct {
	cfg    Config
	names  []string
	scaler *model.Scaler
}

// New 背景数据只用来估计各特征的均值方差，决定扰动的幅度
func New(cfg Config, names []string, background [][]float64) (*Explainer, error) {
	switch cfg.Distance {
	case "", DistanceEuclidean, DistanceManhattan:
	default:
		return nil, fmt.Errorf("不支持的距离度量 %q，可选 euclidean/manhattan", cfg.Distance)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("特征名为空")
	}
	if len(background) == 0 {
		return nil, fmt.Errorf("背景数据为空")
	}
	for i, row := range background {
		if len(row) != len(names) {
			return nil, fmt.Errorf("背景数据第 %d 行宽度 %d 和特征数 %d 不一致", i, len(row), len(names))
		}
	}

	scaler, err := model.FitScaler(background)
	if err != nil {
		return nil, err
	}
	return &Explainer{cfg: cfg, names: names, scaler: scaler}, nil
}

func (e *Explainer) Explain(clf model.Classifier, row []float64) (*Explanation, error) {
	d := len(e.names)
	if len(row) != d {
		return nil, fmt.Errorf("样本宽度 %d 和特征数 %d 不一致", len(row), d)
	}

	nPert := e.cfg.Perturbations
	if nPert <= 0 {
		nPert = 500
	}
	if nPert < 2 {
		nPert = 2
	}
	topK := e.cfg.TopFeatures
	if topK <= 0 {
		topK = 6
	}
	if topK > d {
		topK = d
	}
	width := e.cfg.KernelWidth
	if width <= 0 {
		width = 0.75 * math.Sqrt(float64(d))
	}

	rng := rand.New(rand.NewSource(e.cfg.Seed))
	z := e.scaler.TransformRow(row)

	// 第一个点就是样本本身
	zPert := make([][]float64, nPert)
	xPert := make([][]float64, nPert)
	zPert[0] = z
	xPert[0] = append([]float64(nil), row...)
	for i := 1; i < nPert; i++ {
		zi := make([]float64, d)
		for j := range zi {
			zi[j] = z[j] + rng.NormFloat64()
		}
		zPert[i] = zi
		xPert[i] = e.scaler.InverseRow(zi)
	}

	probs, err := clf.PredictProba(xPert)
	if err != nil {
		return nil, fmt.Errorf("扰动点打分失败: %w", err)
	}

	// 指数核，离样本越远权重越小
	w := make([]float64, nPert)
	for i, zi := range zPert {
		dist := e.distance(zi, z)
		w[i] = math.Exp(-dist * dist / (width * width))
	}

	all := make([]int, d)
	for j := range all {
		all[j] = j
	}
	coefs, _, err := weightedRidge(zPert, probs, w, all)
	if err != nil {
		return nil, err
	}

	// 按全量拟合的权重绝对值挑特征，再稀疏重拟合
	sort.Slice(all, func(a, b int) bool {
		return math.Abs(coefs[all[a]]) > math.Abs(coefs[all[b]])
	})
	kept := append([]int(nil), all[:topK]...)
	sort.Ints(kept)

	sparse, intercept, err := weightedRidge(zPert, probs, w, kept)
	if err != nil {
		return nil, err
	}

	contribs := make([]Contribution, len(kept))
	for j, c := range kept {
		contribs[j] = Contribution{Feature: e.names[c], Weight: sparse[j]}
	}
	sort.Slice(contribs, func(a, b int) bool {
		return math.Abs(contribs[a].Weight) > math.Abs(contribs[b].Weight)
	})

	return &Explanation{
		Predicted:     probs[0],
		Intercept:     intercept,
		Contributions: contribs,
		R2:            weightedR2(zPert, probs, w, kept, sparse, intercept),
	}, nil
}

// distance 标准化空间里两点的距离
func (e *Explainer) distance(a, b []float64) float64 {
	if e.cfg.Distance == DistanceManhattan {
		return floats.Distance(a, b, 1)
	}
	return floats.Distance(a, b, 2)
}

// weightedRidge 加权最小二乘加一点岭正则
// 每行乘sqrt(权重)，再追加sqrt(lambda)的对角行，交给最小二乘求解。
// 返回的系数按cols的顺序排列，截距不参与正则
func weightedRidge(x [][]float64, y, w []float64, cols []int) ([]float64, float64, error) {
	rows := len(x) + len(cols)
	a := mat.NewDense(rows, len(cols)+1, nil)
	b := mat.NewDense(rows, 1, nil)

	for i, zi := range x {
		sw := math.Sqrt(w[i])
		a.Set(i, 0, sw)
		for j, c := range cols {
			a.Set(i, j+1, sw*zi[c])
		}
		b.Set(i, 0, sw*y[i])
	}
	sl := math.Sqrt(ridgeLambda)
	for j := range cols {
		a.Set(len(x)+j, j+1, sl)
	}

	var sol mat.Dense
	if err := sol.Solve(a, b); err != nil {
		return nil, 0, fmt.Errorf("求解代理模型失败: %w", err)
	}

	coefs := make([]float64, len(cols))
	for j := range coefs {
		coefs[j] = sol.At(j+1, 0)
	}
	return coefs, sol.At(0, 0), nil
}

func weightedR2(x [][]float64, y, w []float64, cols []int, coefs []float64, intercept float64) float64 {
	mean := stat.Mean(y, w)

	rss, tss := 0.0, 0.0
	for i, zi := range x {
		pred := intercept
		for j, c := range cols {
			pred += coefs[j] * zi[c]
		}
		rss += w[i] * (y[i] - pred) * (y[i] - pred)
		tss += w[i] * (y[i] - mean) * (y[i] - mean)
	}

	if tss <= 0 {
		return 0
	}
	r2 := 1 - rss/tss
	if r2 < 0 {
		return 0
	}
	if r2 > 1 {
		return 1
	}
	return r2
}
