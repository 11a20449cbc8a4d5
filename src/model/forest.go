// forest.go
package model

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

func init() {
	register(KindForest, func(cfg Config) Classifier { return NewForest(cfg) })
}

// Forest 自助聚合决策树
// 每棵树在一份有放回抽样上训练，每次分裂只在随机抽出的mtry个特征里找，
// 预测按多数表决。不进袋的样本顺便给出袋外误差估计
type Forest struct {
	cfg        Config
	trees      []*treeNode
	nFeatures  int
	importance []float64
	oobErr     float64
	oobValid   bool
	fitted     bool
}

type treeNode struct {
	leaf      bool
	prob      float64 // 叶节点样本的正类占比
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

func NewForest(cfg Config) *Forest {
	return &Forest{cfg: cfg}
}

func (f *Forest) Name() string { return KindForest }

func (f *Forest) Fit(x [][]float64, y []string) error {
	if err := checkTrainingSet(x, y, f.cfg.Positive, f.cfg.Negative); err != nil {
		return err
	}

	n := len(x)
	d := len(x[0])

	nTrees := f.cfg.Trees
	if nTrees <= 0 {
		nTrees = 100
	}
	mtry := f.cfg.Mtry
	if mtry <= 0 {
		mtry = int(math.Sqrt(float64(d)))
	}
	if mtry < 1 {
		mtry = 1
	}
	if mtry > d {
		mtry = d
	}
	minLeaf := f.cfg.MinLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}

	y01 := make([]int, n)
	for i, label := range y {
		if label == f.cfg.Positive {
			y01[i] = 1
		}
	}

	base := rand.New(rand.NewSource(f.cfg.Seed))
	importance := make([]float64, d)
	oobPos := make([]int, n)
	oobNeg := make([]int, n)

	f.trees = make([]*treeNode, 0, nTrees)
	for t := 0; t < nTrees; t++ {
		rng := rand.New(rand.NewSource(base.Int63()))

		boot := make([]int, n)
		inBag := make([]bool, n)
		for i := range boot {
			r := rng.Intn(n)
			boot[i] = r
			inBag[r] = true
		}

		b := &treeBuilder{
			x:          x,
			y:          y01,
			mtry:       mtry,
			maxDepth:   f.cfg.MaxDepth,
			minLeaf:    minLeaf,
			rng:        rng,
			importance: importance,
			rootSize:   float64(len(boot)),
		}
		root := b.build(boot, 0)
		f.trees = append(f.trees, root)

		// 袋外样本投票
		for i := 0; i < n; i++ {
			if inBag[i] {
				continue
			}
			if root.walk(x[i]) > 0.5 {
				oobPos[i]++
			} else {
				oobNeg[i]++
			}
		}
	}

	// 重要度按树平均后归一化，量纲只剩相对大小
	sum := 0.0
	for j := range importance {
		importance[j] /= float64(nTrees)
		sum += importance[j]
	}
	if sum > 0 {
		for j := range importance {
			importance[j] /= sum
		}
	}

	evaluated, wrong := 0, 0
	for i := 0; i < n; i++ {
		if oobPos[i]+oobNeg[i] == 0 {
			continue
		}
		evaluated++
		predPos := oobPos[i] > oobNeg[i]
		if predPos != (y01[i] == 1) {
			wrong++
		}
	}

	f.nFeatures = d
	f.importance = importance
	f.oobValid = evaluated > 0
	if f.oobValid {
		f.oobErr = float64(wrong) / float64(evaluated)
	}
	f.fitted = true
	return nil
}

func (f *Forest) Predict(x [][]float64) ([]string, error) {
	probs, err := f.PredictProba(x)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(probs))
	for i, p := range probs {
		if p > 0.5 {
			out[i] = f.cfg.Positive
		} else {
			out[i] = f.cfg.Negative
		}
	}
	return out, nil
}

// PredictProba 正类概率取投正类票的树的占比
func (f *Forest) PredictProba(x [][]float64) ([]float64, error) {
	if !f.fitted {
		return nil, ErrNotFitted
	}

	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != f.nFeatures {
			return nil, fmt.Errorf("第 %d 行特征宽度 %d 与训练时 %d 不一致", i, len(row), f.nFeatures)
		}
		votes := 0
		for _, root := range f.trees {
			if root.walk(row) > 0.5 {
				votes++
			}
		}
		out[i] = float64(votes) / float64(len(f.trees))
	}
	return out, nil
}

// Importance 各特征的平均基尼下降，已归一化为占比
func (f *Forest) Importance() ([]float64, error) {
	if !f.fitted {
		return nil, ErrNotFitted
	}
	return append([]float64(nil), f.importance...), nil
}

// OOBError 袋外误差
// 树太少或样本太少可能所有行都进了袋，此时没有袋外估计
func (f *Forest) OOBError() (float64, error) {
	if !f.fitted {
		return 0, ErrNotFitted
	}
	if !f.oobValid {
		return 0, fmt.Errorf("没有袋外样本，无法估计袋外误差")
	}
	return f.oobErr, nil
}

func (n *treeNode) walk(row []float64) float64 {
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.prob
}

/******************** 建树 ********************/

type treeBuilder struct {
	x          [][]float64
	y          []int
	mtry       int
	maxDepth   int
	minLeaf    int
	rng        *rand.Rand
	importance []float64
	rootSize   float64
}

func (b *treeBuilder) build(idx []int, depth int) *treeNode {
	n := len(idx)
	pos := 0
	for _, i := range idx {
		pos += b.y[i]
	}
	p := float64(pos) / float64(n)

	if pos == 0 || pos == n || n < 2*b.minLeaf || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return &treeNode{leaf: true, prob: p}
	}

	feat, thr, gain := b.bestSplit(idx, pos)
	if gain <= 1e-12 {
		return &treeNode{leaf: true, prob: p}
	}

	// 节点越大，这次分裂对整棵树的贡献越大
	b.importance[feat] += gain * float64(n) / b.rootSize

	var left, right []int
	for _, i := range idx {
		if b.x[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &treeNode{
		feature:   feat,
		threshold: thr,
		left:      b.build(left, depth+1),
		right:     b.build(right, depth+1),
	}
}

// bestSplit 在随机抽出的mtry个特征里找基尼下降最大的切分点
func (b *treeBuilder) bestSplit(idx []int, pos int) (feature int, threshold, gain float64) {
	n := len(idx)
	d := len(b.x[0])
	parent := gini(pos, n)

	feature = -1
	perm := b.rng.Perm(d)

	vals := make([]float64, n)
	labels := make([]int, n)
	order := make([]int, n)

	for _, feat := range perm[:b.mtry] {
		for k, i := range idx {
			vals[k] = b.x[i][feat]
			labels[k] = b.y[i]
			order[k] = k
		}
		sort.Slice(order, func(a, c int) bool { return vals[order[a]] < vals[order[c]] })

		leftPos, leftN := 0, 0
		for k := 0; k < n-1; k++ {
			o := order[k]
			leftPos += labels[o]
			leftN++

			// 相等值之间切不开
			if vals[o] == vals[order[k+1]] {
				continue
			}
			rightN := n - leftN
			if leftN < b.minLeaf || rightN < b.minLeaf {
				continue
			}

			rightPos := pos - leftPos
			g := parent -
				float64(leftN)/float64(n)*gini(leftPos, leftN) -
				float64(rightN)/float64(n)*gini(rightPos, rightN)
			if g > gain {
				gain = g
				feature = feat
				threshold = (vals[o] + vals[order[k+1]]) / 2
			}
		}
	}

	if feature < 0 {
		return 0, 0, 0
	}
	return feature, threshold, gain
}

// gini 二分类基尼不纯度 2p(1-p)
func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}
