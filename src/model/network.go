// network.go
package model

import (
	"fmt"
	"math"
	"math/rand"
)

func init() {
	register(KindNetwork, func(cfg Config) Classifier { return NewNetwork(cfg) })
}

// Network 前馈网络
// 隐藏层用ReLU，输出层两个sigmoid单元分别对应正负类，
// 交叉熵损失，Adam按小批量更新。输入在拟合时做标准化
type Network struct {
	cfg       Config
	scaler    *Scaler
	layers    []*denseLayer
	history   []float64 // 每轮平均交叉熵
	nFeatures int
	fitted    bool
}

type denseLayer struct {
	in, out int
	w, b    []float64 // w 行主序，out×in

	// 本批次累积的梯度
	gw, gb []float64

	// Adam 一阶二阶矩
	mw, vw, mb, vb []float64
}

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

func NewNetwork(cfg Config) *Network {
	return &Network{cfg: cfg}
}

func (m *Network) Name() string { return KindNetwork }

func (m *Network) Fit(x [][]float64, y []string) error {
	if err := checkTrainingSet(x, y, m.cfg.Positive, m.cfg.Negative); err != nil {
		return err
	}

	n := len(x)
	d := len(x[0])

	hidden := m.cfg.Hidden
	if len(hidden) == 0 {
		hidden = []int{64, 32}
	}
	for _, h := range hidden {
		if h < 1 {
			return fmt.Errorf("隐藏层宽度必须为正: %v", hidden)
		}
	}
	lr := m.cfg.LearnRate
	if lr <= 0 {
		lr = 0.001
	}
	epochs := m.cfg.Epochs
	if epochs <= 0 {
		epochs = 10
	}
	batch := m.cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	if batch > n {
		batch = n
	}

	scaler, err := FitScaler(x)
	if err != nil {
		return err
	}
	m.scaler = scaler
	xs := m.scaler.Transform(x)

	// 目标one-hot，下标0是正类
	targets := make([][2]float64, n)
	for i, label := range y {
		if label == m.cfg.Positive {
			targets[i] = [2]float64{1, 0}
		} else {
			targets[i] = [2]float64{0, 1}
		}
	}

	rng := rand.New(rand.NewSource(m.cfg.Seed))
	sizes := append([]int{d}, hidden...)
	sizes = append(sizes, 2)

	m.layers = make([]*denseLayer, 0, len(sizes)-1)
	for li := 0; li < len(sizes)-1; li++ {
		// ReLU层按He初始化，输出层按Xavier
		std := math.Sqrt(2 / float64(sizes[li]))
		if li == len(sizes)-2 {
			std = math.Sqrt(1 / float64(sizes[li]))
		}
		m.layers = append(m.layers, newDenseLayer(sizes[li], sizes[li+1], std, rng))
	}

	last := len(m.layers) - 1
	zs := make([][]float64, len(m.layers))
	acts := make([][]float64, len(m.layers)+1)
	deltas := make([][]float64, len(m.layers))
	for li, l := range m.layers {
		zs[li] = make([]float64, l.out)
		acts[li+1] = make([]float64, l.out)
		deltas[li] = make([]float64, l.out)
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	m.history = m.history[:0]
	step := 0
	for epoch := 0; epoch < epochs; epoch++ {
		rng.Shuffle(n, func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })

		epochLoss := 0.0
		for start := 0; start < n; start += batch {
			end := start + batch
			if end > n {
				end = n
			}

			for _, l := range m.layers {
				l.zeroGrad()
			}

			for _, i := range idx[start:end] {
				acts[0] = xs[i]
				m.forward(zs, acts)
				epochLoss += crossEntropy(acts[last+1], targets[i])

				// sigmoid加交叉熵在输出层的梯度就是 a-t
				out := acts[last+1]
				for k := range deltas[last] {
					deltas[last][k] = out[k] - targets[i][k]
				}
				m.backward(zs, acts, deltas)
			}

			step++
			for _, l := range m.layers {
				l.adamStep(lr, float64(end-start), step)
			}
		}
		m.history = append(m.history, epochLoss/float64(n))
	}

	m.nFeatures = d
	m.fitted = true
	return nil
}

func (m *Network) Predict(x [][]float64) ([]string, error) {
	probs, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(probs))
	for i, p := range probs {
		if p > 0.5 {
			out[i] = m.cfg.Positive
		} else {
			out[i] = m.cfg.Negative
		}
	}
	return out, nil
}

// PredictProba 两个输出单元各自独立，正类概率取两者归一后的占比
func (m *Network) PredictProba(x [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}

	zs := make([][]float64, len(m.layers))
	acts := make([][]float64, len(m.layers)+1)
	for li, l := range m.layers {
		zs[li] = make([]float64, l.out)
		acts[li+1] = make([]float64, l.out)
	}

	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != m.nFeatures {
			return nil, fmt.Errorf("第 %d 行特征宽度 %d 与训练时 %d 不一致", i, len(row), m.nFeatures)
		}
		acts[0] = m.scaler.TransformRow(row)
		m.forward(zs, acts)

		o := acts[len(m.layers)]
		if o[0]+o[1] == 0 {
			out[i] = 0.5
			continue
		}
		out[i] = o[0] / (o[0] + o[1])
	}
	return out, nil
}

// History 每轮训练的平均交叉熵，画损失曲线用
func (m *Network) History() []float64 {
	return append([]float64(nil), m.history...)
}

func (m *Network) forward(zs, acts [][]float64) {
	last := len(m.layers) - 1
	for li, l := range m.layers {
		in := acts[li]
		z := zs[li]
		for k := 0; k < l.out; k++ {
			s := l.b[k]
			row := l.w[k*l.in : (k+1)*l.in]
			for j, v := range in {
				s += row[j] * v
			}
			z[k] = s
		}

		a := acts[li+1]
		if li == last {
			for k, v := range z {
				a[k] = 1 / (1 + math.Exp(-v))
			}
		} else {
			for k, v := range z {
				if v > 0 {
					a[k] = v
				} else {
					a[k] = 0
				}
			}
		}
	}
}

// backward 假定输出层的delta已经填好
func (m *Network) backward(zs, acts, deltas [][]float64) {
	for li := len(m.layers) - 1; li >= 0; li-- {
		l := m.layers[li]
		prev := acts[li]
		d := deltas[li]

		for k := 0; k < l.out; k++ {
			l.gb[k] += d[k]
			row := l.gw[k*l.in : (k+1)*l.in]
			for j, v := range prev {
				row[j] += d[k] * v
			}
		}

		if li == 0 {
			continue
		}
		pd := deltas[li-1]
		pz := zs[li-1]
		for j := range pd {
			if pz[j] <= 0 {
				pd[j] = 0
				continue
			}
			s := 0.0
			for k := 0; k < l.out; k++ {
				s += l.w[k*l.in+j] * d[k]
			}
			pd[j] = s
		}
	}
}

func newDenseLayer(in, out int, std float64, rng *rand.Rand) *denseLayer {
	l := &denseLayer{
		in:  in,
		out: out,
		w:   make([]float64, in*out),
		b:   make([]float64, out),
		gw:  make([]float64, in*out),
		gb:  make([]float64, out),
		mw:  make([]float64, in*out),
		vw:  make([]float64, in*out),
		mb:  make([]float64, out),
		vb:  make([]float64, out),
	}
	for i := range l.w {
		l.w[i] = rng.NormFloat64() * std
	}
	return l
}

func (l *denseLayer) zeroGrad() {
	for i := range l.gw {
		l.gw[i] = 0
	}
	for i := range l.gb {
		l.gb[i] = 0
	}
}

// adamStep 用本批次平均梯度更新一次参数
func (l *denseLayer) adamStep(lr, batchSize float64, step int) {
	c1 := 1 - math.Pow(adamBeta1, float64(step))
	c2 := 1 - math.Pow(adamBeta2, float64(step))

	for i := range l.w {
		g := l.gw[i] / batchSize
		l.mw[i] = adamBeta1*l.mw[i] + (1-adamBeta1)*g
		l.vw[i] = adamBeta2*l.vw[i] + (1-adamBeta2)*g*g
		l.w[i] -= lr * (l.mw[i] / c1) / (math.Sqrt(l.vw[i]/c2) + adamEps)
	}
	for i := range l.b {
		g := l.gb[i] / batchSize
		l.mb[i] = adamBeta1*l.mb[i] + (1-adamBeta1)*g
		l.vb[i] = adamBeta2*l.vb[i] + (1-adamBeta2)*g*g
		l.b[i] -= lr * (l.mb[i] / c1) / (math.Sqrt(l.vb[i]/c2) + adamEps)
	}
}

// crossEntropy 两个输出单元的二元交叉熵之和
func crossEntropy(a []float64, t [2]float64) float64 {
	loss := 0.0
	for k := 0; k < 2; k++ {
		p := a[k]
		if p < 1e-12 {
			p = 1e-12
		}
		if p > 1-1e-12 {
			p = 1 - 1e-12
		}
		loss += -(t[k]*math.Log(p) + (1-t[k])*math.Log(1-p))
	}
	return loss
}
