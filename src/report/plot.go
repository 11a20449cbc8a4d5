// plot.go
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"DelayPrediction/src/pipeline"
)

// WritePlots 把阈值扫描、特征重要度和网络损失画成PNG
// 返回实际写出的文件路径。图上用英文标注，默认字体没有中文字形
func WritePlots(res *pipeline.Result, dir string) ([]string, error) {
	if res == nil {
		return nil, fmt.Errorf("结果为空，无法绘图")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建图片目录失败: %w", err)
	}

	var written []string

	if len(res.Sweep) > 0 {
		path := filepath.Join(dir, "threshold_sweep.png")
		if err := plotSweep(res, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if len(res.ValProbs) > 0 && len(res.ValProbs) == len(res.ValTruth) {
		path := filepath.Join(dir, "probability_scatter.png")
		if err := plotProbScatter(res, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if imp := forestImportance(res); imp != nil {
		path := filepath.Join(dir, "feature_importance.png")
		if err := plotImportance(res.Features, imp, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	for _, m := range res.Models {
		if len(m.LossHistory) == 0 {
			continue
		}
		path := filepath.Join(dir, "network_loss.png")
		if err := plotLoss(m.LossHistory, path); err != nil {
			return written, err
		}
		written = append(written, path)
		break
	}

	return written, nil
}

func plotSweep(res *pipeline.Result, path string) error {
	p := plot.New()
	p.Title.Text = "Threshold sweep"
	p.X.Label.Text = "threshold"
	p.Y.Label.Text = "metric"

	curves := []struct {
		name  string
		pick  func(point int) float64
		color color.RGBA
	}{
		{"sensitivity", func(i int) float64 { return res.Sweep[i].Metrics.Sensitivity }, color.RGBA{R: 200, G: 30, B: 30, A: 255}},
		{"specificity", func(i int) float64 { return res.Sweep[i].Metrics.Specificity }, color.RGBA{R: 20, G: 80, B: 200, A: 255}},
		{"mean", func(i int) float64 { return res.Sweep[i].Mean }, color.RGBA{R: 40, G: 120, B: 40, A: 255}},
	}

	for _, c := range curves {
		xys := make(plotter.XYs, len(res.Sweep))
		for i := range res.Sweep {
			xys[i] = plotter.XY{X: res.Sweep[i].Threshold, Y: c.pick(i)}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		line.Color = c.color
		line.Width = vg.Points(1.2)
		p.Add(line)
		p.Legend.Add(c.name, line)
	}

	// 选中的阈值画一根竖线
	best := res.BestThreshold.Threshold
	marker, err := plotter.NewLine(plotter.XYs{{X: best, Y: 0}, {X: best, Y: 1}})
	if err != nil {
		return err
	}
	marker.Color = color.RGBA{R: 120, G: 120, B: 120, A: 180}
	marker.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
	p.Add(marker)
	p.Legend.Add("chosen", marker)

	p.Add(plotter.NewGrid())
	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}

// plotProbScatter 验证集逐行的正类概率，按真实类别着色
// 阈值线上下能直观看出两类分得开不开
func plotProbScatter(res *pipeline.Result, path string) error {
	p := plot.New()
	p.Title.Text = "Validation probabilities"
	p.X.Label.Text = "validation row"
	p.Y.Label.Text = "positive probability"
	p.Y.Min, p.Y.Max = 0, 1

	byClass := make(map[string]plotter.XYs)
	for i, pr := range res.ValProbs {
		t := res.ValTruth[i]
		byClass[t] = append(byClass[t], plotter.XY{X: float64(i), Y: pr})
	}
	classes := make([]string, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	palette := []color.RGBA{
		{R: 200, G: 30, B: 30, A: 255},
		{R: 20, G: 80, B: 200, A: 255},
		{R: 40, G: 120, B: 40, A: 255},
	}
	for i, c := range classes {
		scatter, err := plotter.NewScatter(byClass[c])
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Color = palette[i%len(palette)]
		scatter.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(scatter)
		p.Legend.Add(c, scatter)
	}

	right := float64(len(res.ValProbs) - 1)
	if right < 1 {
		right = 1
	}
	best := res.BestThreshold.Threshold
	marker, err := plotter.NewLine(plotter.XYs{{X: 0, Y: best}, {X: right, Y: best}})
	if err != nil {
		return err
	}
	marker.Color = color.RGBA{R: 120, G: 120, B: 120, A: 180}
	marker.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
	p.Add(marker)
	p.Legend.Add("threshold", marker)

	p.Add(plotter.NewGrid())
	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}

func plotImportance(names []string, imp []float64, path string) error {
	p := plot.New()
	p.Title.Text = "Feature importance"
	p.Y.Label.Text = "importance"

	values := make(plotter.Values, 0, len(imp))
	labels := make([]string, 0, len(imp))
	for i, v := range imp {
		if i >= len(names) {
			break
		}
		values = append(values, v)
		labels = append(labels, names[i])
	}

	bars, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return err
	}
	bars.Color = color.RGBA{R: 20, G: 80, B: 200, A: 220}
	p.Add(bars)
	p.NominalX(labels...)

	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}

func plotLoss(history []float64, path string) error {
	p := plot.New()
	p.Title.Text = "Network training loss"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "cross entropy"

	xys := make(plotter.XYs, len(history))
	for i, v := range history {
		xys[i] = plotter.XY{X: float64(i + 1), Y: v}
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	line.Width = vg.Points(1.2)
	p.Add(line)
	p.Add(plotter.NewGrid())

	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}
