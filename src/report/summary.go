// summary.go
package report

import (
	"fmt"
	"sort"
	"strings"

	"DelayPrediction/src/pipeline"
)

// BestModel 四项指标均值最高的模型
func BestModel(res *pipeline.Result) (pipeline.ModelResult, bool) {
	if len(res.Models) == 0 {
		return pipeline.ModelResult{}, false
	}
	best := res.Models[0]
	for _, m := range res.Models[1:] {
		if m.Metrics.Mean() > best.Metrics.Mean() {
			best = m
		}
	}
	return best, true
}

// Summary 一段纯文本运行简报，钉钉推送和邮件正文共用
func Summary(res *pipeline.Result) string {
	var b strings.Builder

	b.WriteString("【延误预测运行简报】\n")
	fmt.Fprintf(&b, "时间: %s ~ %s\n",
		res.StartedAt.Format("2006-01-02 15:04:05"),
		res.FinishedAt.Format("15:04:05"))
	fmt.Fprintf(&b, "样本: 航班 %d 行, 天气 %d 行, 联结 %d 行, 未匹配 %d 行\n",
		res.FlightRaw, res.WeatherRaw, res.Joined, res.JoinMisses)
	fmt.Fprintf(&b, "平衡: %s -> %s\n", countLine(res.ClassCounts), countLine(res.BalancedCounts))
	fmt.Fprintf(&b, "拆分: 训练 %d 行, 验证 %d 行\n", res.TrainRows, res.ValRows)

	for _, m := range res.Models {
		fmt.Fprintf(&b, "模型 %s: 准确率 %.4f, 精确率 %.4f, 敏感度 %.4f, 特异度 %.4f\n",
			m.Kind, m.Metrics.Accuracy, m.Metrics.Precision, m.Metrics.Sensitivity, m.Metrics.Specificity)
	}
	if best, ok := BestModel(res); ok {
		fmt.Fprintf(&b, "最优模型: %s (四项均值 %.4f)\n", best.Kind, best.Metrics.Mean())
	}

	fmt.Fprintf(&b, "网格搜索: mtry=%d, trees=%d\n", res.BestMtry, res.BestTrees)
	fmt.Fprintf(&b, "判定阈值: %.2f (模型 %s, 四项均值 %.4f)\n",
		res.BestThreshold.Threshold, res.SweepModel, res.BestThreshold.Mean)

	for _, s := range res.Explained {
		if len(s.Explanation.Contributions) == 0 {
			continue
		}
		top := s.Explanation.Contributions[0]
		fmt.Fprintf(&b, "解释 验证行%d(%s): 预测 %.2f, 首要特征 %s(%+.3f), R2 %.2f\n",
			s.Row, s.Truth, s.Explanation.Predicted, top.Feature, top.Weight, s.Explanation.R2)
	}

	return b.String()
}

// countLine 类别计数排成稳定的一行
func countLine(counts map[string]int) string {
	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	parts := make([]string, len(classes))
	for i, c := range classes {
		parts[i] = fmt.Sprintf("%s %d", c, counts[c])
	}
	return strings.Join(parts, " / ")
}
