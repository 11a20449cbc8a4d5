// report.go
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"DelayPrediction/src/pipeline"
)

// WriteWorkbook 把一次运行的全部评估结果写成xlsx报表
// 工作表依次是：概览、模型评估、网格搜索、阈值扫描、特征重要度、局部解释
func WriteWorkbook(res *pipeline.Result, path string) error {
	if res == nil {
		return fmt.Errorf("结果为空，无法生成报表")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建报表目录失败: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "概览"); err != nil {
		return err
	}
	writeOverview(f, "概览", res)

	if err := addSheet(f, "模型评估"); err != nil {
		return err
	}
	writeModels(f, "模型评估", res)

	if err := addSheet(f, "网格搜索"); err != nil {
		return err
	}
	writeGrid(f, "网格搜索", res)

	if err := addSheet(f, "阈值扫描"); err != nil {
		return err
	}
	writeSweep(f, "阈值扫描", res)

	if err := addSheet(f, "特征重要度"); err != nil {
		return err
	}
	writeImportance(f, "特征重要度", res)

	if err := addSheet(f, "局部解释"); err != nil {
		return err
	}
	writeExplanations(f, "局部解释", res)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("保存报表失败: %w", err)
	}
	return nil
}

func addSheet(f *excelize.File, name string) error {
	_, err := f.NewSheet(name)
	return err
}

// setRow 从第row行第1列开始写一行值
func setRow(f *excelize.File, sheet string, row int, values ...interface{}) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(sheet, cell, v)
	}
}

func writeOverview(f *excelize.File, sheet string, res *pipeline.Result) {
	row := 1
	put := func(values ...interface{}) {
		setRow(f, sheet, row, values...)
		row++
	}

	put("开始时间", res.StartedAt.Format("2006-01-02 15:04:05"))
	put("结束时间", res.FinishedAt.Format("2006-01-02 15:04:05"))
	put("随机种子", res.Seed)
	put("航班文件", res.FlightPath)
	put("天气文件", res.WeatherPath)
	put("航班行数", res.FlightRaw, "清洗删除", res.FlightDropped)
	put("天气行数", res.WeatherRaw, "键缺失删除", res.WeatherDropped)
	put("联结行数", res.Joined, "未匹配航班", res.JoinMisses)
	put("联结后二次删除", res.PostJoinDropped)

	for class, n := range res.ClassCounts {
		put("平衡前", class, n)
	}
	for class, n := range res.BalancedCounts {
		put("平衡后", class, n)
	}
	put("训练行数", res.TrainRows, "验证行数", res.ValRows)

	if len(res.DroppedIdentifier) > 0 {
		put("剔除标识列", fmt.Sprintf("%v", res.DroppedIdentifier))
	}
	if len(res.DroppedConstant) > 0 {
		put("剔除常量列", fmt.Sprintf("%v", res.DroppedConstant))
	}
	if len(res.DroppedSparse) > 0 {
		put("剔除高缺失列", fmt.Sprintf("%v", res.DroppedSparse))
	}
	if len(res.DroppedLowVar) > 0 {
		put("剔除低方差列", fmt.Sprintf("%v", res.DroppedLowVar))
	}
	for col, med := range res.Medians {
		put("中位数填充", col, med)
	}

	put("建模特征", fmt.Sprintf("%v", res.Features))

	// 过采样复制的行可能同时落进训练和验证两侧，验证指标会偏乐观
	put("说明", "验证集在过采样之后拆分，重复行可能同时出现在两侧，指标偏乐观")
}

func writeModels(f *excelize.File, sheet string, res *pipeline.Result) {
	setRow(f, sheet, 1, "模型", "准确率", "精确率", "敏感度", "特异度",
		"TP", "FP", "TN", "FN", "训练耗时(秒)", "袋外误差", "k")
	for i, m := range res.Models {
		values := []interface{}{
			m.Kind,
			m.Metrics.Accuracy, m.Metrics.Precision, m.Metrics.Sensitivity, m.Metrics.Specificity,
			m.Confusion.TP, m.Confusion.FP, m.Confusion.TN, m.Confusion.FN,
			m.TrainSecs,
		}
		if m.HasOOB {
			values = append(values, m.OOBError)
		} else {
			values = append(values, "")
		}
		if m.K > 0 {
			values = append(values, m.K)
		} else {
			values = append(values, "")
		}
		setRow(f, sheet, i+2, values...)
	}
}

func writeGrid(f *excelize.File, sheet string, res *pipeline.Result) {
	setRow(f, sheet, 1, "mtry", "树数", "袋外误差", "验证准确率", "得分", "选中")
	for i, opt := range res.Grid {
		oob := interface{}("")
		if opt.HasOOB {
			oob = opt.OOBError
		}
		chosen := ""
		if opt.Mtry == res.BestMtry && opt.Trees == res.BestTrees {
			chosen = "是"
		}
		setRow(f, sheet, i+2, opt.Mtry, opt.Trees, oob, opt.ValAccuracy, opt.Score, chosen)
	}
}

func writeSweep(f *excelize.File, sheet string, res *pipeline.Result) {
	setRow(f, sheet, 1, "阈值", "准确率", "精确率", "敏感度", "特异度", "均值", "选中")
	for i, p := range res.Sweep {
		chosen := ""
		if p.Threshold == res.BestThreshold.Threshold {
			chosen = "是"
		}
		setRow(f, sheet, i+2, p.Threshold,
			p.Metrics.Accuracy, p.Metrics.Precision, p.Metrics.Sensitivity, p.Metrics.Specificity,
			p.Mean, chosen)
	}
}

func writeImportance(f *excelize.File, sheet string, res *pipeline.Result) {
	setRow(f, sheet, 1, "特征", "重要度")
	imp := forestImportance(res)
	if imp == nil {
		return
	}
	for i, name := range res.Features {
		if i >= len(imp) {
			break
		}
		setRow(f, sheet, i+2, name, imp[i])
	}
}

func writeExplanations(f *excelize.File, sheet string, res *pipeline.Result) {
	setRow(f, sheet, 1, "验证行", "真实类别", "预测概率", "R2", "特征", "贡献")
	row := 2
	for _, s := range res.Explained {
		for j, c := range s.Explanation.Contributions {
			if j == 0 {
				setRow(f, sheet, row, s.Row, s.Truth, s.Explanation.Predicted, s.Explanation.R2,
					c.Feature, c.Weight)
			} else {
				setRow(f, sheet, row, "", "", "", "", c.Feature, c.Weight)
			}
			row++
		}
	}
}

func forestImportance(res *pipeline.Result) []float64 {
	for _, m := range res.Models {
		if m.Kind == "forest" && len(m.Importance) > 0 {
			return m.Importance
		}
	}
	return nil
}
