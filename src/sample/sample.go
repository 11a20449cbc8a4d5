// sample.go
package sample

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/go-gota/gota/dataframe"

	"DelayPrediction/src/dataset"
)

// Oversample 有放回复制少数类的行直到两类数量持平
// 多数类原样保留，产出约2M行(M为多数类行数)
// 注意：复制出的行在其后的分层拆分里可能同时落进训练与验证两侧，
// 这会抬高验证指标，属于该流程的已知局限，这里按原样保留并在报表中提示
func Oversample(df dataframe.DataFrame, target string, seed int64) (dataframe.DataFrame, error) {
	if err := dataset.RequireColumns(df, target); err != nil {
		return df, err
	}

	byClass := classIndices(df, target)
	if len(byClass) != 2 {
		return df, fmt.Errorf("目标列 %s 有 %d 个类别，平衡只支持两类", target, len(byClass))
	}

	classes := sortedClasses(byClass)
	a, b := classes[0], classes[1]
	minority, majority := a, b
	if len(byClass[a]) > len(byClass[b]) {
		minority, majority = b, a
	}

	need := len(byClass[majority]) - len(byClass[minority])
	idx := make([]int, 0, df.Nrow()+need)
	for i := 0; i < df.Nrow(); i++ {
		idx = append(idx, i)
	}

	rng := rand.New(rand.NewSource(seed))
	minIdx := byClass[minority]
	for i := 0; i < need; i++ {
		idx = append(idx, minIdx[rng.Intn(len(minIdx))])
	}

	out := df.Subset(idx)
	if out.Err != nil {
		return df, fmt.Errorf("过采样失败: %w", out.Err)
	}
	return out, nil
}

// StratifiedSplit 按目标列分层随机拆分
// 每个类别独立洗牌后按ratio取训练行，|训练数-ratio*类别数|不超过1
func StratifiedSplit(df dataframe.DataFrame, target string, ratio float64, seed int64) (train, val dataframe.DataFrame, err error) {
	if ratio <= 0 || ratio >= 1 {
		return df, df, fmt.Errorf("训练集比例 %v 不在 (0,1) 内", ratio)
	}
	if err := dataset.RequireColumns(df, target); err != nil {
		return df, df, err
	}

	byClass := classIndices(df, target)
	rng := rand.New(rand.NewSource(seed))

	var trainIdx, valIdx []int
	for _, class := range sortedClasses(byClass) {
		idx := byClass[class]
		rng.Shuffle(len(idx), func(i, j int) {
			idx[i], idx[j] = idx[j], idx[i]
		})

		nTrain := int(math.Round(ratio * float64(len(idx))))
		trainIdx = append(trainIdx, idx[:nTrain]...)
		valIdx = append(valIdx, idx[nTrain:]...)
	}

	sort.Ints(trainIdx)
	sort.Ints(valIdx)

	train = df.Subset(trainIdx)
	if train.Err != nil {
		return df, df, fmt.Errorf("取训练集失败: %w", train.Err)
	}
	val = df.Subset(valIdx)
	if val.Err != nil {
		return df, df, fmt.Errorf("取验证集失败: %w", val.Err)
	}
	return train, val, nil
}

// ClassCounts 目标列各类别的行数
func ClassCounts(df dataframe.DataFrame, target string) (map[string]int, error) {
	if err := dataset.RequireColumns(df, target); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, r := range df.Col(target).Records() {
		counts[r]++
	}
	return counts, nil
}

func classIndices(df dataframe.DataFrame, target string) map[string][]int {
	byClass := make(map[string][]int)
	for i, r := range df.Col(target).Records() {
		byClass[r] = append(byClass[r], i)
	}
	return byClass
}

func sortedClasses(byClass map[string][]int) []string {
	classes := make([]string, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes
}
