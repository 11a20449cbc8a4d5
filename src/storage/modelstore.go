// modelstore.go
package storage

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// bundleVersion 档案格式版本，字段变更时递增，旧档案拒绝读取
const bundleVersion = 1

// Bundle 一次训练运行的留档
// 只保存复现该次运行所需的参数与评估指标，不承担在线预测职责
type Bundle struct {
	Version   int
	Name      string
	CreatedAt time.Time
	Seed      int64
	Threshold float64
	Params    map[string]float64
	Metrics   map[string]float64
}

// SaveBundle 先写临时文件再改名，避免进程中断留下半截档案
func SaveBundle(path string, b *Bundle) error {
	if b.Name == "" {
		return fmt.Errorf("模型档案缺少名称")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建档案目录失败: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}

	stamped := *b
	stamped.Version = bundleVersion
	if err := gob.NewEncoder(f).Encode(&stamped); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("编码模型档案失败: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}

func LoadBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开模型档案失败: %w", err)
	}
	defer f.Close()

	var b Bundle
	if err := gob.NewDecoder(f).Decode(&b); err != nil {
		return nil, fmt.Errorf("解码模型档案失败: %w", err)
	}
	if b.Version != bundleVersion {
		return nil, fmt.Errorf("模型档案版本不支持: %d (当前 %d)", b.Version, bundleVersion)
	}
	if b.Name == "" {
		return nil, fmt.Errorf("模型档案缺少名称: %s", path)
	}
	return &b, nil
}
