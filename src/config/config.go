package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	Email struct {
		Enabled       bool     `json:"enabled"`        // 是否在跑数前先去邮箱取数
		Server        string   `json:"server"`         // 邮件服务器地址
		Username      string   `json:"username"`       // 邮箱用户名
		Password      string   `json:"password"`       // 邮箱密码
		TargetSubject string   `json:"target_subject"` // 需要匹配的邮件主题
		CheckInterval Duration `json:"check_interval"` // 检查新邮件的间隔时间
	} `json:"email"`

	DataDir     string   `json:"data_dir"` // 数据文件所在目录
	FlightFile  string   `json:"flight_file"`
	WeatherFile string   `json:"weather_file"`
	SheetName   string   `json:"sheet_name"` // xlsx数据所在工作表
	HeaderRow   int      `json:"header_row"` // xlsx表头所在行，从0开始
	OutputDir   string   `json:"output_dir"` // 报表与图片输出目录
	LogName     string   `json:"log_name"`
	LogMaxSize  string   `json:"log_max_size"`
	RunInterval Duration `json:"run_interval"` // cron模式的重跑间隔

	SendEmail struct {
		Enabled  bool   `json:"enabled"` // 是否把评估报表寄出去
		Server   string `json:"server"`
		Username string `json:"username"`
		Password string `json:"password"`
		To       string `json:"to"`
		Subject  string `json:"subject"`
	} `json:"send_email"`

	DingTalk struct {
		Enabled bool   `json:"enabled"` // 是否推送运行简报
		Webhook string `json:"webhook"`
	} `json:"dingtalk"`
}

// TableSchema 描述一张输入表
// Columns是规范列名到文件表头的映射，管线内部只用规范名；
// Drop列出编号类的标识列，进模型前由清洗阶段剔除
type TableSchema struct {
	Columns map[string]string `json:"columns"`
	Drop    []string          `json:"drop"`
	GBK     bool              `json:"gbk"` // 文件是否为GBK编码
}

// PipelineConfig 训练管线参数，单独一个文件便于运行人员调参
type PipelineConfig struct {
	Seed       int64   `json:"seed"`
	TrainRatio float64 `json:"train_ratio"`

	MaxRowLoss      float64 `json:"max_row_loss"`      // 整行删除允许的最大损失比例
	SparseColCutoff float64 `json:"sparse_col_cutoff"` // 缺失比例超过该值的列整列删除
	VarianceCutoff  float64 `json:"variance_cutoff"`   // 方差低于峰值列该比例的列按无信息列剔除

	SweepStart float64 `json:"sweep_start"`
	SweepEnd   float64 `json:"sweep_end"`
	SweepStep  float64 `json:"sweep_step"`
	SweepModel string  `json:"sweep_model"` // 阈值扫描与局部解释用哪个模型

	KNN struct {
		K int `json:"k"` // 0表示取round(sqrt(训练样本数))
	} `json:"knn"`

	Forest struct {
		Trees     int   `json:"trees"`
		Mtry      int   `json:"mtry"` // 0表示取sqrt(特征数)
		MaxDepth  int   `json:"max_depth"`
		MinLeaf   int   `json:"min_leaf"`
		GridMtry  []int `json:"grid_mtry"`
		GridTrees []int `json:"grid_trees"`
	} `json:"forest"`

	Network struct {
		Hidden    []int   `json:"hidden"`
		LearnRate float64 `json:"learn_rate"`
		Epochs    int     `json:"epochs"`
		BatchSize int     `json:"batch_size"`
	} `json:"network"`

	Explain struct {
		Perturbations int     `json:"perturbations"`
		Distance      string  `json:"distance"`     // euclidean或manhattan
		KernelWidth   float64 `json:"kernel_width"` // 0表示取0.75*sqrt(特征数)
		TopFeatures   int     `json:"top_features"` // 0表示全部特征
		Samples       int     `json:"samples"`      // 解释验证集前多少条
	} `json:"explain"`

	Target   string `json:"target"`
	Positive string `json:"positive"`
	Negative string `json:"negative"`

	JoinKeys []string `json:"join_keys"`

	Flight  TableSchema `json:"flight"`
	Weather TableSchema `json:"weather"`

	ExportPrepared bool `json:"export_prepared"` // 是否把建模数据另存一份xlsx
}

var (
	once             sync.Once
	instance         *Config
	pipelineInstance *PipelineConfig
	mu               sync.RWMutex
)

func LoadConfig(jsonFolder, jsonFile, pipeJsonFile string) (*Config, *PipelineConfig, error) {
	var err error
	once.Do(func() {
		instance, pipelineInstance, err = loadConfigs(jsonFolder, jsonFile, pipeJsonFile)
	})
	return instance, pipelineInstance, err
}

func loadConfigs(jsonFolder, jsonFile, pipeJsonFile string) (*Config, *PipelineConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	pipeConfigFile := filepath.Join(jsonFolder, pipeJsonFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	pipeConfigData, err := readFile(pipeConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取管线配置文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	pcfgChan := make(chan *PipelineConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parsePipelineConfig(pipeConfigData, pcfgChan, errChan)

	cfg, pcfg, err := waitForResults(cfgChan, pcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	pcfg.ApplyDefaults()
	return cfg, pcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parsePipelineConfig(data []byte, resultChan chan<- *PipelineConfig, errChan chan<- error) {
	var pcfg PipelineConfig
	if err := json.Unmarshal(data, &pcfg); err != nil {
		errChan <- fmt.Errorf("解析PipelineConfig失败: %w", err)
		return
	}
	resultChan <- &pcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	pcfgChan <-chan *PipelineConfig,
	errChan <-chan error,
) (*Config, *PipelineConfig, error) {
	var (
		cfg    *Config
		pcfg   *PipelineConfig
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case p := <-pcfgChan:
			pcfg = p
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || pcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, pcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	// 使用固定格式字符串
	msg := "配置加载遇到多个错误:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

// ApplyDefaults 给未填写的管线参数补上参考运行的取值
func (pc *PipelineConfig) ApplyDefaults() {
	if pc.Seed == 0 {
		pc.Seed = 123
	}
	if pc.TrainRatio == 0 {
		pc.TrainRatio = 0.70
	}
	if pc.MaxRowLoss == 0 {
		pc.MaxRowLoss = 0.01
	}
	if pc.SparseColCutoff == 0 {
		pc.SparseColCutoff = 0.5
	}
	if pc.VarianceCutoff == 0 {
		pc.VarianceCutoff = 1e-3
	}
	if pc.SweepStart == 0 {
		pc.SweepStart = 0.30
	}
	if pc.SweepEnd == 0 {
		pc.SweepEnd = 0.70
	}
	if pc.SweepStep == 0 {
		pc.SweepStep = 0.01
	}
	if pc.SweepModel == "" {
		pc.SweepModel = "forest"
	}
	if pc.Forest.Trees == 0 {
		pc.Forest.Trees = 100
	}
	if pc.Forest.MinLeaf == 0 {
		pc.Forest.MinLeaf = 1
	}
	if len(pc.Network.Hidden) == 0 {
		pc.Network.Hidden = []int{64, 32}
	}
	if pc.Network.LearnRate == 0 {
		pc.Network.LearnRate = 0.001
	}
	if pc.Network.Epochs == 0 {
		pc.Network.Epochs = 10
	}
	if pc.Network.BatchSize == 0 {
		pc.Network.BatchSize = 32
	}
	if pc.Explain.Perturbations == 0 {
		pc.Explain.Perturbations = 500
	}
	if pc.Explain.Distance == "" {
		pc.Explain.Distance = "euclidean"
	}
	if pc.Explain.TopFeatures == 0 {
		pc.Explain.TopFeatures = 6
	}
	if pc.Explain.Samples == 0 {
		pc.Explain.Samples = 5
	}
	if pc.Target == "" {
		pc.Target = "arr_delay"
	}
	if pc.Positive == "" {
		pc.Positive = "Delay"
	}
	if pc.Negative == "" {
		pc.Negative = "Not Delay"
	}
	if len(pc.JoinKeys) == 0 {
		pc.JoinKeys = []string{"month", "day", "hour"}
	}
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
// 用于从JSON字符串解析Duration
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
// 用于将Duration序列化为JSON字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (ts *TableSchema) GetColumn(name string) string {
	mu.RLock()
	defer mu.RUnlock()
	return ts.Columns[name]
}

func (ts *TableSchema) SetColumn(name, value string) {
	mu.Lock()
	defer mu.Unlock()
	if ts.Columns == nil {
		ts.Columns = make(map[string]string)
	}
	ts.Columns[name] = value
}
