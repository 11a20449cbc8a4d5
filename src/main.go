package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron"

	"DelayPrediction/src/config"
	"DelayPrediction/src/datapush"
	"DelayPrediction/src/datasource/email"
	"DelayPrediction/src/datasource/file"
	"DelayPrediction/src/pipeline"
	"DelayPrediction/src/report"
	"DelayPrediction/src/storage"
)

func main() {
	var (
		configDir   = flag.String("config", "./config", "配置文件目录")
		mode        = flag.String("mode", "once", "运行模式: once/watch/cron")
		flightPath  = flag.String("flight", "", "航班数据文件，覆盖配置")
		weatherPath = flag.String("weather", "", "天气数据文件，覆盖配置")
		outDir      = flag.String("out", "", "输出目录，覆盖配置")
		seed        = flag.Int64("seed", 0, "随机种子，覆盖配置")
		ratio       = flag.Float64("ratio", 0, "训练集比例，覆盖配置")
	)
	flag.Parse()

	cfg, pcfg, err := config.LoadConfig(*configDir, "config.json", "pipelineconfig.json")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 命令行覆盖配置
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if *seed != 0 {
		pcfg.Seed = *seed
	}
	if *ratio != 0 {
		pcfg.TrainRatio = *ratio
	}

	// 初始化日志系统
	logName := cfg.LogName
	if logName == "" {
		logName = "app.log"
	}
	logger, err := storage.NewLogger(logName)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Close()

	// logrotate搬走日志文件后发SIGHUP让进程重开句柄
	go func() {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		for range hup {
			if err := logger.Reopen(logName); err != nil {
				log.Printf("日志文件重开失败: %v", err)
			}
		}
	}()

	// 实时日志页面
	go startWebUI(logger)

	runner := pipeline.NewRunner(cfg, pcfg, logger)

	flight := *flightPath
	if flight == "" {
		flight = filepath.Join(cfg.DataDir, cfg.FlightFile)
	}
	weather := *weatherPath
	if weather == "" {
		weather = filepath.Join(cfg.DataDir, cfg.WeatherFile)
	}

	switch *mode {
	case "once":
		if err := runOnce(runner, cfg, logger, flight, weather); err != nil {
			logger.Error(err.Error())
			logger.Close()
			os.Exit(1)
		}
	case "watch":
		runWatch(runner, cfg, logger, flight, weather)
	case "cron":
		runCron(runner, cfg, logger, flight, weather)
	default:
		log.Fatalf("未知运行模式: %s", *mode)
	}
}

// runOnce 完整跑一遍：取数、训练评估、出报表、推送
func runOnce(runner *pipeline.Runner, cfg *config.Config, logger *storage.Logger, flight, weather string) error {
	if cfg.LogMaxSize != "" {
		logger.CheckRotate(cfg)
	}

	// 邮箱里有新数据先落盘
	if cfg.Email.Enabled {
		fetchMailData(cfg, logger)
	}

	res, err := runner.Run(flight, weather)
	if err != nil {
		return err
	}

	outDir := cfg.OutputDir
	if outDir == "" {
		outDir = "."
	}

	reportPath := filepath.Join(outDir, fmt.Sprintf("delay_report_%s.xlsx", time.Now().Format("20060102_150405")))
	if err := report.WriteWorkbook(res, reportPath); err != nil {
		logger.Error("生成报表失败: " + err.Error())
		reportPath = ""
	} else {
		logger.Info("报表已生成: " + reportPath)
	}

	plots, err := report.WritePlots(res, outDir)
	if err != nil {
		logger.Error("绘图失败: " + err.Error())
	}
	for _, p := range plots {
		logger.Info("图片已生成: " + p)
	}

	saveBundle(res, outDir, logger)

	summary := report.Summary(res)
	fmt.Println(summary)

	if cfg.DingTalk.Enabled {
		if err := datapush.NewPusher(cfg.DingTalk.Webhook).PushText(summary); err != nil {
			logger.Error("钉钉推送失败: " + err.Error())
		} else {
			logger.Info("钉钉推送成功")
		}
	}

	if cfg.SendEmail.Enabled {
		attachments := plots
		if reportPath != "" {
			attachments = append([]string{reportPath}, plots...)
		}
		if err := email.SendReport(cfg, summary, attachments); err != nil {
			logger.Error("报表邮件发送失败: " + err.Error())
		} else {
			logger.Info("报表邮件发送成功")
		}
	}

	return nil
}

// fetchMailData 检查邮箱并把目标邮件的xlsx附件存进数据目录
func fetchMailData(cfg *config.Config, logger *storage.Logger) {
	emailClient := email.NewEmailClient(
		cfg.Email.Server,
		cfg.Email.Username,
		cfg.Email.Password)

	newEmail, err := email.CheckAndProcessEmails(emailClient, cfg.Email.TargetSubject, logger)
	if err != nil {
		logger.Error("检查处理邮件失败: " + err.Error())
		return
	}
	if newEmail == nil {
		return
	}

	handler := email.NewXLSXAttachmentHandler(cfg.Email.TargetSubject, cfg.DataDir)
	saved, err := handler.Handle(newEmail)
	if err != nil {
		logger.Error(fmt.Sprintf("处理邮件失败(UID:%d): %v", newEmail.UID, err))
		return
	}
	for _, p := range saved {
		logger.Info("附件已保存: " + p)
	}
}

// saveBundle 把选中的模型参数和指标归档，便于下次对比
func saveBundle(res *pipeline.Result, outDir string, logger *storage.Logger) {
	best, ok := report.BestModel(res)
	if !ok {
		return
	}

	b := &storage.Bundle{
		Name:      best.Kind,
		CreatedAt: time.Now(),
		Seed:      res.Seed,
		Threshold: res.BestThreshold.Threshold,
		Params: map[string]float64{
			"mtry":  float64(res.BestMtry),
			"trees": float64(res.BestTrees),
		},
		Metrics: map[string]float64{
			"accuracy":    best.Metrics.Accuracy,
			"precision":   best.Metrics.Precision,
			"sensitivity": best.Metrics.Sensitivity,
			"specificity": best.Metrics.Specificity,
		},
	}

	path := filepath.Join(outDir, "model_bundle.gob")
	if err := storage.SaveBundle(path, b); err != nil {
		logger.Error("模型档案保存失败: " + err.Error())
		return
	}
	logger.Info("模型档案已保存: " + path)
}

// runWatch 盯住数据目录，文件一更新就重跑
func runWatch(runner *pipeline.Runner, cfg *config.Config, logger *storage.Logger, flight, weather string) {
	if err := runOnce(runner, cfg, logger, flight, weather); err != nil {
		logger.Error(err.Error())
	}

	monitor, err := file.NewFileMonitor(cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to watch data dir:", err)
	}
	defer monitor.Close()

	go func() {
		err := monitor.Watch(func(filePath string) {
			ext := filepath.Ext(filePath)
			if ext != ".csv" && ext != ".xlsx" {
				return
			}
			logger.Info("数据文件更新: " + filePath)
			if err := runOnce(runner, cfg, logger, flight, weather); err != nil {
				logger.Error(err.Error())
			}
		})
		if err != nil {
			logger.Error("文件监控失败: " + err.Error())
		}
	}()

	logger.Info("数据目录监控已启动: " + cfg.DataDir + "，按Ctrl+C退出")
	waitForShutdown(logger)
}

// runCron 按配置的间隔定时重跑
func runCron(runner *pipeline.Runner, cfg *config.Config, logger *storage.Logger, flight, weather string) {
	c := cron.New()

	interval := time.Duration(cfg.RunInterval)
	if interval <= 0 {
		interval = time.Hour
	}
	cronSpec := fmt.Sprintf("@every %s", interval)

	err := c.AddFunc(cronSpec, func() {
		logger.Info(fmt.Sprintf("开始定时运行(间隔: %v)...", interval))
		if err := runOnce(runner, cfg, logger, flight, weather); err != nil {
			logger.Error(err.Error())
		}
	})
	if err != nil {
		logger.Error("创建定时任务失败: " + err.Error())
		return // 重要错误应该终止程序
	}

	c.Start()
	defer c.Stop()

	logger.Info(fmt.Sprintf("定时运行已启动(间隔: %v)，按Ctrl+C退出", interval))
	waitForShutdown(logger)
}

// startWebUI 启动一个简单的Web界面来显示实时日志
// 参数:
//
//	logger: 日志记录器实例，用于订阅日志消息
func startWebUI(logger *storage.Logger) {
	// 注册/logs路由的处理函数
	http.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		// 设置响应头
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Transfer-Encoding", "chunked")

		// 创建日志订阅通道
		logChan := logger.Subscribe()

		// 无限循环，持续接收日志消息
		for {
			select {
			case msg := <-logChan:
				// 将日志消息写入HTTP响应
				_, err := fmt.Fprintln(w, msg)
				if err != nil {
					// 如果写入失败(如客户端断开连接)，则退出循环
					return
				}
				// 刷新响应缓冲区，确保消息立即发送到客户端
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				// 如果客户端断开连接，则退出循环
				return
			}
		}
	})

	// 可以在这里添加更多路由或启动服务器的代码
	http.ListenAndServe(":8080", nil)
}

func waitForShutdown(logger *storage.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal: " + sig.String() + ", shutting down...")
	logger.Close()
	os.Exit(0)

}
