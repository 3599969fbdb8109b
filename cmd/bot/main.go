package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"hybrid-grid-bot-go/internal/bot"
	"hybrid-grid-bot-go/internal/config"
	"hybrid-grid-bot-go/internal/downloader"
	"hybrid-grid-bot-go/internal/engine"
	"hybrid-grid-bot-go/internal/exchange"
	"hybrid-grid-bot-go/internal/feed"
	"hybrid-grid-bot-go/internal/logger"
	"hybrid-grid-bot-go/internal/metrics"
	"hybrid-grid-bot-go/internal/models"
	"hybrid-grid-bot-go/internal/persistence"
	"hybrid-grid-bot-go/internal/reporter"
	"hybrid-grid-bot-go/internal/statemanager"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// extractSymbolFromPath 从数据文件路径中提取交易对名称
// 例如: "data/BNBUSDT-1m-2025-03-15-2025-06-15.csv" -> "BNBUSDT"
func extractSymbolFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.Split(name, "-")[0]
}

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file (.json, .yaml or .yml)")
	mode := flag.String("mode", "replay", "running mode: replay, paper or download")
	dataPath := flag.String("data", "", "path to historical kline CSV for replay")
	symbol := flag.String("symbol", "", "symbol override (e.g., BNBUSDT)")
	startDate := flag.String("start", "", "start date for download/replay (YYYY-MM-DD)")
	endDate := flag.String("end", "", "end date for download/replay (YYYY-MM-DD)")
	resume := flag.Bool("resume", false, "restore the stored engine snapshot before a replay")
	reset := flag.Bool("reset", false, "delete the stored engine snapshot before starting")
	flag.Parse()

	// 在加载配置前先用默认配置初始化日志
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}
	if *symbol != "" {
		cfg.Symbol = strings.ToUpper(*symbol)
	}

	// 使用文件中的配置重新初始化日志
	logger.InitLogger(cfg.LogConfig)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "download":
		start, end, err := parseRange(*startDate, *endDate)
		if err != nil {
			logger.S().Fatal(err)
		}
		path := downloader.FileName("data", cfg.Symbol, cfg.Interval, start, end)
		if err := downloader.NewKlineDownloader().DownloadKlines(ctx, cfg.Symbol, cfg.Interval, path, start, end); err != nil {
			logger.S().Fatalf("下载数据失败: %v", err)
		}
	case "replay", "backtest":
		path, err := resolveDataPath(ctx, cfg, *dataPath, *startDate, *endDate)
		if err != nil {
			logger.S().Fatal(err)
		}
		if err := runReplayMode(cfg, path, *resume, *reset); err != nil {
			logger.S().Fatal(err)
		}
	case "paper":
		if err := runPaperMode(ctx, cfg, *reset); err != nil {
			logger.S().Fatal(err)
		}
	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 'replay'、'paper' 或 'download'。", *mode)
	}
}

func parseRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err1 := time.Parse("2006-01-02", startDate)
	end, err2 := time.Parse("2006-01-02", endDate)
	if err1 != nil || err2 != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("日期格式错误，请使用 YYYY-MM-DD 格式。start: %v, end: %v", err1, err2)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("结束日期 %s 必须晚于开始日期 %s", endDate, startDate)
	}
	return start, end, nil
}

// resolveDataPath 返回回放数据文件；给出日期范围时先下载
func resolveDataPath(ctx context.Context, cfg *models.Config, dataPath, startDate, endDate string) (string, error) {
	if startDate != "" && endDate != "" {
		start, end, err := parseRange(startDate, endDate)
		if err != nil {
			return "", err
		}
		path := downloader.FileName("data", cfg.Symbol, cfg.Interval, start, end)
		if err := downloader.NewKlineDownloader().DownloadKlines(ctx, cfg.Symbol, cfg.Interval, path, start, end); err != nil {
			return "", fmt.Errorf("下载数据失败: %w", err)
		}
		return path, nil
	}
	if dataPath == "" {
		return "", errors.New("回放模式需要通过 --data 或 --start/--end 参数指定数据源")
	}
	if s := extractSymbolFromPath(dataPath); s != "" {
		cfg.Symbol = s
	}
	return dataPath, nil
}

// openState 打开快照仓库并启动状态管理器
func openState(cfg *models.Config, reset bool) (persistence.StateRepository, *statemanager.StateManager, *models.BotState, error) {
	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if reset {
		if err := repo.DeleteState(cfg.Symbol); err != nil {
			logger.S().Warnf("删除快照失败: %v", err)
		}
	}
	saved, err := repo.LoadState(cfg.Symbol)
	if err != nil {
		repo.Close()
		return nil, nil, nil, fmt.Errorf("读取快照失败: %w", err)
	}
	sm := statemanager.NewStateManager(cfg.Symbol, saved, repo, logger.L())
	sm.Start()
	return repo, sm, saved, nil
}

func newStrategy(cfg *models.Config) (engine.Strategy, error) {
	registry := engine.NewRegistry()
	if err := engine.RegisterBuiltins(registry); err != nil {
		return nil, err
	}
	return registry.New(cfg.Strategy, cfg.Symbol, cfg.Grid)
}

func serveMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		logger.S().Infof("Prometheus 指标监听于 %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.S().Errorf("指标服务退出: %v", err)
		}
	}()
}

// runReplayMode 用历史数据驱动引擎和模拟账户
func runReplayMode(cfg *models.Config, dataPath string, resume, reset bool) error {
	logger.S().Info("--- 启动回放模式 ---")
	bars, err := feed.ReadCSV(dataPath)
	if err != nil {
		return err
	}

	strategy, err := newStrategy(cfg)
	if err != nil {
		return err
	}
	repo, sm, saved, err := openState(cfg, reset)
	if err != nil {
		return err
	}
	defer repo.Close()
	defer sm.Stop()
	serveMetrics(cfg.MetricsAddr)

	paper := exchange.NewPaperExchange(cfg, logger.L())
	runner := bot.NewRunner(cfg, strategy, paper, sm, logger.L())
	if resume {
		runner.Restore(saved)
	}
	if err := runner.RunBacktest(bars); err != nil {
		return err
	}

	processed, rebalances, rejected := runner.Stats()
	reporter.GenerateReport(os.Stdout, paper, reporter.RunInfo{
		Symbol:     cfg.Symbol,
		Source:     dataPath,
		Start:      bars[0].Timestamp,
		End:        bars[len(bars)-1].Timestamp,
		Bars:       processed,
		Rebalances: rebalances,
		Rejected:   rejected,
	})
	return nil
}

// runPaperMode 订阅实时K线，用模拟账户执行意图
func runPaperMode(ctx context.Context, cfg *models.Config, reset bool) error {
	logger.S().Info("--- 启动实时模拟模式 ---")
	strategy, err := newStrategy(cfg)
	if err != nil {
		return err
	}
	repo, sm, saved, err := openState(cfg, reset)
	if err != nil {
		return err
	}
	defer repo.Close()
	defer sm.Stop()
	serveMetrics(cfg.MetricsAddr)

	paper := exchange.NewPaperExchange(cfg, logger.L())
	runner := bot.NewRunner(cfg, strategy, paper, sm, logger.L())

	// 用最近的历史K线预热，避免启动后长时间等待
	if warm, err := recentBars(ctx, cfg); err != nil {
		logger.S().Warnf("预热数据下载失败，将等待实时K线预热: %v", err)
	} else {
		runner.Seed(warm)
	}
	runner.Restore(saved)

	bars := make(chan models.Bar, 16)
	stream := feed.NewKlineStream(cfg.WSBaseURL, cfg.Symbol, cfg.Interval, logger.L())

	// 任一方退出都会取消另一方
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stream.Run(gctx, bars)
		return nil
	})
	g.Go(func() error {
		return runner.Run(gctx, bars)
	})
	err = g.Wait()
	processed, rebalances, rejected := runner.Stats()
	logger.S().Infof("模拟结束: 处理 %d 根K线，网格重置 %d 次，拒单 %d 次", processed, rebalances, rejected)
	return err
}

func recentBars(ctx context.Context, cfg *models.Config) ([]models.Bar, error) {
	interval, err := feed.IntervalDuration(cfg.Interval)
	if err != nil {
		return nil, err
	}
	end := time.Now().UTC().Truncate(interval)
	start := end.Add(-time.Duration(cfg.HistoryWindow) * interval)
	path := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s-warmup-%d.csv", cfg.Symbol, cfg.Interval, end.Unix()))
	defer os.Remove(path)
	if err := downloader.NewKlineDownloader().DownloadKlines(ctx, cfg.Symbol, cfg.Interval, path, start, end); err != nil {
		return nil, err
	}
	return feed.ReadCSV(path)
}
