package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/qiminjie89/gochat/internal/executor"
	"github.com/qiminjie89/gochat/internal/server"
	"github.com/qiminjie89/gochat/internal/store"
	"github.com/qiminjie89/gochat/pkg/config"
	"github.com/qiminjie89/gochat/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "configs/chatserver.yaml", "config file path")
	register := flag.String("register", "", "register a user (name:password) and exit")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		panic("load config failed: " + err.Error())
	}

	// 初始化日志
	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Sync()

	// 打开用户库。未配置路径时以免认证模式运行,仅用于开发调试。
	var users *store.Store
	if cfg.Database.Path != "" {
		users, err = store.Open(cfg.Database.Path)
		if err != nil {
			logger.Error("open store failed", zap.Error(err))
			os.Exit(1)
		}
		defer users.Close()
	} else {
		logger.Warn("no database configured, accepting all credentials")
	}

	if *register != "" {
		registerUser(users, *register)
		return
	}

	logger.Info("starting chatserver",
		zap.String("config", *configPath),
		zap.String("addr", cfg.Server.Addr),
	)

	// 创建并启动服务
	var auth server.Authenticator
	var contacts server.ContactStore
	var history server.HistoryRecorder
	if users != nil {
		auth = users
		contacts = users
		history = users
	}
	srv := server.NewServer(server.NewRegistry(), server.NewRoomManager(), auth, contacts, history)
	exec := executor.New()
	loop := server.NewEventLoop(cfg, srv, exec)
	if err := loop.Listen(); err != nil {
		logger.Error("listen failed", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := server.NewMonitor(cfg, loop)
	go monitor.Run(ctx)

	if err := loop.Run(ctx); err != nil {
		logger.Error("server loop failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("chatserver stopped")
}

// registerUser 在用户库中登记一个账号
func registerUser(users *store.Store, arg string) {
	if users == nil {
		logger.Error("cannot register user without a database")
		os.Exit(1)
	}
	name, password, ok := strings.Cut(arg, ":")
	if !ok {
		logger.Error("register expects name:password")
		os.Exit(1)
	}
	if err := users.RegisterUser(name, password); err != nil {
		logger.Error("register user failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("user registered", zap.String("user", name))
}
