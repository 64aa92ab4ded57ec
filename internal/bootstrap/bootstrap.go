// Package bootstrap wires configuration, storage, domain services and the
// HTTP transport into a running server with graceful shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	_ "aihelper-server-go/docs" // 注册生成的OpenAPI文档
	"aihelper-server-go/internal/domain/auth"
	"aihelper-server-go/internal/domain/avatar"
	"aihelper-server-go/internal/domain/chat"
	"aihelper-server-go/internal/domain/conversation"
	"aihelper-server-go/internal/domain/eventbus"
	"aihelper-server-go/internal/domain/image"
	"aihelper-server-go/internal/domain/llm"
	"aihelper-server-go/internal/domain/verification"
	"aihelper-server-go/internal/platform/config"
	platformerrors "aihelper-server-go/internal/platform/errors"
	"aihelper-server-go/internal/platform/logging"
	"aihelper-server-go/internal/platform/storage"
	httptransport "aihelper-server-go/internal/transport/http"
)

// Run 启动整个服务生命周期，负责加载配置、初始化依赖和优雅关停。
func Run(ctx context.Context) error {
	result, err := config.NewLoader().WithDotEnv(true).Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "bootstrap.Run", "加载配置失败", err)
	}
	cfg := result.Config

	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "bootstrap.Run", "初始化日志失败", err)
	}
	defer logger.Close()
	logger.InfoTag("引导", "配置加载完成: %s", result.Path)

	if cfg.JWT.Secret == config.DefaultSecret {
		logger.WarnTag("引导", "JWT密钥仍为默认值，请通过 JWT_SECRET 设置生产密钥")
	}

	db, err := storage.Open(cfg.Database.DSN, logger)
	if err != nil {
		return err
	}
	if err := storage.InitAdminUser(db, auth.HashPassword("123456")); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	defer cancelPing()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.WarnTag("引导", "Redis连接失败，验证码功能不可用: %v", err)
	}

	bus := eventbus.New(4)
	defer bus.Close()

	codec, err := auth.NewTokenCodec(cfg.JWT.Secret, cfg.JWT.TTL.Std(), logger)
	if err != nil {
		return err
	}

	codes := verification.NewService(rdb, verification.LogSender{Logger: logger}, logger, cfg.Verification.CodeTTL.Std())
	authSvc := auth.NewService(db, codec, codes, bus, logger)

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		logger.WarnTag("引导", "LLM客户端未启用: %v", err)
		llmClient = nil
	}

	var store image.ObjectStore
	if cfg.OSS.AccessKeyID != "" {
		store, err = image.NewAliyunStore(cfg.OSS)
		if err != nil {
			return err
		}
	} else {
		logger.WarnTag("引导", "OSS未配置，使用内存对象存储（仅供开发）")
		store = image.NewMemoryStore()
	}

	images := image.NewService(db, store, image.NewRecognizer(cfg.OCR), logger, cfg.Chat.MaxImageSize, cfg.OSS.URLExpire.Std())

	convs := conversation.NewService(db, logger)
	titler := conversation.NewTitler(convs, llmClient)
	if err := bus.Subscribe(eventbus.EventChatCompleted, func(data eventbus.ChatCompletedData) {
		titler.GenerateIfNeeded(data.ConversationID, data.MessageCount)
	}); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "bootstrap.Run", "订阅标题生成事件失败", err)
	}

	tracker := chat.NewTracker(cfg.Chat.TrackerTTL.Std())
	defer tracker.Close()
	chatSvc := chat.NewService(tracker, convs, images, llmClient, bus, logger)

	avatars := avatar.NewService(db, avatar.NewPromptGenerator(newRand()), newSynthesizer(cfg, logger), store, logger)
	if err := avatars.SubscribeRegistrations(bus); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "bootstrap.Run", "订阅注册事件失败", err)
	}

	router, err := httptransport.Build(httptransport.Options{
		Config:         cfg,
		Logger:         logger,
		AuthMiddleware: httptransport.Authenticator(codec, authSvc, logger),
		StaticRoot:     cfg.Web.StaticDir,
	})
	if err != nil {
		return err
	}

	httptransport.NewAuthHandler(authSvc, logger).Register(router.API)
	httptransport.NewVerificationHandler(codes, logger).Register(router.API)
	httptransport.NewStatusHandler(db, logger).Register(router.API)
	httptransport.NewChatHandler(chatSvc, logger).Register(router.Secured)
	httptransport.NewConversationHandler(convs, images, logger).Register(router.Secured)
	httptransport.NewMessageHandler(convs, images, logger).Register(router.Secured)
	httptransport.NewUserHandler(db, authSvc, avatars, images, convs, logger).Register(router.API, router.Secured)
	httptransport.RegisterDocs(router.Engine, logger)

	router.Engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			httptransport.RespondError(c, http.StatusNotFound, "接口不存在", nil)
			return
		}
		c.File(staticIndex(cfg))
	})

	return serve(ctx, cfg, logger, router.Engine)
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger, handler http.Handler) error {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.IP, cfg.Server.Port),
		Handler: handler,
	}

	group.Go(func() error {
		logger.InfoTag("HTTP", "服务已启动，访问地址 http://localhost:%d", cfg.Server.Port)
		logger.InfoTag("HTTP", "在线文档入口: http://localhost:%d/docs", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP服务启动失败: %v", err)
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.ErrorTag("HTTP", "HTTP服务关闭失败: %v", err)
			return err
		}
		logger.InfoTag("HTTP", "HTTP服务已优雅关闭")
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.InfoTag("引导", "所有服务已成功关闭")
	return nil
}

// newSynthesizer returns nil when avatar generation is not configured so
// the avatar service degrades instead of failing startup.
func newSynthesizer(cfg *config.Config, logger *logging.Logger) avatar.ImageSynthesizer {
	synth, err := avatar.NewSynthesizer(cfg.Avatar)
	if err != nil {
		logger.WarnTag("引导", "头像生成未启用: %v", err)
		return nil
	}
	return synth
}

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func staticIndex(cfg *config.Config) string {
	root := cfg.Web.StaticDir
	if root == "" {
		root = "./web"
	}
	return root + "/index.html"
}
