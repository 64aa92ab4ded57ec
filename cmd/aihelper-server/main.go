package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"aihelper-server-go/internal/bootstrap"
)

// @title			AI助手服务 API
// @version		1.0
// @description	AI聊天助手后端接口文档
// @BasePath		/api
//
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	fmt.Printf("[%s] [INFO] [引导] 开始启动 aihelper-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "aihelper-server failed: %v\n", err)
		os.Exit(1)
	}
}
