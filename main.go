// @title LMS 测验后端 API
// @version 1.0
// @description LMS 测验作答服务：开始/恢复作答、保存答案、提交评分与结果查询。

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"lms_quiz_backend/internal/app"
	"lms_quiz_backend/internal/config"
	"lms_quiz_backend/pkg/logger"
	"log"
	"path/filepath"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

func main() {
	// 命令行参数
	configDir := flag.String("config", "configs", "配置文件目录（读取其中的 config.yaml）")
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	flag.Parse()

	// .env 不存在时忽略
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 设置迁移标志
	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg, filepath.Join(*configDir, "config.yaml"))
	defer logger.Log.Sync()

	// 迁移完成后直接退出
	if *migrateOnly {
		log.Println("数据库迁移完成，退出程序")
		return
	}

	application.Run()
}
