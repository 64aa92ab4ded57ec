package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"aihelper-server-go/internal/models"
	"aihelper-server-go/internal/platform/errors"
	"aihelper-server-go/internal/platform/logging"
	"aihelper-server-go/internal/platform/storage/migrations"
)

// Open 打开sqlite数据库并执行迁移
func Open(dsn string, logger *logging.Logger) (*gorm.DB, error) {
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "storage.mkdir", "创建数据目录失败", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "打开数据库失败", err)
	}

	manager := NewMigrationManager(db)
	manager.AddMigration(&migrations.Migration001Initial{})
	if err := manager.RunMigrations(); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.InfoTag("存储", "数据库初始化完成: %s", dsn)
	}
	return db, nil
}

// InitAdminUser 初始化管理员用户，仅当不存在任何管理员时执行。
// passwordHash 由调用方使用认证域的哈希函数计算。
func InitAdminUser(db *gorm.DB, passwordHash string) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", "admin").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	adminUser := &models.User{
		Username:  "admin",
		Password:  passwordHash,
		Nickname:  "管理员",
		Role:      "admin",
		Status:    1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(adminUser).Error; err != nil {
		return err
	}
	fmt.Println("管理员用户初始化成功 admin:123456, 请及时修改密码")
	return nil
}
