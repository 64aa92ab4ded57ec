package migrations

import (
	"gorm.io/gorm"

	"aihelper-server-go/internal/models"
)

// Migration001Initial 初始迁移 - 创建基础表结构
type Migration001Initial struct{}

func (m *Migration001Initial) Version() string {
	return "001_initial"
}

func (m *Migration001Initial) Description() string {
	return "Create users, conversations, messages and message_images tables"
}

func (m *Migration001Initial) Up(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
		&models.MessageImage{},
	)
}

func (m *Migration001Initial) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(
		&models.MessageImage{},
		&models.Message{},
		&models.Conversation{},
		&models.User{},
	)
}
