package models

import (
	"time"
)

// 用户
type User struct {
	ID        uint      `gorm:"primaryKey"                             json:"id"`
	Username  string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Password  string    `                                              json:"-"` // 密码不下发
	Nickname  string    `gorm:"type:varchar(255)"                      json:"nickname"`
	Email     string    `gorm:"type:varchar(255);index"                json:"email"`
	Mobile    string    `gorm:"type:varchar(20);index"                 json:"mobile"`
	Avatar    string    `gorm:"type:varchar(255)"                      json:"avatar"` // 头像在OSS中的对象键
	Role      string    `gorm:"default:'user'"                         json:"role"`   // 可选值：admin/user
	Status    uint      `gorm:"default:1"                              json:"status"` // 用户状态，1=正常，0=禁用
	CreatedAt time.Time `                                              json:"createdAt"`
	UpdatedAt time.Time `                                              json:"updatedAt"`
	Extra     string    `gorm:"type:text"                              json:"extra"` // 额外信息，JSON格式
}

// Enabled reports whether the account may authenticate.
func (u *User) Enabled() bool {
	return u.Status == 1
}

// 会话：会话属于某个用户，拥有多条消息
type Conversation struct {
	ID        uint      `gorm:"primaryKey"        json:"id"`
	UserID    uint      `gorm:"index;not null"    json:"userId"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	Model     string    `gorm:"type:varchar(64)"  json:"model"` // 会话使用的模型名称
	CreatedAt time.Time `                         json:"createdAt"`
	UpdatedAt time.Time `                         json:"updatedAt"`
}

// 消息
type Message struct {
	ID               uint           `gorm:"primaryKey"          json:"id"`
	ConversationID   uint           `gorm:"index;not null"      json:"conversationId"`
	Role             string         `gorm:"type:varchar(16)"    json:"role"` // user/assistant/system
	Content          string         `gorm:"type:text"           json:"content"`
	ReasoningContent string         `gorm:"type:text"           json:"reasoningContent,omitempty"` // 思考过程内容
	Order            int            `gorm:"column:msg_order"    json:"order"`
	HasImages        bool           `gorm:"default:false"       json:"hasImages"`
	CreatedAt        time.Time      `                           json:"createdAt"`
	UpdatedAt        time.Time      `                           json:"updatedAt"`
	Images           []MessageImage `gorm:"foreignKey:MessageID" json:"images,omitempty"`
}

// 消息图片
type MessageImage struct {
	ID               uint      `gorm:"primaryKey"        json:"id"`
	MessageID        uint      `gorm:"index;not null"    json:"messageId"`
	ConversationID   uint      `gorm:"index"             json:"conversationId"`
	UserID           uint      `gorm:"index"             json:"userId"`
	OriginalFileName string    `gorm:"type:varchar(255)" json:"originalFileName"`
	OSSKey           string    `gorm:"type:varchar(255)" json:"-"` // OSS中的存储路径，不直接下发
	MimeType         string    `gorm:"type:varchar(64)"  json:"mimeType"`
	FileSize         int64     `                         json:"fileSize"`
	OCRText          string    `gorm:"type:text"         json:"ocrText,omitempty"`
	CreatedAt        time.Time `                         json:"createdAt"`
	UpdatedAt        time.Time `                         json:"updatedAt"`
	SignedURL        string    `gorm:"-"                 json:"signedUrl,omitempty"` // 临时签名URL
}
