package httptransport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"gorm.io/gorm"

	"aihelper-server-go/internal/models"
	"aihelper-server-go/internal/platform/logging"
)

// StatusHandler exposes the public status endpoint.
type StatusHandler struct {
	db        *gorm.DB
	logger    *logging.Logger
	startedAt time.Time
}

func NewStatusHandler(db *gorm.DB, logger *logging.Logger) *StatusHandler {
	return &StatusHandler{db: db, logger: logger, startedAt: time.Now()}
}

// Register 注册公开状态路由（白名单内）
func (h *StatusHandler) Register(api *gin.RouterGroup) {
	api.GET("/public/status", h.handleStatus)
}

func (h *StatusHandler) handleStatus(c *gin.Context) {
	status := gin.H{
		"status":  "ok",
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
		"version": "1.0.0",
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["mem_percent"] = vm.UsedPercent
		status["mem_total"] = vm.Total
	}

	var userCount, convCount int64
	if err := h.db.Model(&models.User{}).Count(&userCount).Error; err == nil {
		status["users"] = userCount
	}
	if err := h.db.Model(&models.Conversation{}).Count(&convCount).Error; err == nil {
		status["conversations"] = convCount
	}

	RespondSuccess(c, http.StatusOK, status, "")
}
