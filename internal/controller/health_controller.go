package controller

import (
	"context"
	"net/http"
	"time"

	"prepcourse_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type HealthController struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewHealthController(db *gorm.DB, rdb *redis.Client) *HealthController {
	return &HealthController{DB: db, Redis: rdb}
}

// @Summary 健康检查
// @Description 检查数据库和 Redis 状态
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.ErrorResponse
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	components := gin.H{"database": "up"}
	redisState := "disabled"

	g, gctx := errgroup.WithContext(pingCtx)
	g.Go(func() error {
		sqlDB, err := c.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(gctx)
	})
	if c.Redis != nil {
		redisState = "up"
		g.Go(func() error {
			return c.Redis.Ping(gctx).Err()
		})
	}
	components["redis"] = redisState

	if err := g.Wait(); err != nil {
		util.ErrorWithDetails(ctx, http.StatusServiceUnavailable, "Service unavailable", err.Error())
		return
	}

	util.Success(ctx, gin.H{
		"status":     "ok",
		"components": components,
	})
}
