// 手动为课程补全章节内容
//
// 为指定课程中尚无内容的章节逐个调用模型生成内容，适用于批量导入课程大纲之后。
//
// 用法: go run scripts/backfill_content.go -course 12 [-config configs]

package main

import (
	"context"
	"flag"
	"log"

	"prepcourse_backend/internal/config"
	"prepcourse_backend/internal/repository"
	"prepcourse_backend/internal/service"
	"prepcourse_backend/pkg/database"
	"prepcourse_backend/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	courseID := flag.Uint("course", 0, "课程ID")
	configDir := flag.String("config", "configs", "配置文件目录")
	flag.Parse()

	if *courseID == 0 {
		log.Fatal("必须指定 -course")
	}

	_ = godotenv.Load()
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	db, err := database.InitDB(&cfg.Database, false)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	ctx := context.Background()
	courses := repository.NewCourseRepository(db)
	generator := service.NewContentGenerator(service.NewAIService(cfg.AI))

	course, err := courses.FindWithChapters(ctx, uint(*courseID))
	if err != nil {
		log.Fatalf("课程不存在: %v", err)
	}

	filled := 0
	for _, ch := range course.Chapters {
		if ch.HasContent() {
			continue
		}
		content, err := generator.GenerateChapterContent(ctx, ch.Title, course.Title, ch.Description)
		if err != nil {
			logger.Log.Error("chapter generation failed", zap.Uint("chapterId", ch.ID), zap.Error(err))
			continue
		}
		if err := courses.UpdateChapterContent(ctx, ch.ID, content); err != nil {
			logger.Log.Error("chapter save failed", zap.Uint("chapterId", ch.ID), zap.Error(err))
			continue
		}
		filled++
	}
	log.Printf("完成！共生成 %d/%d 个章节", filled, len(course.Chapters))
}
