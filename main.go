package main

import (
	"log"

	"github.com/GrainArc/RasterLab/config"
	"github.com/GrainArc/RasterLab/models"
	"github.com/GrainArc/RasterLab/routers"
	"github.com/gin-gonic/gin"
)

func main() {
	// 配置了数据库名则连PostgreSQL，否则用本地SQLite
	var err error
	if config.MainConfig.Dbname != "" {
		err = models.InitDB()
	} else {
		err = models.InitDatabase()
	}
	if err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}

	r := gin.Default()
	routers.RasterLabRouters(r)

	log.Printf("RasterLab 服务启动: %s", config.MainRouter)
	if err := r.Run(config.MainRouter); err != nil {
		log.Fatalf("服务启动失败: %v", err)
	}
}
