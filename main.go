package main

import (
	"flag"
	"log"

	"AIVideoCreator-server/config"
	"AIVideoCreator-server/models"
	"AIVideoCreator-server/routers"
	"AIVideoCreator-server/routers/api"
	"AIVideoCreator-server/service"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}
	if err := cfg.EnsureStorageDirs(); err != nil {
		log.Fatalf("存储目录初始化失败: %v", err)
	}

	db, err := models.InitDB(cfg)
	if err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}
	store := models.NewStore(db)

	gateway := service.NewMiniMaxClient(cfg)
	media := service.NewFFmpeg(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath)
	storage := service.NewStorage(cfg)

	// 对象存储可选，没配 endpoint 就只出本地文件
	var oss *service.OSS
	if cfg.MinIO.Endpoint != "" {
		oss, err = service.NewOSS(cfg)
		if err != nil {
			log.Printf("MinIO 初始化失败，最终视频仅保留本地文件: %v", err)
			oss = nil
		}
	}

	segments := service.NewSegmentWorkflow(store, gateway, media, storage)
	projects := service.NewProjectWorkflow(store, gateway, media, storage, oss)

	// redis 可选，没配就没有自动轮询，靠 check 接口手动查
	var queue *service.Queue
	if cfg.Redis.Addr != "" {
		queue = service.NewQueue(cfg)
		processor := service.NewProcessor(cfg, segments, queue)
		processor.Start(5)
	}

	h := api.NewHandler(store, projects, segments, storage, queue)
	r := routers.InitRouter(cfg, h)

	log.Printf("Server starting on %s", cfg.Server.Port)
	if err := r.Run(cfg.Server.Port); err != nil {
		log.Fatalf("服务启动失败: %v", err)
	}
}
