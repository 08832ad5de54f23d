package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"syncServer/backend/config"
	"syncServer/backend/internal/auth"
	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/store"
	"syncServer/backend/internal/ws"
)

func initConfig() (*config.Config, error) {
	cfg := &config.Config{}
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}

	db, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	// Kafka 事件流是带外链路，broker 没配置时引擎照常工作
	var producer sarama.SyncProducer
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		// SyncProducer 必须开启 Return.Successes
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err = sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			log.Fatalf("Failed to connect kafka: %v", err)
		}
		defer producer.Close()
	}

	kafkaSem := collab.NewSemaphore(100)
	appendSem := collab.NewSemaphore(100)

	events := collab.NewDispatcher(producer, cfg.Kafka.Topic, kafkaSem, collab.DispatcherOptions{
		QueueSize:   10_000,
		Workers:     4,
		MaxRetry:    3,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  1 * time.Second,
	})

	presence := cache.NewRedisPresence(rdb)
	verifier := auth.NewVerifier(cfg.Auth.Secret)

	docHub := ws.NewHub(cfg.Snapshot.BatchSize, cfg.Snapshot.Interval)
	boardHub := ws.NewHub(cfg.Snapshot.BatchSize, cfg.Snapshot.Interval)

	manager := ws.NewManager(ws.ManagerOptions{
		Verifier:    verifier,
		DocHub:      docHub,
		DocStore:    store.NewDocUpdateStore(db),
		DocAccess:   store.NewDocumentAccessStore(db),
		BoardHub:    boardHub,
		BoardStore:  store.NewBoardUpdateStore(db),
		BoardAccess: store.NewWhiteboardAccessStore(db),
		Boards:      store.NewWhiteboardStore(db),
		Users:       store.NewUserStore(db),
		Presence:    presence,
		Events:      events,
		Sem:         appendSem,
	})

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		// 允许任意来源（包含 file:// 场景的 Origin: null）
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	sync := r.Group("/sync")
	sync.GET("/doc/ws", manager.DocWebSocket)
	sync.GET("/board/ws", manager.BoardWebSocket)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	port := cfg.Running.Port
	if port == 0 {
		port = 3002
	}
	_ = r.Run(fmt.Sprintf(":%d", port))
}
