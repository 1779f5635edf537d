package main

import (
	"log"

	"github.com/amankumarsingh77/mhr-streamer/internal/config"
	"github.com/amankumarsingh77/mhr-streamer/internal/server"
	"github.com/amankumarsingh77/mhr-streamer/pkg/db/aws"
	"github.com/amankumarsingh77/mhr-streamer/pkg/db/postgres"
	"github.com/amankumarsingh77/mhr-streamer/pkg/db/redis"
	"github.com/amankumarsingh77/mhr-streamer/pkg/kafka"
	"github.com/amankumarsingh77/mhr-streamer/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	redisv8 "github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
)

func main() {
	log.Println("Starting server")
	configFile := "config.yml"
	cfgFile, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("loadConfig: %v", err)
	}
	cfg, err := config.ParseConfig(cfgFile)
	if err != nil {
		log.Fatalf("parseConfig: %v", err)
	}
	appLogger := logger.NewApiLogger(cfg)
	appLogger.InitLogger()
	appLogger.Infof("AppVersion: %s, LogLevel: %s, Mode: %s", cfg.Server.AppVersion, cfg.Logger.Level, cfg.Server.Mode)

	var psqlDB *sqlx.DB
	if cfg.Postgres.Enabled {
		psqlDB, err = postgres.NewPsqlDB(cfg)
		if err != nil {
			appLogger.Warnf("could not connect to db, job history disabled: %s", err)
		} else {
			appLogger.Infof("db connected, status: %#v", psqlDB.Stats())
			defer psqlDB.Close()
		}
	}

	var redisClient *redisv8.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewRedisClient(cfg)
		if err != nil {
			appLogger.Warnf("could not connect to redis, status mirror disabled: %s", err)
		} else {
			appLogger.Infof("redis connected")
			defer redisClient.Close()
		}
	}

	var s3Client *s3.Client
	if cfg.S3.Enabled {
		s3Client, err = aws.NewAWSClient(cfg)
		if err != nil {
			appLogger.Warnf("could not create s3 client, result mirror disabled: %s", err)
		}
	}

	var producer kafka.Producer
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			appLogger.Warnf("could not connect to kafka, job events disabled: %s", err)
		} else {
			defer producer.Close()
		}
	}

	s := server.NewServer(cfg, psqlDB, redisClient, s3Client, producer, appLogger)
	if err = s.Run(); err != nil {
		appLogger.Errorf("server stopped: %s", err)
	}
}
