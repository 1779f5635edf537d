package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Logger    Logger
	Worker    WorkerConfig
	Estimator EstimatorConfig
	Media     MediaConfig
	Postgres  DBConfig
	Redis     RedisConfig
	S3        S3Config
	Kafka     KafkaConfig
}

type ServerConfig struct {
	AppVersion   string
	Port         string
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    string
}

type WorkerConfig struct {
	OutputDir   string
	MaxCPUUsage float64
}

type EstimatorConfig struct {
	Command       string
	Args          []string
	Timeout       time.Duration
	BBoxThreshold float64
}

type MediaConfig struct {
	FFmpegPath  string
	FFprobePath string
}

type DBConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	PgDriver string
}

type RedisConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	DB            int
	MinIdleConns  int
	PoolSize      int
	PoolTimeout   int
	UseTLS        bool
	StatusKey     string
	StatusTTL     time.Duration
}

type S3Config struct {
	Enabled      bool
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	OutputBucket string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type Logger struct {
	Development       bool
	DisableCaller     bool
	DisableStacktrace bool
	Encoding          string
	Level             string
}

func LoadConfig(filename string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFound) {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	c, _ := ParseConfig(v)
	return c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.appversion", "1.0.0")
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "Development")
	v.SetDefault("server.readtimeout", 30*time.Second)
	v.SetDefault("server.writetimeout", 60*time.Second)
	v.SetDefault("server.bodylimit", "2G")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.level", "info")
	v.SetDefault("worker.outputdir", "output")
	v.SetDefault("worker.maxcpuusage", 0)
	v.SetDefault("estimator.command", "python3")
	v.SetDefault("estimator.args", []string{"tools/estimator_worker.py"})
	v.SetDefault("estimator.timeout", 2*time.Minute)
	v.SetDefault("estimator.bboxthreshold", 0.8)
	v.SetDefault("media.ffmpegpath", "ffmpeg")
	v.SetDefault("media.ffprobepath", "ffprobe")
	v.SetDefault("postgres.pgdriver", "pgx")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("redis.statuskey", "mhr:status")
	v.SetDefault("redis.statusttl", time.Hour)
	v.SetDefault("kafka.topic", "mhr.jobs")
}
