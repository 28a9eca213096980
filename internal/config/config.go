package config

import (
	"time"

	"github.com/spf13/viper"
)

type AppConf struct {
	Env             string `mapstructure:"env"`
	Port            int    `mapstructure:"port"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
}

type MongoConf struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConf struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConf struct {
	Brokers   []string `mapstructure:"brokers"`
	TopicPush string   `mapstructure:"topic_push"`
}

type JWTConf struct {
	Secret string `mapstructure:"secret"`
}

type WSConf struct {
	PingIntervalSeconds     int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds    int   `mapstructure:"write_deadline_seconds"`
	HandshakeTimeoutSeconds int   `mapstructure:"handshake_timeout_seconds"`
	MaxMessageSizeBytes     int64 `mapstructure:"max_message_size_bytes"`
	EventsPerSecond         int   `mapstructure:"events_per_second"`
	EventBurst              int   `mapstructure:"event_burst"`
}

type AWSConf struct {
	Region     string `mapstructure:"region"`
	Bucket     string `mapstructure:"bucket"`
	Endpoint   string `mapstructure:"endpoint"`
	PublicRead bool   `mapstructure:"public_read"`
	PresignTTL int    `mapstructure:"presign_ttl_seconds"`
}

type Config struct {
	App   AppConf   `mapstructure:"app"`
	Mongo MongoConf `mapstructure:"mongodb"`
	Redis RedisConf `mapstructure:"redis"`
	Kafka KafkaConf `mapstructure:"kafka"`
	JWT   JWTConf   `mapstructure:"jwt"`
	WS    WSConf    `mapstructure:"ws"`
	AWS   AWSConf   `mapstructure:"aws"`
	Log   struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	// derived
	ShutdownTimeout  time.Duration
	PingInterval     time.Duration
	WriteDeadline    time.Duration
	HandshakeTimeout time.Duration
	PresignTTL       time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.App.Port == 0 {
		cfg.App.Port = 3737
	}
	if cfg.App.ShutdownSeconds == 0 {
		cfg.App.ShutdownSeconds = 15
	}
	if cfg.WS.PingIntervalSeconds == 0 {
		cfg.WS.PingIntervalSeconds = 25
	}
	if cfg.WS.WriteDeadlineSeconds == 0 {
		cfg.WS.WriteDeadlineSeconds = 10
	}
	if cfg.WS.HandshakeTimeoutSeconds == 0 {
		cfg.WS.HandshakeTimeoutSeconds = 5
	}
	if cfg.WS.MaxMessageSizeBytes == 0 {
		cfg.WS.MaxMessageSizeBytes = 65536
	}
	if cfg.WS.EventsPerSecond == 0 {
		cfg.WS.EventsPerSecond = 20
	}
	if cfg.WS.EventBurst == 0 {
		cfg.WS.EventBurst = 40
	}
	if cfg.AWS.PresignTTL == 0 {
		cfg.AWS.PresignTTL = 600
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "messenger"
	}
	cfg.ShutdownTimeout = time.Duration(cfg.App.ShutdownSeconds) * time.Second
	cfg.PingInterval = time.Duration(cfg.WS.PingIntervalSeconds) * time.Second
	cfg.WriteDeadline = time.Duration(cfg.WS.WriteDeadlineSeconds) * time.Second
	cfg.HandshakeTimeout = time.Duration(cfg.WS.HandshakeTimeoutSeconds) * time.Second
	cfg.PresignTTL = time.Duration(cfg.AWS.PresignTTL) * time.Second
	return &cfg, nil
}
