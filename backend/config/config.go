package config

import "time"

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	Snapshot struct {
		// 每累计 batchSize 条更新请求一次压缩快照
		BatchSize int `mapstructure:"batchSize"`
		// 距上次请求超过 interval 也请求一次
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"snapshot"`
}
