package db

import "github.com/kongfuworld/settlement/internal/config"

type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	Path            string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

func FromAppConfig(cfg config.Config) Config {
	return Config{
		Type:            cfg.DBType,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		Path:            cfg.DBPath,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}
}
