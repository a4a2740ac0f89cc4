package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"

	defaultMySQLPort = "3306"
)

type Config struct {
	Storage string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string

	HTTPAddr string
	GRPCAddr string

	// RedisAddr empty disables the request guard.
	RedisAddr string

	// KafkaBrokers empty disables loan events.
	KafkaBrokers []string
	KafkaTopic   string

	LogLevel  string
	LogFormat string
}

// Load reads the environment, after loading the given .env files when they exist.
// Variables already set in the environment win over the files.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Config{
		Storage:      strings.ToLower(getEnv("ARMORY_STORAGE", StorageMySQL)),
		DBHost:       getEnv("ARMORY_DB_HOST", "localhost:"+defaultMySQLPort),
		DBUser:       getEnv("ARMORY_DB_USER", "root"),
		DBPassword:   os.Getenv("ARMORY_DB_PASSWORD"),
		DBName:       getEnv("ARMORY_DB_NAME", "ArmoryAtlas"),
		HTTPAddr:     getEnv("ARMORY_HTTP_ADDR", ":8080"),
		GRPCAddr:     getEnv("ARMORY_GRPC_ADDR", ":50051"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "loan-events"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Storage {
	case StorageMySQL:
		if c.DBName == "" {
			return errors.New("ARMORY_DB_NAME is required for mysql storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("ARMORY_STORAGE must be %q or %q, got %q", StorageMySQL, StorageMemory, c.Storage)
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// DSN builds the go-sql-driver DSN. A host without a port gets 3306.
func (c Config) DSN() string {
	addr := c.DBHost
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultMySQLPort)
	}

	mc := mysql.NewConfig()
	mc.User = c.DBUser
	mc.Passwd = c.DBPassword
	mc.Net = "tcp"
	mc.Addr = addr
	mc.DBName = c.DBName
	mc.ParseTime = true
	return mc.FormatDSN()
}

// NewLogger builds a production zap logger, or a development one for console output.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
