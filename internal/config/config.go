package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AMQPConfig holds broker connection parameters for the snapshot
// captured events queue
type AMQPConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Exchange       string
	SnapshotsQueue string
}

// Config holds all configuration for the service
type Config struct {
	HTTPListenAddr   string
	DirSnapshotsRoot string
	DirPreviewsRoot  string
	PlaceholderPath  string
	PreviewWidths    []int
	AMQP             AMQPConfig
	DB               DBConfig
}

// Load reads configuration from the environment, loading a .env file
// first when one is present.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	} else {
		slog.Warn("No .env file found, using environment variables directly.")
	}

	config := &Config{
		HTTPListenAddr:   os.Getenv("HTTP_LISTEN_ADDR"),
		DirSnapshotsRoot: os.Getenv("DIR_SNAPSHOTS_ROOT"),
		DirPreviewsRoot:  os.Getenv("DIR_PREVIEWS_ROOT"),
		PlaceholderPath:  os.Getenv("PLACEHOLDER_IMAGE_PATH"),
	}

	if config.HTTPListenAddr == "" {
		config.HTTPListenAddr = ":8080" // default value
	}

	widths, err := parsePreviewWidths(os.Getenv("PREVIEW_WIDTHS_PX"))
	if err != nil {
		return nil, err
	}
	config.PreviewWidths = widths

	config.AMQP = AMQPConfig{
		Host:           os.Getenv("RABBITMQ_HOST"),
		Port:           os.Getenv("RABBITMQ_PORT"),
		User:           os.Getenv("RABBITMQ_USER"),
		Password:       os.Getenv("RABBITMQ_PASS"),
		Exchange:       os.Getenv("AMQP_EXCHANGE"),
		SnapshotsQueue: os.Getenv("AMQP_QUEUE_SNAPSHOT_CAPTURED"),
	}

	// Load database configuration
	dbConfig := DBConfig{
		Host:     os.Getenv("DB_HOST"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Database: os.Getenv("DB_NAME"),
		SSLMode:  os.Getenv("DB_SSL_MODE"),
	}

	if port, err := strconv.Atoi(os.Getenv("DB_PORT")); err == nil {
		dbConfig.Port = port
	} else {
		dbConfig.Port = 5432 // default PostgreSQL port
	}

	if maxOpenConns, err := strconv.Atoi(os.Getenv("DB_MAX_OPEN_CONNS")); err == nil {
		dbConfig.MaxOpenConns = maxOpenConns
	} else {
		dbConfig.MaxOpenConns = 25 // default value
	}

	if maxIdleConns, err := strconv.Atoi(os.Getenv("DB_MAX_IDLE_CONNS")); err == nil {
		dbConfig.MaxIdleConns = maxIdleConns
	} else {
		dbConfig.MaxIdleConns = 25 // default value
	}

	if connMaxLifetime, err := strconv.Atoi(os.Getenv("DB_CONN_MAX_LIFETIME")); err == nil {
		dbConfig.ConnMaxLifetime = time.Duration(connMaxLifetime) * time.Second
	} else {
		dbConfig.ConnMaxLifetime = 5 * time.Minute // default value
	}

	config.DB = dbConfig

	// Validate required fields
	if config.DirSnapshotsRoot == "" {
		return nil, fmt.Errorf("DIR_SNAPSHOTS_ROOT is required")
	}
	if config.DirPreviewsRoot == "" {
		return nil, fmt.Errorf("DIR_PREVIEWS_ROOT is required")
	}
	if config.PlaceholderPath == "" {
		return nil, fmt.Errorf("PLACEHOLDER_IMAGE_PATH is required")
	}
	if config.AMQP.Host == "" {
		return nil, fmt.Errorf("RABBITMQ_HOST is required")
	}
	if config.AMQP.Exchange == "" {
		return nil, fmt.Errorf("AMQP_EXCHANGE is required")
	}
	if config.AMQP.SnapshotsQueue == "" {
		return nil, fmt.Errorf("AMQP_QUEUE_SNAPSHOT_CAPTURED is required")
	}
	if config.DB.Host == "" {
		return nil, fmt.Errorf("DB_HOST is required")
	}
	if config.DB.User == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	if config.DB.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if config.DB.Database == "" {
		return nil, fmt.Errorf("DB_NAME is required")
	}

	return config, nil
}

func parsePreviewWidths(widthsStr string) ([]int, error) {
	if widthsStr == "" {
		slog.Warn(
			"PREVIEW_WIDTHS_PX is not set. Using defaults.",
			"default",
			"320,640",
		)
		widthsStr = "320,640"
	}

	var widths []int
	for _, ws := range strings.Split(widthsStr, ",") {

		// Trim spaces in case of "320, 640"
		width, err := strconv.Atoi(strings.TrimSpace(ws))
		if err != nil {
			return nil, fmt.Errorf(
				"invalid preview width in PREVIEW_WIDTHS_PX: %s",
				ws,
			)
		}

		if width <= 0 {
			return nil, fmt.Errorf(
				"preview width must be a positive integer: %d",
				width,
			)
		}

		widths = append(widths, width)
	}

	return widths, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

// URI returns the AMQP broker connection string
func (c *AMQPConfig) URI() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}
