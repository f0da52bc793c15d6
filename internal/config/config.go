package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config describes all runtime settings for the server.
//
// Best practice for Go services:
//   - load config once in main
//   - validate
//   - pass further via DI (no global variables)
type Config struct {
	Env string // dev|stage|prod

	Log struct {
		Format string // text|json
	}

	HTTP struct {
		Addr              string
		ReadHeaderTimeout time.Duration
		ReadTimeout       time.Duration
		WriteTimeout      time.Duration
		IdleTimeout       time.Duration
		ShutdownTimeout   time.Duration
	}

	Postgres struct {
		URL           string
		RunMigrations bool
		MigrationsDir string
	}

	Redis struct {
		Addr          string
		DB            int
		StateTTL      time.Duration
		ResultTTL     time.Duration
		CheckpointTTL time.Duration
		SessionTTL    time.Duration
	}

	Auth struct {
		Secret   string
		TokenTTL time.Duration
	}

	Room struct {
		MinPlayers      int
		MaxPlayers      int
		DescribeTurn    time.Duration
		VoteDuration    time.Duration
		ResultDelay     time.Duration
		Heartbeat       time.Duration
		MaxIdle         time.Duration
		CheckpointEvery uint64
	}

	WS struct {
		BatchMessages int
		BatchDelay    time.Duration
	}

	Words struct {
		BankPath string
	}
}

func LoadFromEnv() (Config, error) {
	var c Config

	c.Env = envString("APP_ENV", "dev")
	c.Log.Format = envString("LOG_FORMAT", "text")

	port := envString("PORT", "8080")
	c.HTTP.Addr = envString("HTTP_ADDR", ":"+port)
	c.HTTP.ReadHeaderTimeout = envDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second)
	c.HTTP.ReadTimeout = envDuration("HTTP_READ_TIMEOUT", 0)
	c.HTTP.WriteTimeout = envDuration("HTTP_WRITE_TIMEOUT", 0)
	c.HTTP.IdleTimeout = envDuration("HTTP_IDLE_TIMEOUT", 60*time.Second)
	c.HTTP.ShutdownTimeout = envDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)

	c.Postgres.URL = envString("DATABASE_URL", "postgres://uc:uc@localhost:5432/uc?sslmode=disable")
	c.Postgres.RunMigrations = envBool("RUN_MIGRATIONS", false)
	c.Postgres.MigrationsDir = envString("MIGRATIONS_DIR", "./db/migrations")

	c.Redis.Addr = envString("REDIS_ADDR", "localhost:6379")
	c.Redis.DB = envInt("REDIS_DB", 0)
	c.Redis.StateTTL = envDuration("ROOM_STATE_TTL", time.Hour)
	c.Redis.ResultTTL = envDuration("GAME_RESULT_TTL", 24*time.Hour)
	c.Redis.CheckpointTTL = envDuration("CHECKPOINT_TTL", 24*time.Hour)
	c.Redis.SessionTTL = envDuration("SESSION_TTL", 24*time.Hour)

	c.Auth.Secret = envString("JWT_SECRET", "dev-secret-change-me")
	c.Auth.TokenTTL = envDuration("JWT_TTL", 24*time.Hour)

	c.Room.MinPlayers = envInt("ROOM_MIN_PLAYERS", 3)
	c.Room.MaxPlayers = envInt("ROOM_MAX_PLAYERS", 8)
	c.Room.DescribeTurn = envDuration("DESCRIBE_TURN_DURATION", 60*time.Second)
	c.Room.VoteDuration = envDuration("VOTE_DURATION", 30*time.Second)
	c.Room.ResultDelay = envDuration("RESULT_DELAY", 5*time.Second)
	c.Room.Heartbeat = envDuration("ROOM_HEARTBEAT", 30*time.Second)
	c.Room.MaxIdle = envDuration("ROOM_MAX_IDLE", time.Hour)
	c.Room.CheckpointEvery = uint64(envInt("CHECKPOINT_EVERY", 10))

	c.WS.BatchMessages = envInt("WS_BATCH_MESSAGES", 0) // 0 => frames are sent unbatched
	c.WS.BatchDelay = envDuration("WS_BATCH_DELAY", time.Second)

	c.Words.BankPath = envString("WORD_BANK_PATH", "")

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("HTTP addr is empty")
	}
	if c.Postgres.URL == "" {
		return errors.New("DATABASE_URL is empty")
	}
	if c.Redis.Addr == "" {
		return errors.New("REDIS_ADDR is empty")
	}
	if c.Auth.Secret == "" {
		return errors.New("JWT_SECRET is empty")
	}
	if c.Env != "dev" && c.Auth.Secret == "dev-secret-change-me" {
		return fmt.Errorf("refuse to run with default JWT_SECRET in %s", c.Env)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unsupported LOG_FORMAT=%q (want text|json)", c.Log.Format)
	}
	if c.Room.MinPlayers < 3 {
		return fmt.Errorf("ROOM_MIN_PLAYERS=%d is below the playable minimum of 3", c.Room.MinPlayers)
	}
	if c.Room.MaxPlayers < c.Room.MinPlayers {
		return fmt.Errorf("ROOM_MAX_PLAYERS=%d is below ROOM_MIN_PLAYERS=%d", c.Room.MaxPlayers, c.Room.MinPlayers)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
