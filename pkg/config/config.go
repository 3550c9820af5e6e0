package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config carries engine-wide settings resolved from the environment.
type Config struct {
	Env string

	Log    LogConfig
	Solver SolverConfig
	GA     GAConfig

	Database DatabaseConfig
	Redis    RedisConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// SolverConfig bounds the CP search.
type SolverConfig struct {
	Seed      int64
	TimeLimit time.Duration
	Workers   int
}

// GAConfig governs the variable-filter evolution.
type GAConfig struct {
	Enabled        bool
	PopulationSize int
	Generations    int
	TimeBudget     time.Duration
	MutationProb   float64
	TournamentSize int
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// ProgressChannel is the pub/sub channel for solve progress events. Empty disables publishing.
	ProgressChannel string
}

// Load resolves configuration from .env and process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	cfg.Env = v.GetString("ENV")

	cfg.Log = LogConfig{
		Level:  v.GetString("SCHED_LOG_LEVEL"),
		Format: v.GetString("SCHED_LOG_FORMAT"),
	}

	cfg.Solver = SolverConfig{
		Seed:      v.GetInt64("SCHED_SEED"),
		TimeLimit: time.Duration(v.GetInt("SCHED_TIME_LIMIT_SECONDS")) * time.Second,
		Workers:   v.GetInt("SCHED_WORKERS"),
	}

	cfg.GA = GAConfig{
		Enabled:        v.GetBool("SCHED_GA_ENABLED"),
		PopulationSize: v.GetInt("SCHED_GA_POPULATION"),
		Generations:    v.GetInt("SCHED_GA_GENERATIONS"),
		TimeBudget:     time.Duration(v.GetInt("SCHED_GA_TIME_BUDGET_SECONDS")) * time.Second,
		MutationProb:   v.GetFloat64("SCHED_GA_MUTATION_PROB"),
		TournamentSize: v.GetInt("SCHED_GA_TOURNAMENT_SIZE"),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:            v.GetString("REDIS_HOST"),
		Port:            v.GetInt("REDIS_PORT"),
		Password:        v.GetString("REDIS_PASSWORD"),
		DB:              v.GetInt("REDIS_DB"),
		ProgressChannel: v.GetString("SCHED_PROGRESS_CHANNEL"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)

	v.SetDefault("SCHED_LOG_LEVEL", "info")
	v.SetDefault("SCHED_LOG_FORMAT", "json")

	v.SetDefault("SCHED_SEED", 0)
	v.SetDefault("SCHED_TIME_LIMIT_SECONDS", 300)
	v.SetDefault("SCHED_WORKERS", 1)

	v.SetDefault("SCHED_GA_ENABLED", true)
	v.SetDefault("SCHED_GA_POPULATION", 30)
	v.SetDefault("SCHED_GA_GENERATIONS", 20)
	v.SetDefault("SCHED_GA_TIME_BUDGET_SECONDS", 90)
	v.SetDefault("SCHED_GA_MUTATION_PROB", 0.15)
	v.SetDefault("SCHED_GA_TOURNAMENT_SIZE", 3)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "timetabling")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SCHED_PROGRESS_CHANNEL", "")
}
