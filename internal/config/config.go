package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Storage   StorageConfig
	Optimizer OptimizerConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	Enabled           bool
	RedisURL          string
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int
	PolicyTTLSeconds  int
	SummaryTTLSeconds int
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// OptimizerConfig holds every tunable the optimization core recognizes.
// The core never reads environment variables directly; this struct is built
// once at process start and passed down.
type OptimizerConfig struct {
	MaxIterations       int
	InitialSamples      int
	AcquisitionStarts   int
	ExplorationXi       float64
	ConvergenceTol      float64
	ConvergencePatience int

	PredictionHorizon int
	ControlHorizon    int
	LearningRate      float64
	DiscountFactor    float64
	QBlendWeight      float64

	ServiceLevelTarget        float64
	HoldingCostRate           float64
	StockoutPenaltyMultiplier float64
	OrderCostFixed            float64
	WarehouseCapacity         int
	BudgetCeiling             float64

	LookbackDays     int
	StrategicCadence time.Duration
	TacticalCadence  time.Duration
	MaxParallelRuns  int
	RunTimeout       time.Duration
	QTablePath       string
}

var (
	once     sync.Once
	instance *Config
	loadErr  error
)

// Load builds the process-wide configuration from the environment (and a .env
// file when present). It is safe to call from multiple goroutines; the first
// call wins. Out-of-range tunables fail the load rather than being clamped.
func Load() (*Config, error) {
	once.Do(func() {
		_ = godotenv.Load()

		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 15)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 30)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "replenish")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_POLICY_TTL_SECONDS", 300)
		viper.SetDefault("CACHE_SUMMARY_TTL_SECONDS", 60)
		viper.SetDefault("STORAGE_ENABLED", false)
		viper.SetDefault("STORAGE_ENDPOINT", "")
		viper.SetDefault("STORAGE_ACCESS_KEY", "")
		viper.SetDefault("STORAGE_SECRET_KEY", "")
		viper.SetDefault("STORAGE_BUCKET", "replenish-reports")
		viper.SetDefault("STORAGE_REGION", "us-east-1")
		viper.SetDefault("STORAGE_USE_SSL", true)

		viper.SetDefault("OPT_MAX_ITERATIONS", 50)
		viper.SetDefault("OPT_INITIAL_SAMPLES", 8)
		viper.SetDefault("OPT_ACQUISITION_STARTS", 10)
		viper.SetDefault("OPT_EXPLORATION_XI", 0.01)
		viper.SetDefault("OPT_CONVERGENCE_TOL", 1e-4)
		viper.SetDefault("OPT_CONVERGENCE_PATIENCE", 5)
		viper.SetDefault("OPT_PREDICTION_HORIZON", 7)
		viper.SetDefault("OPT_CONTROL_HORIZON", 3)
		viper.SetDefault("OPT_LEARNING_RATE", 0.005)
		viper.SetDefault("OPT_DISCOUNT_FACTOR", 0.95)
		viper.SetDefault("OPT_Q_BLEND_WEIGHT", 0.1)
		viper.SetDefault("OPT_SERVICE_LEVEL_TARGET", 0.95)
		viper.SetDefault("OPT_HOLDING_COST_RATE", 0.02)
		viper.SetDefault("OPT_STOCKOUT_PENALTY_MULTIPLIER", 3.0)
		viper.SetDefault("OPT_ORDER_COST_FIXED", 25.0)
		viper.SetDefault("OPT_WAREHOUSE_CAPACITY", 10000)
		viper.SetDefault("OPT_BUDGET_CEILING", 100000.0)
		viper.SetDefault("OPT_LOOKBACK_DAYS", 30)
		viper.SetDefault("OPT_STRATEGIC_CADENCE", "168h")
		viper.SetDefault("OPT_TACTICAL_CADENCE", "30m")
		viper.SetDefault("OPT_MAX_PARALLEL_RUNS", 4)
		viper.SetDefault("OPT_RUN_TIMEOUT", "5m")
		viper.SetDefault("OPT_QTABLE_PATH", "")

		viper.AutomaticEnv()

		cfg := &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			Cache: CacheConfig{
				Enabled:           viper.GetBool("CACHE_ENABLED"),
				RedisURL:          viper.GetString("REDIS_URL"),
				RedisHost:         viper.GetString("REDIS_HOST"),
				RedisPort:         viper.GetString("REDIS_PORT"),
				RedisPassword:     viper.GetString("REDIS_PASSWORD"),
				RedisDB:           viper.GetInt("REDIS_DB"),
				PolicyTTLSeconds:  viper.GetInt("CACHE_POLICY_TTL_SECONDS"),
				SummaryTTLSeconds: viper.GetInt("CACHE_SUMMARY_TTL_SECONDS"),
			},
			Storage: StorageConfig{
				Enabled:   viper.GetBool("STORAGE_ENABLED"),
				Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
				AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
				SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
				Bucket:    viper.GetString("STORAGE_BUCKET"),
				Region:    viper.GetString("STORAGE_REGION"),
				UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
			},
			Optimizer: OptimizerConfig{
				MaxIterations:             viper.GetInt("OPT_MAX_ITERATIONS"),
				InitialSamples:            viper.GetInt("OPT_INITIAL_SAMPLES"),
				AcquisitionStarts:         viper.GetInt("OPT_ACQUISITION_STARTS"),
				ExplorationXi:             viper.GetFloat64("OPT_EXPLORATION_XI"),
				ConvergenceTol:            viper.GetFloat64("OPT_CONVERGENCE_TOL"),
				ConvergencePatience:       viper.GetInt("OPT_CONVERGENCE_PATIENCE"),
				PredictionHorizon:         viper.GetInt("OPT_PREDICTION_HORIZON"),
				ControlHorizon:            viper.GetInt("OPT_CONTROL_HORIZON"),
				LearningRate:              viper.GetFloat64("OPT_LEARNING_RATE"),
				DiscountFactor:            viper.GetFloat64("OPT_DISCOUNT_FACTOR"),
				QBlendWeight:              viper.GetFloat64("OPT_Q_BLEND_WEIGHT"),
				ServiceLevelTarget:        viper.GetFloat64("OPT_SERVICE_LEVEL_TARGET"),
				HoldingCostRate:           viper.GetFloat64("OPT_HOLDING_COST_RATE"),
				StockoutPenaltyMultiplier: viper.GetFloat64("OPT_STOCKOUT_PENALTY_MULTIPLIER"),
				OrderCostFixed:            viper.GetFloat64("OPT_ORDER_COST_FIXED"),
				WarehouseCapacity:         viper.GetInt("OPT_WAREHOUSE_CAPACITY"),
				BudgetCeiling:             viper.GetFloat64("OPT_BUDGET_CEILING"),
				LookbackDays:              viper.GetInt("OPT_LOOKBACK_DAYS"),
				StrategicCadence:          viper.GetDuration("OPT_STRATEGIC_CADENCE"),
				TacticalCadence:           viper.GetDuration("OPT_TACTICAL_CADENCE"),
				MaxParallelRuns:           viper.GetInt("OPT_MAX_PARALLEL_RUNS"),
				RunTimeout:                viper.GetDuration("OPT_RUN_TIMEOUT"),
				QTablePath:                viper.GetString("OPT_QTABLE_PATH"),
			},
		}

		if err := cfg.Optimizer.Validate(); err != nil {
			loadErr = err
			return
		}
		instance = cfg
	})

	return instance, loadErr
}

// Validate rejects out-of-range tunables up front so a bad deployment fails
// at startup instead of producing skewed recommendations.
func (c *OptimizerConfig) Validate() error {
	if c.ServiceLevelTarget <= 0 || c.ServiceLevelTarget > 1 {
		return fmt.Errorf("service level target must be in (0,1], got %v", c.ServiceLevelTarget)
	}
	if c.LearningRate <= 0 || c.LearningRate >= 1 {
		return fmt.Errorf("learning rate must be in (0,1), got %v", c.LearningRate)
	}
	if c.DiscountFactor < 0 || c.DiscountFactor >= 1 {
		return fmt.Errorf("discount factor must be in [0,1), got %v", c.DiscountFactor)
	}
	if c.QBlendWeight < 0 || c.QBlendWeight > 1 {
		return fmt.Errorf("q blend weight must be in [0,1], got %v", c.QBlendWeight)
	}
	if c.PredictionHorizon < 1 {
		return fmt.Errorf("prediction horizon must be >= 1, got %d", c.PredictionHorizon)
	}
	if c.ControlHorizon < 1 || c.ControlHorizon > c.PredictionHorizon {
		return fmt.Errorf("control horizon must be in [1,%d], got %d", c.PredictionHorizon, c.ControlHorizon)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.InitialSamples < 2 {
		return fmt.Errorf("initial samples must be >= 2, got %d", c.InitialSamples)
	}
	if c.HoldingCostRate < 0 || c.StockoutPenaltyMultiplier < 0 || c.OrderCostFixed < 0 {
		return fmt.Errorf("cost rates must be non-negative")
	}
	if c.WarehouseCapacity < 1 {
		return fmt.Errorf("warehouse capacity must be >= 1, got %d", c.WarehouseCapacity)
	}
	if c.LookbackDays < 7 {
		return fmt.Errorf("lookback days must be >= 7, got %d", c.LookbackDays)
	}
	if c.MaxParallelRuns < 1 {
		return fmt.Errorf("max parallel runs must be >= 1, got %d", c.MaxParallelRuns)
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("run timeout must be positive, got %v", c.RunTimeout)
	}
	return nil
}
