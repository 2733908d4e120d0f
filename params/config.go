package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Matching holds the policy knobs of the order lifecycle and admission gate.
// The dedup window and IOC expiry are deliberately configuration, not constants.
type Matching struct {
	// DedupWindow is how far back the admission gate looks for an identical
	// non-terminal order before treating a placement as a client retry.
	DedupWindow time.Duration

	// IOCExpiry is the lifetime granted to IOC orders after creation.
	IOCExpiry time.Duration

	// DayCutoffHour is the local hour (0-23) at which DAY orders expire.
	DayCutoffHour int

	// SweepInterval is how often the expiry sweep runs.
	SweepInterval time.Duration

	MaxOrderQuantity     int64 // maximum single-order quantity
	MaxOrderNotional     int64 // maximum price*quantity for LIMIT orders, in ticks
	MaxOpenOrdersPerUser int   // counts PENDING/OPEN/PARTIALLY_FILLED

	// QueueDepth is the per-instrument command buffer size.
	QueueDepth int
}

type Kafka struct {
	Brokers []string // empty disables the Kafka sink (events are logged instead)
}

type API struct {
	Addr           string
	AllowedOrigins []string
}

type Sim struct {
	MarketMaker    bool
	RetailTraders  bool
	QuoteInterval  time.Duration
	RetailInterval time.Duration
}

type Config struct {
	Instruments []string
	DataDir     string
	Matching    Matching
	Kafka       Kafka
	API         API
	Sim         Sim
}

func Default() Config {
	return Config{
		Instruments: []string{"AAPL"},
		DataDir:     "data/openbook",
		Matching: Matching{
			DedupWindow:          5 * time.Second,
			IOCExpiry:            100 * time.Millisecond,
			DayCutoffHour:        17,
			SweepInterval:        10 * time.Second,
			MaxOrderQuantity:     10_000,
			MaxOrderNotional:     10_000_000, // $100,000.00 in ticks
			MaxOpenOrdersPerUser: 100,
			QueueDepth:           1024,
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Sim: Sim{
			MarketMaker:    false,
			RetailTraders:  false,
			QuoteInterval:  5 * time.Second,
			RetailInterval: 15 * time.Second,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and environment
// variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("INSTRUMENTS"); v != "" {
		cfg.Instruments = strings.Split(v, ",")
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	cfg.Matching.DedupWindow = envDuration("DEDUP_WINDOW_MS", cfg.Matching.DedupWindow)
	cfg.Matching.IOCExpiry = envDuration("IOC_EXPIRY_MS", cfg.Matching.IOCExpiry)
	cfg.Matching.SweepInterval = envDuration("SWEEP_INTERVAL_MS", cfg.Matching.SweepInterval)
	cfg.Matching.DayCutoffHour = envInt("DAY_CUTOFF_HOUR", cfg.Matching.DayCutoffHour)
	cfg.Matching.MaxOrderQuantity = envInt64("MAX_ORDER_QTY", cfg.Matching.MaxOrderQuantity)
	cfg.Matching.MaxOrderNotional = envInt64("MAX_ORDER_NOTIONAL", cfg.Matching.MaxOrderNotional)
	cfg.Matching.MaxOpenOrdersPerUser = envInt("MAX_OPEN_ORDERS_PER_USER", cfg.Matching.MaxOpenOrdersPerUser)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("ENABLE_MARKET_MAKER"); v != "" {
		cfg.Sim.MarketMaker = v == "true"
	}
	if v := os.Getenv("ENABLE_RETAIL_SIM"); v != "" {
		cfg.Sim.RetailTraders = v == "true"
	}
	cfg.Sim.QuoteInterval = envDuration("MM_QUOTE_INTERVAL_MS", cfg.Sim.QuoteInterval)
	cfg.Sim.RetailInterval = envDuration("RETAIL_INTERVAL_MS", cfg.Sim.RetailInterval)

	return cfg
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
