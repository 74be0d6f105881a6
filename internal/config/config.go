package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type Environment string

const (
	EnvLocal      Environment = "local"
	EnvDev        Environment = "dev"
	EnvStage      Environment = "stage"
	EnvProduction Environment = "production"
)

type ConfigBasicClient struct {
	Username string
	Password string
}

type Config struct {
	App struct {
		Version  string      `env:"APP_VERSION" envDefault:"local"`
		Env      Environment `env:"APP_ENV" envDefault:"local"`
		Timezone string      `env:"APP_TIMEZONE" envDefault:"UTC"`
		LogLevel string      `env:"APP_LOG_LEVEL" envDefault:"INFO"`
	}

	HTTP struct {
		Port string `env:"HTTP_SERVER_PORT" envDefault:"8080"`
		Host string `env:"HTTP_SERVER_HOST" envDefault:"localhost"`
	}

	Auth struct {
		BasicClientsString string `env:"AUTH_BASIC_CLIENTS" envDefault:"coordinator:coordinator"`
		BasicClients       []ConfigBasicClient
		// Секрет HMAC для подписи входящих событий каналов, пустой - без проверки
		ChannelEventsSecret string `env:"AUTH_CHANNEL_EVENTS_SECRET"`
	}

	Storage struct {
		Driver       string `env:"STORAGE_DRIVER" envDefault:"sqlite3"`
		DSN          string `env:"STORAGE_DSN" envDefault:"./data/coordinator.db"`
		MaxOpenConns int    `env:"STORAGE_MAX_OPEN_CONNS" envDefault:"10"`
	}

	Directory struct {
		URL      string        `env:"DIRECTORY_URL"`
		Username string        `env:"DIRECTORY_USERNAME"`
		Password string        `env:"DIRECTORY_PASSWORD"`
		Timeout  time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"5s"`
	}

	Channel struct {
		URL         string        `env:"CHANNEL_GATEWAY_URL"`
		Token       string        `env:"CHANNEL_GATEWAY_TOKEN"`
		CallbackURL string        `env:"CHANNEL_CALLBACK_URL"`
		Timeout     time.Duration `env:"CHANNEL_SEND_TIMEOUT" envDefault:"10s"`
	}

	Telegram struct {
		Enabled bool   `env:"TELEGRAM_ENABLED"`
		Token   string `env:"TELEGRAM_BOT_TOKEN"`
		ChatID  int64  `env:"TELEGRAM_ONCALL_CHAT_ID"`
	}

	Webhook struct {
		URL string `env:"ESCALATION_WEBHOOK_URL"`
	}

	RabbitMq struct {
		Enabled     bool   `env:"RABBITMQ_ENABLED"`
		AmqpUri     string `env:"RABBITMQ_URL"`
		QueueConfig struct {
			CallOffQueueName      string `env:"RABBITMQ_CALL_OFF_QUEUE" envDefault:"coordination.call-offs"`
			CallOffQueueBind      string `env:"RABBITMQ_CALL_OFF_BIND" envDefault:"coordination.call-off.*"`
			CallOffExchange       string `env:"RABBITMQ_CALL_OFF_EXCHANGE"`
			ChannelEventQueueName string `env:"RABBITMQ_CHANNEL_EVENT_QUEUE" envDefault:"coordination.channel-events"`
			ChannelEventQueueBind string `env:"RABBITMQ_CHANNEL_EVENT_BIND" envDefault:"coordination.channel-event.*"`
			ChannelEventExchange  string `env:"RABBITMQ_CHANNEL_EVENT_EXCHANGE"`
		}
	}

	Cache struct {
		Enabled       bool          `env:"CACHE_ENABLED" envDefault:"true"`
		CandidateSize int           `env:"CACHE_CANDIDATE_SIZE" envDefault:"256"`
		CandidateTTL  time.Duration `env:"CACHE_CANDIDATE_TTL" envDefault:"2m"`
		WindowSize    int           `env:"CACHE_WINDOW_SIZE" envDefault:"5000"`
	}

	Outreach struct {
		TiersConfigPath string        `env:"TIERS_CONFIG_PATH"`
		Concurrency     int           `env:"OUTREACH_CONCURRENCY" envDefault:"4"`
		MaxSendAttempts int           `env:"OUTREACH_MAX_SEND_ATTEMPTS" envDefault:"3"`
		BackoffBase     time.Duration `env:"OUTREACH_BACKOFF_BASE" envDefault:"500ms"`
		BackoffMax      time.Duration `env:"OUTREACH_BACKOFF_MAX" envDefault:"10s"`
		SweepInterval   time.Duration `env:"OUTREACH_SWEEP_INTERVAL" envDefault:"30s"`
		OpenGracePeriod time.Duration `env:"OUTREACH_OPEN_GRACE_PERIOD" envDefault:"1m"`
	}

	Guard struct {
		WindowSize int           `env:"GUARD_WINDOW_SIZE" envDefault:"3"`
		Threshold  float64       `env:"GUARD_THRESHOLD" envDefault:"0.85"`
		Horizon    time.Duration `env:"GUARD_HORIZON" envDefault:"30m"`
	}

	Meltdown struct {
		MaxFailures int           `env:"MELTDOWN_MAX_FAILURES" envDefault:"10"`
		Window      time.Duration `env:"MELTDOWN_WINDOW" envDefault:"5m"`
	}

	Ranking struct {
		SkillWeight        float64 `env:"RANKING_SKILL_WEIGHT" envDefault:"0.35"`
		ProximityWeight    float64 `env:"RANKING_PROXIMITY_WEIGHT" envDefault:"0.25"`
		ReliabilityWeight  float64 `env:"RANKING_RELIABILITY_WEIGHT" envDefault:"0.25"`
		AvailabilityWeight float64 `env:"RANKING_AVAILABILITY_WEIGHT" envDefault:"0.15"`
	}
}

func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Приведение окружения к нижнему регистру для унификации
	cfg.App.Env = Environment(strings.ToLower(string(cfg.App.Env)))

	cfg.Auth.BasicClients = parseBasicClients(cfg.Auth.BasicClientsString)

	return cfg, nil
}

func parseBasicClients(raw string) []ConfigBasicClient {
	clients := []ConfigBasicClient{}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 && parts[0] != "" {
			clients = append(clients, ConfigBasicClient{
				Username: parts[0],
				Password: parts[1],
			})
		}
	}
	return clients
}

func (c *Config) IsLocal() bool {
	return c.App.Env == EnvLocal
}

func (c *Config) IsNotLocal() bool {
	return c.App.Env == EnvDev || c.App.Env == EnvStage || c.App.Env == EnvProduction
}

// Location возвращает таймзону агентства, UTC при ошибке.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
