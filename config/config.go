package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ActionTokenConfig struct {
	Secret   string `yaml:"secret"`
	TTLHours int    `yaml:"ttl_hours"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type CRMConfig struct {
	BaseURL string `yaml:"base_url"`
}

type WorkerConfig struct {
	// Cron expressions for the two sweeps.
	PendingSweepSpec string `yaml:"pending_sweep_spec"`
	BatchSweepSpec   string `yaml:"batch_sweep_spec"`
	SweepLimit       int    `yaml:"sweep_limit"`
}

type Config struct {
	DB          DBConfig          `yaml:"db"`
	MQ          MQConfig          `yaml:"mq"`
	Redis       RedisConfig       `yaml:"redis"`
	JWT         JWTConfig         `yaml:"jwt"`
	ActionToken ActionTokenConfig `yaml:"action_token"`
	Server      ServerConfig      `yaml:"server"`
	CRM         CRMConfig         `yaml:"crm"`
	Worker      WorkerConfig      `yaml:"worker"`
}

func Load() *Config {
	f, err := os.Open("config.yaml")
	if err != nil {
		log.Fatalf("failed to open config.yaml: %v", err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config.yaml: %v", err)
	}

	overrideFromEnv(&cfg)

	if cfg.Worker.PendingSweepSpec == "" {
		cfg.Worker.PendingSweepSpec = "* * * * *" // every minute
	}
	if cfg.Worker.BatchSweepSpec == "" {
		cfg.Worker.BatchSweepSpec = "*/5 * * * *" // every five minutes
	}
	if cfg.Worker.SweepLimit == 0 {
		cfg.Worker.SweepLimit = 200
	}

	return &cfg
}

func overrideFromEnv(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DB.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.DB.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DB.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DB.Name = name
	}

	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.MQ.URL = url
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}
	if secret := os.Getenv("ACTION_TOKEN_SECRET"); secret != "" {
		cfg.ActionToken.Secret = secret
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}
	if baseURL := os.Getenv("CRM_BASE_URL"); baseURL != "" {
		cfg.CRM.BaseURL = baseURL
	}
}
