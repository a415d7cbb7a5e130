package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type DB struct {
	URL             string        `env:"DATABASE_URL,required"`
	MigrationsPath  string        `env:"MIGRATIONS_PATH" envDefault:"file://db/migrations"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"16"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"8"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"15m"`
}

type HTTP struct {
	Port string `env:"PORT" envDefault:"8080"`
}

type Kafka struct {
	// BootstrapServers empty disables the event mirror entirely.
	BootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	Topic            string `env:"KAFKA_TALLY_TOPIC" envDefault:"tally-events"`
}

type Temple struct {
	DefaultID   string `env:"DEFAULT_TEMPLE_ID" envDefault:"MAIN"`
	DefaultName string `env:"DEFAULT_TEMPLE_NAME" envDefault:"Main Temple"`
}

type Auth struct {
	// AuthorityGrant is the operator-provisioned credential required to
	// register with the authority role. Leaving it unset disables authority
	// registration.
	AuthorityGrant string `env:"AUTHORITY_GRANT"`
}

type Config struct {
	DB     DB
	HTTP   HTTP
	Kafka  Kafka
	Temple Temple
	Auth   Auth
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
