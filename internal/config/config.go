package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	MarketData MarketData `mapstructure:"marketdata"`
	Market     Market     `mapstructure:"market"`
	Account    Account    `mapstructure:"account"`
	Logger     Logger     `mapstructure:"logger"`
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
}

// MarketData holds the configuration for the quote and historical data provider.
type MarketData struct {
	BaseURL        string  `mapstructure:"base_url"`
	StreamURL      string  `mapstructure:"stream_url"`
	ApiKey         string  `mapstructure:"apiKey"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Market holds the market calendar data. Holidays are plain YYYY-MM-DD
// strings so the calendar can be swapped per market without code changes.
type Market struct {
	Holidays []string `mapstructure:"holidays"`
}

// Account holds the configuration for the simulated brokerage account.
type Account struct {
	UserID              string  `mapstructure:"user_id"`
	StartingBuyingPower float64 `mapstructure:"starting_buying_power"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("marketdata.rate_limit", 20)      // requests per second
	viper.SetDefault("marketdata.rate_limit_burst", 5) // burst size
	viper.SetDefault("account.user_id", "default")
	viper.SetDefault("account.starting_buying_power", 10000)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.dsn", "portfolio.db")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
