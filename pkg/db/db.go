package db

import (
	"fmt"
	"net/url"

	"github.com/tuncanbit/pricefeed/pkg/config"
)

// GetDBDSN prefers an explicit connection URL and otherwise assembles one
// from the discrete database settings.
func GetDBDSN(rawURL string, config *config.DatabaseConfig) string {
	if rawURL != "" {
		return rawURL
	}

	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(config.User, config.Password),
		Host:     fmt.Sprintf("%s:%s", config.Host, config.Port),
		Path:     "/" + config.DBName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}
