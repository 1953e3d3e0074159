package config

import (
	"net"
	"os"

	"github.com/go-sql-driver/mysql"
)

const defaultDSN = "cabinair:cabinair@tcp(localhost:3306)/cabinair?parseTime=true"

// GetDatabaseDSN returns the alert log connection string.
// DB_* variables win, then DATABASE_DSN, then alert_log.dsn from the loaded config.
func GetDatabaseDSN() string {
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	database := os.Getenv("DB_NAME")

	if user != "" && password != "" && host != "" && port != "" && database != "" {
		cfg := mysql.NewConfig()
		cfg.User = user
		cfg.Passwd = password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(host, port)
		cfg.DBName = database
		cfg.ParseTime = true
		return cfg.FormatDSN()
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		return dsn
	}

	if instance != nil && instance.AlertLog.DSN != "" {
		return instance.AlertLog.DSN
	}

	return defaultDSN
}
