// Package audit implements a durable sink for risk decisions and order
// lifecycle events, grounded on the teacher's Postgres client
// (pkg/conn/pg.go: DSN building via net/url, gorm.Open(postgres.Open)).
package audit

import (
	"fmt"
	"net/url"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultHost    = "localhost"
	defaultPort    = 5432
	defaultSSLMode = "disable"
)

// Option configures the audit database connection.
type Option struct {
	Host, User, Password, Database, SSLMode string
	Port                                     int
	Params                                   map[string]string
	ConnString                               string
	Config                                   *gorm.Config
}

// Client wraps the audit Postgres connection pool.
type Client struct {
	opt Option
	db  *gorm.DB
}

// Open connects to the audit database and auto-migrates AuditRecord.
func Open(opt Option) (*Client, error) {
	dsn, err := opt.dsn()
	if err != nil {
		return nil, err
	}

	cfg := opt.Config
	if cfg == nil {
		cfg = &gorm.Config{}
	}

	db, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&AuditRecord{}); err != nil {
		return nil, err
	}

	return &Client{opt: opt, db: db}, nil
}

// DB returns the underlying gorm handle.
func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Close closes the connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt Option) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}

	host := opt.Host
	if host == "" {
		host = defaultHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	u := &url.URL{Scheme: "postgres", Host: fmt.Sprintf("%s:%d", host, port)}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for k, v := range opt.Params {
		if k == "" {
			continue
		}
		query.Set(k, v)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}
