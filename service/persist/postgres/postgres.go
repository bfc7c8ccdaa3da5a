package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/truly-video/go-truly/env"
	"github.com/truly-video/go-truly/service/logger"

	_ "github.com/lib/pq"
)

func init() {
	env.RegisterValidation("POSTGRES_HOST", "required")
}

type connectionParams struct {
	user     string
	password string
	dbname   string
	host     string
	port     int
}

// ConnectionOption is a setting applied to the connection before it is opened
type ConnectionOption func(c *connectionParams)

// WithUser sets the user to connect to the database with
func WithUser(user string) ConnectionOption {
	return func(c *connectionParams) {
		c.user = user
	}
}

// WithPassword sets the password to connect to the database with
func WithPassword(password string) ConnectionOption {
	return func(c *connectionParams) {
		c.password = password
	}
}

// WithDBName sets the database to connect to
func WithDBName(dbname string) ConnectionOption {
	return func(c *connectionParams) {
		c.dbname = dbname
	}
}

func newConnectionParams() connectionParams {
	return connectionParams{
		user:     env.GetString("POSTGRES_USER"),
		password: env.GetString("POSTGRES_PASSWORD"),
		dbname:   env.GetString("POSTGRES_DB"),
		host:     env.GetString("POSTGRES_HOST"),
		port:     env.GetInt("POSTGRES_PORT"),
	}
}

func (c connectionParams) dsn() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=disable", c.host, c.port, c.user, c.dbname)
	if c.password != "" {
		dsn += fmt.Sprintf(" password=%s", c.password)
	}
	return dsn
}

// NewClient creates a new postgres client
func NewClient(opts ...ConnectionOption) (*sql.DB, error) {
	params := newConnectionParams()
	for _, opt := range opts {
		opt(&params)
	}

	db, err := sql.Open("postgres", params.dsn())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// MustCreateClient panics when the database is unreachable
func MustCreateClient(opts ...ConnectionOption) *sql.DB {
	db, err := NewClient(opts...)
	if err != nil {
		logger.For(nil).WithError(err).Error("could not connect to postgres")
		panic(err)
	}
	return db
}

func checkNoErr(err error) {
	if err != nil {
		panic(err)
	}
}
