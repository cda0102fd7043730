package relational

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config is the relational.{host,port,user,password,database} block from
// spec section 6, shaped like the teacher's server.Config
// (Bind/Preflight pair).
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Bind registers flags for the relational backend.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.Host, "relational.host", "127.0.0.1", "relational backend host")
	flags.IntVar(&c.Port, "relational.port", 3306, "relational backend port")
	flags.StringVar(&c.User, "relational.user", "", "relational backend user")
	flags.StringVar(&c.Password, "relational.password", "", "relational backend password")
	flags.StringVar(&c.Database, "relational.database", "", "relational backend database name")
}

// Preflight validates the config.
func (c *Config) Preflight() error {
	if c.Host == "" {
		return errors.New("relational.host unset")
	}
	if c.Database == "" {
		return errors.New("relational.database unset")
	}
	return nil
}
