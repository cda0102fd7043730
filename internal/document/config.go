package document

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config is the document.{host,port,database,user,password} block from
// spec section 6, mirrored after relational.Config's Bind/Preflight pair.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Bind registers flags for the document backend.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.Host, "document.host", "127.0.0.1", "document backend host")
	flags.IntVar(&c.Port, "document.port", 27017, "document backend port")
	flags.StringVar(&c.User, "document.user", "", "document backend user")
	flags.StringVar(&c.Password, "document.password", "", "document backend password")
	flags.StringVar(&c.Database, "document.database", "", "document backend database name")
}

// Preflight validates the config.
func (c *Config) Preflight() error {
	if c.Host == "" {
		return errors.New("document.host unset")
	}
	if c.Database == "" {
		return errors.New("document.database unset")
	}
	return nil
}
