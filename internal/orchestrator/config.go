package orchestrator

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/rajmodi8905/adaptive-sink/internal/classify"
	"github.com/rajmodi8905/adaptive-sink/internal/document"
	"github.com/rajmodi8905/adaptive-sink/internal/relational"
)

// Config is the full enumerated configuration surface from spec section
// 6, composed from each subsystem's own Config the way the teacher's
// server.Config composes cdc.Config plus its own flags.
type Config struct {
	Relational relational.Config
	Document   document.Config

	BufferSize           int
	BufferTimeoutSeconds int

	// SourceURL names the upstream HTTP source of records. Fetching from
	// it is explicitly out of scope for the core (spec section 1's
	// non-goals); this field exists only so cmd/ingestd can wire its own
	// reader, and Preflight does not require it to be set.
	SourceURL string

	MetadataDir string
	TableName   string

	Thresholds classify.Thresholds
}

// Bind registers every flag in the configuration surface.
func (c *Config) Bind(flags *pflag.FlagSet) {
	c.Relational.Bind(flags)
	c.Document.Bind(flags)

	flags.IntVar(&c.BufferSize, "buffer.size", 50, "number of records buffered before a flush is triggered")
	flags.IntVar(&c.BufferTimeoutSeconds, "buffer.timeout_seconds", 30, "seconds since the last flush before one is triggered regardless of buffer size")
	flags.StringVar(&c.SourceURL, "source.url", "", "upstream HTTP source of records (consumed outside the core pipeline)")
	flags.StringVar(&c.MetadataDir, "metadata_dir", "", "directory holding the WAL and persisted metadata")
	flags.StringVar(&c.TableName, "table_name", "records", "relational table and document collection name")

	flags.Float64Var(&c.Thresholds.MinPresence, "placement.min_presence", 0.70, "minimum presence ratio for SQL placement")
	flags.Float64Var(&c.Thresholds.MinTypeStability, "placement.min_type_stability", 0.90, "minimum type stability for SQL placement")
	flags.Float64Var(&c.Thresholds.PKMinUnique, "pk.min_unique", 0.70, "minimum unique ratio for primary key eligibility")
}

// Preflight validates the configuration, delegating to each subsystem.
func (c *Config) Preflight() error {
	if err := c.Relational.Preflight(); err != nil {
		return errors.Wrap(err, "relational config")
	}
	if err := c.Document.Preflight(); err != nil {
		return errors.Wrap(err, "document config")
	}
	if c.MetadataDir == "" {
		return errors.New("metadata_dir unset")
	}
	if c.BufferSize <= 0 {
		return errors.New("buffer.size must be positive")
	}
	if c.BufferTimeoutSeconds <= 0 {
		return errors.New("buffer.timeout_seconds must be positive")
	}
	if c.TableName == "" {
		c.TableName = "records"
	}
	return nil
}
