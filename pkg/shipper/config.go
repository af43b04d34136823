package shipper

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config is the connection and batching configuration for a Shipper.
// Exactly one of (ElasticsearchURL | CloudID) and exactly one of
// (Username+Password | APIKey) must be set, mirroring the original
// shipper constructor's mutually-exclusive auth and endpoint checks.
type Config struct {
	ElasticsearchURL string `validate:"required_without=CloudID,excluded_with=CloudID"`
	CloudID          string `validate:"required_without=ElasticsearchURL,excluded_with=ElasticsearchURL"`

	Username string `validate:"required_with=Password,excluded_with=APIKey"`
	Password string `validate:"required_with=Username,excluded_with=APIKey"`
	APIKey   string `validate:"excluded_with=Username,excluded_with=Password"`

	Namespace       string   `validate:"required"`
	Tags            []string `validate:"-"`
	BatchMaxActions int      `validate:"required,gt=0"`
	BatchMaxBytes   int      `validate:"required,gt=0"`
	MaxRetries      int      `validate:"gte=0"`
}

// DefaultBatchMaxActions and DefaultBatchMaxBytes are the original
// shipper's batching thresholds.
const (
	DefaultBatchMaxActions = 500
	DefaultBatchMaxBytes   = 10 * 1024 * 1024
	DefaultMaxRetries      = 10
)

// Validate checks the auth/endpoint exclusivity invariants and fills in
// batching defaults when left zero.
func (c *Config) Validate() error {
	if c.BatchMaxActions == 0 {
		c.BatchMaxActions = DefaultBatchMaxActions
	}
	if c.BatchMaxBytes == 0 {
		c.BatchMaxBytes = DefaultBatchMaxBytes
	}

	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("shipper configuration invalid: %w", err)
	}

	if c.Username == "" && c.Password == "" && c.APIKey == "" {
		return fmt.Errorf("shipper configuration invalid: one of username/password or api_key is required")
	}

	return nil
}
