package config

import (
	"fmt"
	"net/url"
)

// Validate checks if the configuration is valid
func (c *Config) Validate(flags Flags) error {
	// Reset validated state
	c.validated = false

	// Validate each component
	if err := c.validateService(flags); err != nil {
		return err
	}

	if err := c.validateRedis(); err != nil {
		return err
	}

	if err := c.validateQueue(); err != nil {
		return err
	}

	if err := c.validateRetry(); err != nil {
		return err
	}

	if err := c.validateCircuitBreaker(); err != nil {
		return err
	}

	if err := c.validateAdvisor(); err != nil {
		return err
	}

	// Mark as validated if we get here
	c.validated = true
	return nil
}

// validateService validates the service configuration
func (c *Config) validateService(flags Flags) error {
	// Parse service type from flag & env
	flagService, err := ServiceTypeFromString(flags.Service)
	if err != nil {
		return err
	}

	configService, err := c.GetService()
	if err != nil {
		return err
	}

	// If service is set in config (via env or file), it must match flag
	if c.Service != "" && configService != flagService {
		return ErrMismatchedServiceType
	}

	// If no service set in config, use flag value
	if c.Service == "" {
		c.Service = flags.Service
	}

	return nil
}

// validateRedis validates the Redis configuration
func (c *Config) validateRedis() error {
	if c.Redis == nil || c.Redis.Host == "" {
		return ErrMissingRedis
	}
	return nil
}

// validateQueue validates the delivery queue configuration
func (c *Config) validateQueue() error {
	if c.Queue == nil {
		return ErrMissingQueue
	}
	switch c.Queue.Driver {
	case "memory":
		return nil
	case "rabbitmq":
		if c.Queue.RabbitMQ == nil || c.Queue.RabbitMQ.ServerURL == "" {
			return fmt.Errorf("%w: rabbitmq driver requires a server url", ErrMissingQueue)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown driver %q", ErrMissingQueue, c.Queue.Driver)
}

// validateRetry validates the retry policy configuration. An explicit retry
// schedule overrides the attempt limit with its own length.
func (c *Config) validateRetry() error {
	if len(c.RetrySchedule) > 0 {
		for _, seconds := range c.RetrySchedule {
			if seconds <= 0 {
				return fmt.Errorf("%w: schedule entries must be positive", ErrInvalidRetryConfig)
			}
		}
		c.RetryMaxAttempts = len(c.RetrySchedule)
		return nil
	}

	if c.RetryMaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts must not be negative", ErrInvalidRetryConfig)
	}
	if c.RetryBaseDelayMS <= 0 || c.RetryMaxDelayMS <= 0 {
		return fmt.Errorf("%w: delays must be positive", ErrInvalidRetryConfig)
	}
	if c.RetryBaseDelayMS > c.RetryMaxDelayMS {
		return fmt.Errorf("%w: base delay exceeds max delay", ErrInvalidRetryConfig)
	}
	return nil
}

// validateCircuitBreaker validates the circuit breaker configuration
func (c *Config) validateCircuitBreaker() error {
	if c.CircuitFailureThreshold <= 0 {
		return fmt.Errorf("%w: failure threshold must be positive", ErrInvalidCircuitConfig)
	}
	if c.CircuitCooldownSeconds <= 0 {
		return fmt.Errorf("%w: cooldown must be positive", ErrInvalidCircuitConfig)
	}
	if c.CircuitHalfOpenMaxProbes <= 0 {
		return fmt.Errorf("%w: half-open probe limit must be positive", ErrInvalidCircuitConfig)
	}
	return nil
}

// validateAdvisor validates the remote advisor configuration if enabled
func (c *Config) validateAdvisor() error {
	if c.Advisor.URL == "" {
		return nil
	}
	if _, err := url.Parse(c.Advisor.URL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAdvisorConfig, err)
	}
	if c.Advisor.MinConfidence < 0 || c.Advisor.MinConfidence > 1 {
		return fmt.Errorf("%w: min confidence must be within [0, 1]", ErrInvalidAdvisorConfig)
	}
	if c.Advisor.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidAdvisorConfig)
	}
	return nil
}
