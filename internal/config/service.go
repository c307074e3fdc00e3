package config

import "fmt"

const (
	ServiceTypeSingular ServiceType = iota
	ServiceTypeAPI
	ServiceTypeWorker
)

type ServiceType int

func (s ServiceType) String() string {
	switch s {
	case ServiceTypeSingular:
		return ""
	case ServiceTypeAPI:
		return "api"
	case ServiceTypeWorker:
		return "worker"
	}
	return "unknown"
}

func ServiceTypeFromString(s string) (ServiceType, error) {
	switch s {
	case "":
		return ServiceTypeSingular, nil
	case "api":
		return ServiceTypeAPI, nil
	case "worker":
		return ServiceTypeWorker, nil
	}
	return ServiceType(-1), fmt.Errorf("%w: %s", ErrInvalidServiceType, s)
}

// GetService parses the configured service string. An empty value means the
// singular deployment running both the API and the delivery worker.
func (c *Config) GetService() (ServiceType, error) {
	return ServiceTypeFromString(c.Service)
}
