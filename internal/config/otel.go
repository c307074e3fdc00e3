package config

import (
	"fmt"
	"strings"

	"github.com/hookhub/relay/internal/otel"
	v "github.com/spf13/viper"
)

type OpenTelemetryTypeConfig struct {
	Exporter string `yaml:"exporter" env:"OTEL_EXPORTER"`
	Protocol string `yaml:"protocol" env:"OTEL_PROTOCOL"`
	Endpoint string `yaml:"endpoint" env:"OTEL_ENDPOINT"`
}

type OpenTelemetryConfig struct {
	ServiceName string                   `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	Traces      *OpenTelemetryTypeConfig `yaml:"traces"`
	Metrics     *OpenTelemetryTypeConfig `yaml:"metrics"`
	Logs        *OpenTelemetryTypeConfig `yaml:"logs"`
}

// getProtocol resolves the OTLP protocol for a telemetry type, honoring the
// standard OTEL_EXPORTER_OTLP_<TYPE>_PROTOCOL env convention with fallback to
// the generic variable.
func getProtocol(viper *v.Viper, telemetryType string) string {
	protocol := viper.GetString(fmt.Sprintf("OTEL_EXPORTER_OTLP_%s_PROTOCOL", strings.ToUpper(telemetryType)))
	if protocol == "" {
		protocol = viper.GetString("OTEL_EXPORTER_OTLP_PROTOCOL")
	}
	if protocol == "" {
		protocol = "grpc"
	}
	return protocol
}

// getEndpoint resolves the OTLP endpoint for a telemetry type, honoring the
// standard OTEL_EXPORTER_OTLP_<TYPE>_ENDPOINT env convention with fallback to
// the generic variable.
func getEndpoint(viper *v.Viper, telemetryType string) string {
	endpoint := viper.GetString(fmt.Sprintf("OTEL_EXPORTER_OTLP_%s_ENDPOINT", strings.ToUpper(telemetryType)))
	if endpoint == "" {
		endpoint = viper.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	return endpoint
}

func (c *OpenTelemetryTypeConfig) resolve(telemetryType string) *otel.OpenTelemetryTypeConfig {
	viper := v.New()
	viper.AutomaticEnv()

	resolved := &otel.OpenTelemetryTypeConfig{}
	if c != nil {
		resolved.Exporter = c.Exporter
		resolved.Protocol = c.Protocol
		resolved.Endpoint = c.Endpoint
	}
	if resolved.Protocol == "" {
		resolved.Protocol = getProtocol(viper, telemetryType)
	}
	if resolved.Endpoint == "" {
		resolved.Endpoint = getEndpoint(viper, telemetryType)
	}
	return resolved
}

func (c *OpenTelemetryConfig) ToOTELConfig() *otel.OpenTelemetryConfig {
	if c == nil || c.ServiceName == "" {
		return nil
	}

	cfg := &otel.OpenTelemetryConfig{
		ServiceName: c.ServiceName,
	}
	if c.Traces != nil {
		cfg.Traces = c.Traces.resolve("traces")
	}
	if c.Metrics != nil {
		cfg.Metrics = c.Metrics.resolve("metrics")
	}
	if c.Logs != nil {
		cfg.Logs = c.Logs.resolve("logs")
	}
	return cfg
}
