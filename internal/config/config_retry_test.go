package config_test

import (
	"testing"

	"github.com/hookhub/relay/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestRetrySchedule(t *testing.T) {
	tests := []struct {
		name            string
		files           map[string][]byte
		envVars         map[string]string
		wantSchedule    []int
		wantMaxAttempts int
	}{
		{
			name:            "default empty retry schedule",
			files:           map[string][]byte{},
			envVars:         map[string]string{},
			wantSchedule:    []int{},
			wantMaxAttempts: 5, // default attempt limit
		},
		{
			name: "yaml retry schedule overrides attempt limit",
			files: map[string][]byte{
				"config.yaml": []byte(`
retry_schedule: [5, 300, 1800, 7200, 18000, 36000, 36000]
`),
			},
			envVars: map[string]string{
				"CONFIG": "config.yaml",
			},
			wantSchedule:    []int{5, 300, 1800, 7200, 18000, 36000, 36000},
			wantMaxAttempts: 7, // overridden to schedule length
		},
		{
			name: "env retry schedule overrides yaml and attempt limit",
			files: map[string][]byte{
				"config.yaml": []byte(`
retry_schedule: [10, 20, 30]
`),
			},
			envVars: map[string]string{
				"CONFIG":         "config.yaml",
				"RETRY_SCHEDULE": "5,300,1800",
			},
			wantSchedule:    []int{5, 300, 1800},
			wantMaxAttempts: 3, // overridden to env schedule length
		},
		{
			name: "retry_max_attempts without retry_schedule",
			files: map[string][]byte{
				"config.yaml": []byte(`
retry_max_attempts: 8
`),
			},
			envVars: map[string]string{
				"CONFIG": "config.yaml",
			},
			wantSchedule:    []int{},
			wantMaxAttempts: 8,
		},
		{
			name: "both retry_schedule and retry_max_attempts set",
			files: map[string][]byte{
				"config.yaml": []byte(`
retry_schedule: [5, 300, 1800]
retry_max_attempts: 8
`),
			},
			envVars: map[string]string{
				"CONFIG": "config.yaml",
			},
			wantSchedule:    []int{5, 300, 1800},
			wantMaxAttempts: 3, // schedule takes precedence
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockOS := &mockOS{
				files:   tt.files,
				envVars: tt.envVars,
			}

			cfg, err := config.ParseWithOS(config.Flags{}, mockOS)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantSchedule, cfg.RetrySchedule)
			assert.Equal(t, tt.wantMaxAttempts, cfg.RetryMaxAttempts)
		})
	}
}

func TestRetryValidation(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr error
	}{
		{
			name: "negative schedule entry",
			envVars: map[string]string{
				"RETRY_SCHEDULE": "5,-1,10",
			},
			wantErr: config.ErrInvalidRetryConfig,
		},
		{
			name: "base delay exceeding max delay",
			envVars: map[string]string{
				"RETRY_BASE_DELAY_MS": "120000",
				"RETRY_MAX_DELAY_MS":  "60000",
			},
			wantErr: config.ErrInvalidRetryConfig,
		},
		{
			name: "zero base delay",
			envVars: map[string]string{
				"RETRY_BASE_DELAY_MS": "0",
			},
			wantErr: config.ErrInvalidRetryConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockOS := &mockOS{
				files:   map[string][]byte{},
				envVars: tt.envVars,
			}

			_, err := config.ParseWithOS(config.Flags{}, mockOS)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
