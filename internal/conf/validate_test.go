package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satwatch/satwatch-go/internal/errors"
)

// validSettings returns a settings struct that passes validation; tests
// mutate single fields to probe individual rules.
func validSettings() *Settings {
	s := &Settings{}
	s.Monitor.PrioritySweep = 30
	s.Monitor.FullSweep = 180
	s.Monitor.MinRefreshInterval = 60
	s.Monitor.LookbackDays = 7
	s.Monitor.MaxCloudCover = 20
	s.Monitor.Workers = 4
	s.Provider.RequestTimeout = 60
	s.Provider.MaxRetries = 3
	s.Imagery.Width = 1024
	s.Imagery.Height = 1024
	s.Imagery.Format = "png"
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = "satwatch.db"
	return s
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"full sweep not slower than priority sweep", func(s *Settings) {
			s.Monitor.FullSweep = s.Monitor.PrioritySweep
		}},
		{"priority sweep zero", func(s *Settings) {
			s.Monitor.PrioritySweep = 0
		}},
		{"cloud cover above 100", func(s *Settings) {
			s.Monitor.MaxCloudCover = 120
		}},
		{"negative cloud cover", func(s *Settings) {
			s.Monitor.MaxCloudCover = -1
		}},
		{"no workers", func(s *Settings) {
			s.Monitor.Workers = 0
		}},
		{"unknown image format", func(s *Settings) {
			s.Imagery.Format = "webp"
		}},
		{"no database backend", func(s *Settings) {
			s.Output.SQLite.Enabled = false
		}},
		{"both database backends", func(s *Settings) {
			s.Output.MySQL.Enabled = true
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := validSettings()
			tc.mutate(s)

			err := ValidateSettings(s)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		})
	}
}

func TestValidateProviderCredentials(t *testing.T) {
	t.Parallel()

	s := validSettings()
	require.Error(t, ValidateProviderCredentials(s), "empty credentials must be rejected")

	s.Provider.ClientID = "client"
	require.Error(t, ValidateProviderCredentials(s), "secret still missing")

	s.Provider.ClientSecret = "secret"
	require.NoError(t, ValidateProviderCredentials(s))
}
