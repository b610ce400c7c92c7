// conf/validate.go settings validation
package conf

import (
	"fmt"
	"strings"

	"github.com/satwatch/satwatch-go/internal/errors"
)

// validImageFormats are the raster formats the pipeline can sanity-check
// before accepting fetched bytes.
var validImageFormats = map[string]bool{
	"png":  true,
	"jpeg": true,
	"tiff": true,
}

// ValidateSettings checks the loaded settings for inconsistencies that would
// break the monitoring pipeline at runtime.
func ValidateSettings(settings *Settings) error {
	var problems []string

	if settings.Monitor.PrioritySweep <= 0 {
		problems = append(problems, "monitor.prioritysweep must be positive")
	}
	if settings.Monitor.FullSweep <= settings.Monitor.PrioritySweep {
		problems = append(problems, fmt.Sprintf(
			"monitor.fullsweep (%d) must be greater than monitor.prioritysweep (%d)",
			settings.Monitor.FullSweep, settings.Monitor.PrioritySweep))
	}
	if settings.Monitor.MaxCloudCover < 0 || settings.Monitor.MaxCloudCover > 100 {
		problems = append(problems, fmt.Sprintf(
			"monitor.maxcloudcover must be between 0 and 100, got %.1f",
			settings.Monitor.MaxCloudCover))
	}
	if settings.Monitor.LookbackDays <= 0 {
		problems = append(problems, "monitor.lookbackdays must be positive")
	}
	if settings.Monitor.Workers <= 0 {
		problems = append(problems, "monitor.workers must be positive")
	}

	if settings.Provider.RequestTimeout <= 0 {
		problems = append(problems, "provider.requesttimeout must be positive")
	}
	if settings.Provider.MaxRetries < 0 {
		problems = append(problems, "provider.maxretries must not be negative")
	}

	if settings.Imagery.Width <= 0 || settings.Imagery.Height <= 0 {
		problems = append(problems, fmt.Sprintf(
			"imagery dimensions must be positive, got %dx%d",
			settings.Imagery.Width, settings.Imagery.Height))
	}
	if !validImageFormats[settings.Imagery.Format] {
		problems = append(problems, fmt.Sprintf(
			"imagery.format must be png, jpeg or tiff, got %q", settings.Imagery.Format))
	}

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		problems = append(problems, "either output.sqlite or output.mysql must be enabled")
	}
	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		problems = append(problems, "only one of output.sqlite and output.mysql may be enabled")
	}

	if len(problems) > 0 {
		return errors.Newf("invalid configuration: %s", strings.Join(problems, "; ")).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// ValidateProviderCredentials ensures the OAuth2 client credentials are
// present. Called by commands that actually talk to the provider, so that
// offline commands like "zones list" work without credentials.
func ValidateProviderCredentials(settings *Settings) error {
	if settings.Provider.ClientID == "" || settings.Provider.ClientSecret == "" {
		return errors.Newf("provider client id and secret must be configured").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("authurl", settings.Provider.AuthURL).
			Build()
	}
	return nil
}
