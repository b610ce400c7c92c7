// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "SatWatch")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/satwatch.log")
	viper.SetDefault("main.log.maxsize", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)

	viper.SetDefault("provider.name", "sentinel-hub")
	viper.SetDefault("provider.baseurl", "https://services.sentinel-hub.com")
	viper.SetDefault("provider.authurl", "https://services.sentinel-hub.com/oauth/token")
	viper.SetDefault("provider.clientid", "")
	viper.SetDefault("provider.clientsecret", "")
	viper.SetDefault("provider.collection", "sentinel-2-l2a")
	viper.SetDefault("provider.requesttimeout", 30)
	viper.SetDefault("provider.maxretries", 3)
	viper.SetDefault("provider.ratelimit", 2.0)

	viper.SetDefault("monitor.prioritysweep", 30)
	viper.SetDefault("monitor.fullsweep", 180)
	viper.SetDefault("monitor.minrefreshinterval", 60)
	viper.SetDefault("monitor.lookbackdays", 7)
	viper.SetDefault("monitor.maxcloudcover", 20.0)
	viper.SetDefault("monitor.workers", 4)
	viper.SetDefault("monitor.cycletimeout", 20)
	viper.SetDefault("monitor.maxzonefailures", 5)
	viper.SetDefault("monitor.negativecachettl", 25)

	viper.SetDefault("imagery.width", 1024)
	viper.SetDefault("imagery.height", 1024)
	viper.SetDefault("imagery.format", "png")
	viper.SetDefault("imagery.exportpath", "images/")
	viper.SetDefault("imagery.script", "true-color")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "satwatch.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "satwatch")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "satwatch")

	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.listen", "0.0.0.0:8080")
}
