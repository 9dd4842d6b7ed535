package main

import (
	"apollocfg/internal/types"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const EnvConfigFile = "APOLLO_CONFIG_FILE"

var rootCmd = &cobra.Command{
	Use:           "apollo-agent",
	Short:         "Keep Apollo namespaces available locally",
	Long:          `Fetches Apollo namespaces, follows their changes through the notification long poll and falls back to the local cache when the config service is unreachable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	addOptionFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(getCmd, dumpCmd, watchCmd, serveCmd)
}

func addOptionFlags(f *pflag.FlagSet) {
	f.StringP("config", "c", "", "YAML options file (default $"+EnvConfigFile+")")
	f.String("server", "", "meta server or config service URL")
	f.String("app", "", "app id")
	f.String("cluster", "", "cluster name")
	f.StringSliceP("namespace", "n", nil, "namespaces to load (repeatable)")
	f.String("secret", "", "access key secret")
	f.String("cache-dir", "", "directory of the disk cache")
	f.String("cache-backend", "", "cache backend: disk, redis or ddb")
	f.Bool("openapi", false, "use the /openapi/v1 endpoints")
	f.Bool("no-discovery", false, "talk to --server directly instead of discovering config services")
}

func main() {
	// Load environment variables
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	err := godotenv.Load(envFile)
	if err != nil {
		log.Debug("The .env file not found.")
	}

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("apollo-agent failed")
		os.Exit(1)
	}
}

func setupLogging() {
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	}
	level, err := log.ParseLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// loadOptions layers defaults, the options file, APOLLO_* variables and flags, in that order.
func loadOptions(cmd *cobra.Command) (types.Options, error) {
	opts := types.DefaultOptions()
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		var err error
		if opts, err = types.LoadOptionsFile(path, opts); err != nil {
			return opts, err
		}
	}
	opts, err := types.ApplyEnv(opts)
	if err != nil {
		return opts, err
	}

	for name, dst := range map[string]*string{
		"server":        &opts.ServerURL,
		"app":           &opts.AppID,
		"cluster":       &opts.Cluster,
		"secret":        &opts.Secret,
		"cache-dir":     &opts.CacheDir,
		"cache-backend": &opts.CacheBackend,
	} {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Changed("namespace") {
		opts.Namespaces, _ = flags.GetStringSlice("namespace")
	}
	if flags.Changed("openapi") {
		opts.OpenAPI, _ = flags.GetBool("openapi")
	}
	if flags.Changed("no-discovery") {
		noDiscovery, _ := flags.GetBool("no-discovery")
		opts.Discovery = !noDiscovery
	}
	return opts, nil
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
