package cmd

import (
	"fmt"
	"os"

	"github.com/abdul-hamid-achik/httpvcr/packages/core/config"
	"github.com/abdul-hamid-achik/httpvcr/packages/vcr"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// FixtureDirEnv overrides the fixture directory.
const FixtureDirEnv = "VCR_FIXTURE_DIR"

var (
	version   = "dev"
	buildTime = "unknown"

	configFlag   string
	fixturesFlag string
	modeFlag     string
	noColorFlag  bool
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "httpvcr",
	Short: "Record, replay and cache HTTP traffic.",
	Long: `httpvcr records HTTP exchanges to fixture files and plays them back,
so tests run without the services they talk to.

Go programs install the interceptor as an http.RoundTripper. Everything else
can point at "httpvcr proxy".`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func init() {
	cobra.OnInitialize(loadDotEnv)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFlag, "config", "c", "", "Config file (default: search the current directory)")
	pf.StringVar(&fixturesFlag, "fixtures", "", "Fixture directory (env: "+FixtureDirEnv+")")
	pf.StringVarP(&modeFlag, "mode", "m", "", "record, playback, cache or playback_timed (env: "+vcr.ModeEnv+")")
	pf.BoolVar(&noColorFlag, "no-color", false, "Disable colored output (env: NO_COLOR)")
	pf.StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")

	viper.BindPFlag("mode", pf.Lookup("mode"))
	viper.BindEnv("mode", vcr.ModeEnv)
	viper.BindPFlag("fixtures", pf.Lookup("fixtures"))
	viper.BindEnv("fixtures", FixtureDirEnv)
	viper.BindPFlag("no-color", pf.Lookup("no-color"))
	viper.BindEnv("no-color", "NO_COLOR")

	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadDotEnv() {
	_ = godotenv.Load()
}

func setup(cmd *cobra.Command, args []string) error {
	if viper.GetBool("no-color") {
		color.NoColor = true
	}
	level, err := logrus.ParseLevel(logLevelFlag)
	if err != nil {
		return usageError(err)
	}
	logrus.SetLevel(level)
	return nil
}

// loadSettings builds settings from the config file, then the environment and
// flags.
func loadSettings() (*config.Settings, *config.File, error) {
	settings := config.NewSettings()
	file, err := config.LoadFile(configFlag)
	if err != nil {
		return nil, nil, configError(fmt.Errorf("failed to load config: %w", err))
	}
	if file != nil {
		if err := file.Apply(settings); err != nil {
			return nil, nil, configError(err)
		}
	}
	if dir := fixturesOverride(); dir != "" {
		settings.SetFixtureDir(dir)
	}
	return settings, file, nil
}

func fixturesOverride() string {
	return viper.GetString("fixtures")
}

// resolveMode prefers the flag or VCR_MODE over the config file.
func resolveMode(file *config.File) (vcr.Mode, error) {
	raw := viper.GetString("mode")
	if raw == "" && file != nil {
		raw = file.Mode
	}
	mode, err := vcr.ParseMode(raw)
	if err != nil {
		return "", configError(err)
	}
	return mode, nil
}

// fixtureRoot returns the directory argument or the configured fixture
// directory.
func fixtureRoot(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	settings, _, err := loadSettings()
	if err != nil {
		return "", err
	}
	return settings.FixtureDir(), nil
}
