// Package config loads cmdhelper settings.
//
// Sources, lowest precedence first: built-in defaults, cmdhelper.yaml in the
// game directory, cmdhelper.env in the same directory, CMDHELPER_* environment
// variables, and command line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"cmdhelper/internal/statemachine"
)

// Setting keys.
const (
	KeyLogLevel    = "log.level"
	KeyLogFile     = "log.file"
	KeySettleDelay = "settle.delay"
	KeyMoonLoader  = "moonloader.enabled"
	KeySampFuncs   = "sampfuncs.enabled"
)

const (
	// FileName is the config file base name, without extension.
	FileName = "cmdhelper"
	// EnvFile is the optional dotenv file.
	EnvFile = "cmdhelper.env"
	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "CMDHELPER"
	// DefaultLogFile is relative to the game directory.
	DefaultLogFile = "cmdhelper.log"
)

// Config holds the resolved settings.
type Config struct {
	LogLevel    string
	LogFile     string
	SettleDelay time.Duration
	// MoonLoader enables Lua command interception.
	MoonLoader bool
	// SampFuncs enables reading the SAMPFUNCS command list.
	SampFuncs bool
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		LogLevel:    "info",
		LogFile:     DefaultLogFile,
		SettleDelay: statemachine.DefaultSettleDelay,
		MoonLoader:  true,
		SampFuncs:   true,
	}
}

// EnvName returns the environment variable for key, e.g. CMDHELPER_LOG_LEVEL.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// New returns a viper instance with every source but flags wired up. Missing
// files are not an error.
func New(dir string) (*viper.Viper, error) {
	v := viper.New()
	d := Defaults()
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFile, d.LogFile)
	v.SetDefault(KeySettleDelay, d.SettleDelay)
	v.SetDefault(KeyMoonLoader, d.MoonLoader)
	v.SetDefault(KeySampFuncs, d.SampFuncs)

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := loadEnvFile(filepath.Join(dir, EnvFile)); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// loadEnvFile exports dotenv values the real environment leaves unset.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load .env file %s: %w", path, err)
	}
	return nil
}

// Decode reads the settings out of v. A relative log file is placed in dir.
func Decode(v *viper.Viper, dir string) (Config, error) {
	c := Config{
		LogLevel:    v.GetString(KeyLogLevel),
		LogFile:     v.GetString(KeyLogFile),
		SettleDelay: v.GetDuration(KeySettleDelay),
		MoonLoader:  v.GetBool(KeyMoonLoader),
		SampFuncs:   v.GetBool(KeySampFuncs),
	}
	if c.SettleDelay < 0 {
		return c, fmt.Errorf("%s must not be negative, got %s", KeySettleDelay, c.SettleDelay)
	}
	if c.LogFile != "" && !filepath.IsAbs(c.LogFile) && dir != "" {
		c.LogFile = filepath.Join(dir, c.LogFile)
	}
	return c, nil
}

// Load is New followed by Decode.
func Load(dir string) (Config, error) {
	v, err := New(dir)
	if err != nil {
		return Config{}, err
	}
	return Decode(v, dir)
}
