package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".jdb"
	configFile string = "config.yml"
)

// Config defines all configuration options available to be set through
// the config file.
type Config struct {
	// SuspendOnAttach makes the attach command suspend the debuggee
	// before walking its threads and resume it afterwards. Walking a
	// running thread's stack is racy, so this defaults to true.
	SuspendOnAttach *bool `yaml:"suspend-on-attach,omitempty"`

	// MaxFrames caps the number of stack frames printed per thread.
	// Zero or absent means no limit.
	MaxFrames *int `yaml:"max-frames,omitempty"`

	// DisableColors turns off colorized output even on a terminal.
	DisableColors bool `yaml:"disable-colors"`
}

// SuspendOnAttachDefault returns the configured value or the default.
func (c *Config) SuspendOnAttachDefault() bool {
	if c == nil || c.SuspendOnAttach == nil {
		return true
	}
	return *c.SuspendOnAttach
}

// MaxFramesDefault returns the configured frame cap, 0 meaning
// unlimited.
func (c *Config) MaxFramesDefault() int {
	if c == nil || c.MaxFrames == nil {
		return 0
	}
	return *c.MaxFrames
}

// LoadConfig attempts to populate a Config object from the config.yml
// file. Any failure falls back to defaults; the config file is a
// convenience, never a requirement.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.\n", err)
		return nil
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.\n", err)
		return nil
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		createDefaultConfig(fullConfigFile)
		return nil
	}
	defer func() {
		err := f.Close()
		if err != nil {
			fmt.Printf("Closing config file failed: %v.\n", err)
		}
	}()

	data, err := ioutil.ReadAll(f)
	if err != nil {
		fmt.Printf("Unable to read config data: %v.\n", err)
		return nil
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		fmt.Printf("Unable to decode config file: %v.\n", err)
		return nil
	}

	return &c
}

func createDefaultConfig(path string) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Printf("Unable to create config file: %v.\n", err)
		return
	}
	defer func() {
		err := f.Close()
		if err != nil {
			fmt.Printf("Closing config file failed: %v.\n", err)
		}
	}()
	err = writeDefaultConfig(f)
	if err != nil {
		fmt.Printf("Unable to write default configuration: %v.\n", err)
	}
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for the jdb debugger.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Suspend the JVM while collecting stack traces (default true).
# suspend-on-attach: true

# Maximum number of stack frames printed per thread (0 = unlimited).
# max-frames: 0

# Disable colorized output.
# disable-colors: false
`)
	return err
}

// createConfigPath creates the directory structure at which all config
// files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets full path to given config file.
func GetConfigFilePath(file string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return path.Join(home, configDir, file), nil
}
