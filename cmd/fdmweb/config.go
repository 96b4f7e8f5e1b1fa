package main

import (
	"flag"
	"gopkg.in/yaml.v2"
	"log"
	"os"
	"sync"

	"github.com/rileys-trash-can/libfdm"
)

var (
	ConfigPath = flag.String("config", "config.yml", "config to read")

	ListenAddr = flag.String("listen", "", "specify address to listen on, fallback is [::]:8090")

	PrinterAddress = flag.String("printer", os.Getenv("FDM_PRINTER"), "Specify printer host:port, can also be set by env FDM_PRINTER")

	OptVerbose = flag.Bool("verbose", false, "toggle verbose logging")
	OptBeep    = flag.Bool("beep", true, "toggle connection-beep")
	OptDryRun  = flag.Bool("dry-run", false, "disables connection to printer; for testing")
)

type Config struct {
	Printer string `yaml:"printer.addr"`

	Listen string `yaml:"listen"`
	DB     string `yaml:"databasepath"`
	DBType string `yaml:"dbtype"`

	PollSeconds uint `yaml:"pollseconds"`

	ExtruderMin float64 `yaml:"limits.extruder.min"`
	ExtruderMax float64 `yaml:"limits.extruder.max"`
	BedMin      float64 `yaml:"limits.bed.min"`
	BedMax      float64 `yaml:"limits.bed.max"`
}

var config *Config
var configOnce sync.Once

func readConfig() {
	f, err := os.Open(*ConfigPath)
	if err != nil {
		log.Fatalf("Failed to open file at %s: %s", *ConfigPath, err)
	}

	defer f.Close()

	config = new(Config)
	dec := yaml.NewDecoder(f)
	err = dec.Decode(config)
	if err != nil {
		log.Fatalf("Failed to decode config at %s: %s", *ConfigPath, err)
	}
}

func GetConfig() *Config {
	configOnce.Do(readConfig)

	return config
}

// Limits merges the configured temperature bounds over the library
// defaults; a zero max means "not configured".
func (c *Config) Limits() fdm.TemperatureLimits {
	l := fdm.DefaultLimits()

	if c.ExtruderMax != 0 {
		l.ExtruderMin = c.ExtruderMin
		l.ExtruderMax = c.ExtruderMax
	}

	if c.BedMax != 0 {
		l.BedMin = c.BedMin
		l.BedMax = c.BedMax
	}

	return l
}
