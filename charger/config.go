package charger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	modbus "github.com/hootrhino/solix-modbus"
)

// Defaults of a charger entry.
const (
	DefaultPort          = modbus.DefaultPort
	DefaultScanInterval  = 5 * time.Second
	DefaultAddressOffset = 0
	DefaultWordOrder     = modbus.WordOrderHiLo
)

// Config describes one charger endpoint as stored in a JSON file.
type Config struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	AddressOffset int    `json:"address_offset"`
	WordOrder     string `json:"word_order"`
	ScanInterval  int    `json:"scan_interval"` // seconds
	UnitID        uint8  `json:"unit_id"`
	Timeout       int    `json:"timeout"` // seconds
}

// DefaultConfig returns a Config with every optional field at its default.
func DefaultConfig() Config {
	return Config{
		Port:          DefaultPort,
		AddressOffset: DefaultAddressOffset,
		WordOrder:     string(DefaultWordOrder),
		ScanInterval:  int(DefaultScanInterval / time.Second),
		UnitID:        modbus.DefaultUnitID,
		Timeout:       int(modbus.DefaultTimeout / time.Second),
	}
}

// LoadConfig reads a JSON config file on top of DefaultConfig.
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()
	if !exists(configPath) {
		return config, fmt.Errorf("configuration file not found: %s", configPath)
	}

	bb, err := os.ReadFile(configPath)
	if err != nil {
		return config, fmt.Errorf("error reading file: %w", err)
	}
	if err := json.NewDecoder(bytes.NewReader(bb)).Decode(&config); err != nil {
		return config, fmt.Errorf("error decoding file: %w", err)
	}
	return config, nil
}

func exists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil || !os.IsNotExist(err)
}

// Settings converts the config into client settings.
func (c Config) Settings() (modbus.Settings, error) {
	order, err := modbus.ParseWordOrder(c.WordOrder)
	if err != nil {
		return modbus.Settings{}, err
	}
	s := modbus.Settings{
		Host:          c.Host,
		Port:          c.Port,
		AddressOffset: c.AddressOffset,
		WordOrder:     order,
	}
	return s, s.Validate()
}

// ClientOptions returns the client options carried by the config.
func (c Config) ClientOptions() []modbus.Option {
	opts := []modbus.Option{modbus.WithUnitID(c.UnitID)}
	if c.Timeout > 0 {
		opts = append(opts, modbus.WithTimeout(time.Duration(c.Timeout)*time.Second))
	}
	return opts
}

// Interval returns the poll interval, DefaultScanInterval when unset.
func (c Config) Interval() time.Duration {
	if c.ScanInterval <= 0 {
		return DefaultScanInterval
	}
	return time.Duration(c.ScanInterval) * time.Second
}
