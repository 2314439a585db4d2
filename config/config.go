// Package config loads the programmer settings from the environment and an
// optional .env file.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// avrdude
	AvrdudePath     string
	Programmer      string
	ProgrammingPort string
	BaudrateSlow    int
	BitclockSlow    float64
	BaudrateFast    int
	BitclockFast    float64
	ToolTimeout     time.Duration
	SettleDelay     time.Duration

	// removable media
	DeviceFile   string
	FirmwareFile string
	PollInterval time.Duration

	// GPIO
	ButtonPin         string
	ButtonEdge        string
	ButtonDebounce    time.Duration
	LEDReadyPin       string
	LEDProgrammingPin string
	LEDFlashPassPin   string
	LEDFlashFailPin   string
	LEDFusePassPin    string
	LEDFuseFailPin    string
	BufferSwitchPin   string

	// session records
	StationID      string
	MQTTBroker     string
	MQTTClientID   string
	MQTTUsername   string
	MQTTPassword   string
	MQTTTopic      string
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string
}

// Load reads .env (if present) then the environment.
func Load() *Config {
	_ = godotenv.Load()

	station := getEnv("STATION_ID", hostname())
	return &Config{
		AvrdudePath:     getEnv("AVRDUDE_PATH", "avrdude"),
		Programmer:      getEnv("PROGRAMMER", "linuxspi"),
		ProgrammingPort: getEnv("PROGRAMMING_PORT", "/dev/spidev0.0"),
		BaudrateSlow:    getEnvInt("BAUDRATE_SLOW", 19200),
		BitclockSlow:    getEnvFloat("BITCLOCK_SLOW", 10),
		BaudrateFast:    getEnvInt("BAUDRATE_FAST", 200000),
		BitclockFast:    getEnvFloat("BITCLOCK_FAST", 1),
		ToolTimeout:     getEnvDuration("TOOL_TIMEOUT", 2*time.Minute),
		SettleDelay:     getEnvDuration("SETTLE_DELAY", 100*time.Millisecond),

		DeviceFile:   getEnv("DEVICE_FILE", "/media/usb/device.json"),
		FirmwareFile: getEnv("FIRMWARE_FILE", "/media/usb/firmware.hex"),
		PollInterval: getEnvDuration("POLL_INTERVAL", 2*time.Second),

		ButtonPin:         getEnv("BUTTON_PIN", "GPIO27"),
		ButtonEdge:        getEnv("BUTTON_EDGE", "rising"),
		ButtonDebounce:    getEnvDuration("BUTTON_DEBOUNCE", 100*time.Millisecond),
		LEDReadyPin:       getEnv("LED_READY_PIN", "GPIO6"),
		LEDProgrammingPin: getEnv("LED_PROGRAMMING_PIN", "GPIO22"),
		LEDFlashPassPin:   getEnv("LED_FLASH_PASS_PIN", "GPIO17"),
		LEDFlashFailPin:   getEnv("LED_FLASH_FAIL_PIN", "GPIO18"),
		LEDFusePassPin:    getEnv("LED_FUSE_PASS_PIN", "GPIO23"),
		LEDFuseFailPin:    getEnv("LED_FUSE_FAIL_PIN", "GPIO24"),
		BufferSwitchPin:   getEnv("BUFFER_SWITCH_PIN", "GPIO5"),

		StationID:      station,
		MQTTBroker:     getEnv("MQTT_BROKER", ""),
		MQTTClientID:   getEnv("MQTT_CLIENT_ID", "avrprog-"+station),
		MQTTUsername:   getEnv("MQTT_USERNAME", ""),
		MQTTPassword:   getEnv("MQTT_PASSWORD", ""),
		MQTTTopic:      getEnv("MQTT_TOPIC", "avrprog/{station}/session"),
		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "avrprog"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASS", ""),
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "avrprog"
	}
	return h
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return i
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: failed to parse %s as float, using default: %v", key, err)
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return d
}
