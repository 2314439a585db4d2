package isp

import "time"

// Speed is a baud rate and bit-clock period pair passed to avrdude as -b and -B.
type Speed struct {
	Baud     int
	BitClock float64 // microseconds
}

// Config holds the driver configuration.
type Config struct {
	// Tool is the avrdude executable name or path
	Tool string

	// Programmer is the avrdude programmer id (-c)
	Programmer string

	// Port is the programming interface path (-P)
	Port string

	// Slow is used for signature and fuse operations
	Slow Speed

	// Fast is used for chip erase and flashing
	Fast Speed

	// Timeout bounds a single avrdude invocation; zero disables it
	Timeout time.Duration

	// Runner executes the tool (optional, defaults to ExecRunner)
	Runner Runner

	// Logger is used for logging operations (optional)
	Logger Logger
}

func defaultConfig() Config {
	return Config{
		Tool:       "avrdude",
		Programmer: "linuxspi",
		Port:       "/dev/spidev0.0",
		Slow:       Speed{Baud: 19200, BitClock: 10},
		Fast:       Speed{Baud: 200000, BitClock: 1},
		Timeout:    2 * time.Minute,
		Runner:     ExecRunner{},
	}
}

// Option is a functional option for configuring the driver.
type Option func(*Config)

// WithTool sets the avrdude executable.
func WithTool(path string) Option {
	return func(c *Config) {
		if path != "" {
			c.Tool = path
		}
	}
}

// WithProgrammer sets the programmer id and the interface it is attached to.
//
// Example:
//
//	dude := isp.New("m328p", isp.WithProgrammer("linuxspi", "/dev/spidev0.0"))
func WithProgrammer(programmer, port string) Option {
	return func(c *Config) {
		c.Programmer = programmer
		c.Port = port
	}
}

// WithSlowSpeed sets the speed used to identify the part and access fuses.
func WithSlowSpeed(s Speed) Option {
	return func(c *Config) { c.Slow = s }
}

// WithFastSpeed sets the speed used to erase and flash.
func WithFastSpeed(s Speed) Option {
	return func(c *Config) { c.Fast = s }
}

// WithTimeout bounds every avrdude invocation.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.Timeout = d
		}
	}
}

// WithRunner replaces the process runner, mostly for tests.
func WithRunner(r Runner) Option {
	return func(c *Config) {
		if r != nil {
			c.Runner = r
		}
	}
}

// WithLogger sets a logger for driver operations.
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Logger is an optional logging interface shared by the programming packages.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
