// Command avrprogd runs the push-button AVR programming station: it waits for
// a firmware image and device profile on removable media, and on each button
// press verifies, fuses and flashes the connected part.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/golang/glog"

	isp "github.com/tocurd/go-avrisp"
	"github.com/tocurd/go-avrisp/config"
	"github.com/tocurd/go-avrisp/gpio"
	"github.com/tocurd/go-avrisp/indicator"
	"github.com/tocurd/go-avrisp/programmer"
	"github.com/tocurd/go-avrisp/readiness"
	"github.com/tocurd/go-avrisp/record"
	"github.com/tocurd/go-avrisp/trigger"
)

// Version can be set during build time
var Version = "dev"

func main() {
	flag.Parse()
	defer glog.Flush()

	logger := glogLogger{}
	cfg := config.Load()
	glog.Infof("avr programmer version %s", Version)

	if _, err := exec.LookPath(cfg.AvrdudePath); err != nil {
		glog.Exitf("avrdude not available: %v", err)
	}
	if err := isp.ProbePort(cfg.Programmer, cfg.ProgrammingPort, cfg.BaudrateSlow); err != nil {
		glog.Exitf("programming interface: %v", err)
	}

	if err := gpio.Init(); err != nil {
		glog.Exit(err)
	}
	board, err := openBoard(cfg)
	if err != nil {
		glog.Exit(err)
	}
	board.Clear()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller := readiness.New(cfg.DeviceFile, cfg.FirmwareFile,
		readiness.WithInterval(cfg.PollInterval),
		readiness.WithLogger(logger),
		readiness.WithPollFunc(board.SetReady),
	)

	newDriver := func(p isp.DeviceProfile) isp.Interface {
		return isp.New(p.ChipType,
			isp.WithTool(cfg.AvrdudePath),
			isp.WithProgrammer(cfg.Programmer, cfg.ProgrammingPort),
			isp.WithSlowSpeed(isp.Speed{Baud: cfg.BaudrateSlow, BitClock: cfg.BitclockSlow}),
			isp.WithFastSpeed(isp.Speed{Baud: cfg.BaudrateFast, BitClock: cfg.BitclockFast}),
			isp.WithTimeout(cfg.ToolTimeout),
			isp.WithLogger(logger),
		)
	}

	opts := []programmer.Option{
		programmer.WithSettleDelay(cfg.SettleDelay),
		programmer.WithLogger(logger),
		programmer.WithRecorder(record.LogRecorder{Station: cfg.StationID, Logger: logger}),
	}
	if cfg.MQTTBroker != "" {
		pub, err := record.NewMQTTPublisher(record.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
			Station:  cfg.StationID,
		}, logger)
		if err != nil {
			glog.Errorf("session records will not be published: %v", err)
		} else {
			defer pub.Close()
			opts = append(opts, programmer.WithRecorder(pub))
		}
	}
	if cfg.ClickHouseAddr != "" {
		store, err := record.NewClickHouseStore(ctx, record.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
			Station:  cfg.StationID,
		})
		if err != nil {
			glog.Errorf("session records will not be stored: %v", err)
		} else {
			defer store.Close()
			opts = append(opts, programmer.WithRecorder(store))
		}
	}
	orch := programmer.New(poller, newDriver, board, opts...)

	button, err := gpio.OpenInput(cfg.ButtonPin)
	if err != nil {
		glog.Exit(err)
	}
	defer button.Close()
	trig := trigger.Arm(ctx, button, parseEdge(cfg.ButtonEdge), cfg.ButtonDebounce, orch.Activate)

	go button.Watch(ctx, trig.Notify)
	wait := runAll(ctx, poller.Run, orch.Run)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	s := <-sig
	glog.Infof("signal %s received, shutting down", s)

	cancel()
	wait() // a running session is finished first
	board.Clear()
	glog.Infof("shut down (dropped edges %d, ignored activations %d)", trig.Drops(), orch.Ignored())
}

// runAll starts each run in its own goroutine. The returned wait blocks until
// all of them have returned.
func runAll(ctx context.Context, runs ...func(context.Context)) (wait func()) {
	var wg sync.WaitGroup
	wg.Add(len(runs))
	for _, run := range runs {
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}
	return wg.Wait
}

func openBoard(cfg *config.Config) (*indicator.Board, error) {
	b := &indicator.Board{}
	lines := []struct {
		name string
		pin  string
		dst  *indicator.Indicator
	}{
		{"ready", cfg.LEDReadyPin, &b.Ready},
		{"programming", cfg.LEDProgrammingPin, &b.Programming},
		{"flash_pass", cfg.LEDFlashPassPin, &b.FlashPass},
		{"flash_fail", cfg.LEDFlashFailPin, &b.FlashFail},
		{"fuse_pass", cfg.LEDFusePassPin, &b.FusePass},
		{"fuse_fail", cfg.LEDFuseFailPin, &b.FuseFail},
		{"buffer_switch", cfg.BufferSwitchPin, &b.BufferSwitch},
	}
	for _, l := range lines {
		out, err := gpio.OpenOutput(l.pin)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.name, err)
		}
		*l.dst = indicator.NewLED(l.name, out)
	}
	return b, nil
}

func parseEdge(s string) trigger.Edge {
	switch s {
	case "falling":
		return trigger.EdgeFalling
	case "both":
		return trigger.EdgeBoth
	}
	return trigger.EdgeRising
}
