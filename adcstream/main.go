package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/itohio/adcstream/pkg/acquisition"
	"github.com/itohio/adcstream/pkg/config"
	"github.com/itohio/adcstream/pkg/device"
	"github.com/itohio/adcstream/pkg/sample"
	"github.com/itohio/adcstream/pkg/store"
)

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use mocked device instead of serial port")
		listFlag     = flag.Bool("list", false, "List serial ports and exit")
		durationFlag = flag.Duration("d", 0, "Capture duration (0 = until interrupted)")
		intervalFlag = flag.Duration("interval", time.Second, "Status report interval")
		saveFlag     = flag.Bool("save", false, "Write the effective configuration back to the config file")
	)
	flag.Parse()

	if *listFlag {
		if err := listPorts(); err != nil {
			log.Fatalf("Failed to list ports: %v", err)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override serial port if provided via command line
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	if *saveFlag {
		if err := cfg.Save(*configFlag); err != nil {
			log.Fatalf("Failed to save configuration: %v", err)
		}
	}

	acq := cfg.Acquisition
	log.Printf("Layout %v x%d, %d samples per sweep, %d sweeps per block", acq.Channels, acq.Repeat, cfg.SamplesPerSweep(), cfg.BlockSweeps())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *durationFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *durationFlag)
		defer cancel()
	}

	if err := run(ctx, cfg, *mockFlag, *intervalFlag); err != nil {
		log.Fatalf("Capture failed: %v", err)
	}
}

func listPorts() error {
	ports, err := device.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, p := range ports {
		if p.IsUSB {
			fmt.Printf("%s\tUSB %s:%s\t%s\n", p.Name, p.VID, p.PID, p.Description)
		} else {
			fmt.Printf("%s\t%s\n", p.Name, p.Description)
		}
	}
	return nil
}

func openDevice(cfg *config.Config, useMock bool) device.Device {
	if useMock {
		return device.NewMock(cfg)
	}
	return device.New(cfg.Serial.Port, cfg.Serial.Baud, device.DefaultBufferSize, cfg.Serial.ReadTimeout)
}

func run(ctx context.Context, cfg *config.Config, useMock bool, interval time.Duration) error {
	actx, err := acquisition.NewContext(cfg)
	if err != nil {
		return err
	}
	pipeline := acquisition.New(actx)
	pipeline.OnText(func(line string) {
		log.Printf("MCU: %s", line)
	})

	dev := openDevice(cfg, useMock)
	if err := dev.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Printf("Failed to close device: %v", err)
		}
	}()

	runDone := make(chan error, 1)
	go func() {
		runDone <- pipeline.Run(ctx, dev.Data())
	}()

	pipeline.StartCapture()
	if err := dev.Send(device.CommandRun); err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}

	views := make(chan store.View, 1)
	frames := sample.NewConverter(cfg, 1)(views)
	defer close(views)

	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last acquisition.Update
	for {
		select {
		case <-ctx.Done():
			pipeline.StopCapture()
			if err := dev.Send(device.CommandStop); err != nil && !errors.Is(err, device.ErrNotConnected) {
				log.Printf("Failed to stop streaming: %v", err)
			}
			report(pipeline, last)
			return nil

		case err := <-runDone:
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if ctx.Err() == nil {
				return errors.New("device stream closed")
			}

		case last = <-pipeline.Updates():

		case <-ticker.C:
			report(pipeline, last)
			logSummary(pipeline, cfg.Display.MaxPoints)
			select {
			case views <- pipeline.ActiveWindow(cfg.Display.MaxPoints):
			default:
			}

		case frame := <-frames:
			logFrame(frame)
		}
	}
}

func report(p *acquisition.Pipeline, u acquisition.Update) {
	snap := p.Timing()
	enabled, ferr := p.FilterState()
	filterState := "off"
	switch {
	case enabled:
		filterState = "on"
	case ferr != nil:
		filterState = "disabled: " + ferr.Error()
	}
	log.Printf("Sweeps: %d (t=%.3fs) | Blocks: %d | Rate: %.1f Hz (%.1f Hz/ch) | Gap: %d us | Filter: %s",
		u.Total, u.LastTime, snap.Blocks, snap.TotalRateHz, snap.PerChannelHz, snap.LastGapUS, filterState)
}

func logFrame(f sample.Frame) {
	var parts []string
	for _, tr := range f.Traces {
		if n := len(tr.Volts); n > 0 {
			parts = append(parts, fmt.Sprintf("ch%d=%.3fV", tr.Channel, tr.Volts[n-1]))
		}
	}
	if len(parts) > 0 {
		log.Printf("Latest: %s", strings.Join(parts, " "))
	}
}

func logSummary(p *acquisition.Pipeline, n int) {
	for _, s := range p.Summary(n) {
		log.Printf("  [%d] min=%.1f max=%.1f mean=%.1f rms=%.2f last=%.1f", s.Index, s.Min, s.Max, s.Mean, s.RMS, s.Last)
	}
}
