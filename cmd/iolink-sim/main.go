// Command iolink-sim drives a simulated IO-Link master against a real
// Device instance in a single process: it scripts the cold-start
// handshake (wake-up, MasterIdent, PreOperate, Operate) and then loops
// cyclic Process Data exchange against the example tempsensor
// Application, printing device state as it goes.
//
// There is no physical UART here — PhysicalLayer is the package's own
// MockPhysicalLayer loopback — so this binary exists to demonstrate the
// stack end to end without hardware, the same role cmd/ublk-mem plays
// for exercising a backend without a kernel block device.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-iolink/iolink"
	"github.com/go-iolink/iolink/examples/tempsensor"
	"github.com/go-iolink/iolink/internal/command"
	"github.com/go-iolink/iolink/internal/logging"
	"github.com/go-iolink/iolink/internal/message"
)

func main() {
	var (
		vendorStr   = flag.String("vendor", "0x0123", "Vendor ID (16-bit hex)")
		deviceStr   = flag.String("device", "0x00456789A", "Device ID (24-bit hex, will be masked)")
		functionStr = flag.String("function", "0x0001", "Function ID (16-bit hex)")
		cycle       = flag.Duration("cycle", 50*time.Millisecond, "Simulated cycle interval")
		cycles      = flag.Int("cycles", 20, "Number of post-Operate cycles to run before exiting")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	vendorID, err := parseHex16(*vendorStr)
	if err != nil {
		log.Fatalf("invalid -vendor: %v", err)
	}
	deviceID, err := parseHex32(*deviceStr)
	if err != nil {
		log.Fatalf("invalid -device: %v", err)
	}
	functionID, err := parseHex16(*functionStr)
	if err != nil {
		log.Fatalf("invalid -function: %v", err)
	}

	logCfg := logging.DefaultConfig()
	if *verbose {
		logCfg.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logCfg)
	logging.SetDefault(logger)

	sensor := tempsensor.New()
	phy := iolink.NewMockPhysicalLayer()

	params := iolink.DeviceParams{
		PhysicalLayer: phy,
		Application:   sensor,
		VendorID:      vendorID,
		DeviceID:      deviceID,
		FunctionID:    functionID,
		MinCycleTime:  24, // 24 * 0.1ms = 2.4ms
		PDSize:        1,
		ODSize:        1,
		Parameters:    tempsensor.Parameters("SN-0001", 'C'),
	}

	dev, err := iolink.NewDevice(params, &iolink.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to create device", "error", err)
		os.Exit(1)
	}
	sensor.SetDevice(dev)

	logger.Info("device created",
		"vendor", fmt.Sprintf("%#04x", vendorID),
		"device", fmt.Sprintf("%#06x", deviceID),
		"function", fmt.Sprintf("%#04x", functionID))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	now := time.Now()
	if err := runColdStart(dev, phy, logger, now); err != nil {
		logger.Error("cold start failed", "error", err)
		os.Exit(1)
	}

	logger.Info("device operational, starting cyclic exchange", "state", dev.State().DLState)

	ticker := time.NewTicker(*cycle)
	defer ticker.Stop()

	ran := 0
	for ran < *cycles {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			return
		case t := <-ticker.C:
			phy.QueueInbound(message.Build(nil, 0, message.EncodeMC(message.MC{Channel: message.ChannelProcess}), []byte{0x00}, []byte{0x00}))
			sensor.Tick(t)
			if err := dev.Poll(t); err != nil {
				logger.Error("poll failed", "error", err)
				return
			}
			ran++
			logger.Debug("cycle complete", "n", ran, "state", dev.State().DLState.String())
		}
	}

	m := dev.Metrics()
	fmt.Printf("Ran %d cycles. Frames ok=%d invalid=%d, final state=%s\n",
		ran, m.FramesOK.Load(), m.FramesInvalid.Load(), dev.State().DLState)
}

// runColdStart scripts spec.md scenario 1's literal master sequence:
// wake-up, MasterIdent, PreOperate, Operate, one command per Poll cycle.
// PreOperate itself drives the Startup -> Preoperate transition;
// DeviceStartup is a separate Startup-only acknowledgement the master may
// send before PreOperate and is deliberately not scripted here.
func runColdStart(dev *iolink.Device, phy *iolink.MockPhysicalLayer, logger *logging.Logger, now time.Time) error {
	if err := dev.WakeUp(); err != nil {
		return err
	}
	if err := dev.Poll(now); err != nil {
		return err
	}

	steps := []command.ID{
		command.MasterIdent,
		command.PreOperate,
		command.Operate,
	}
	for _, id := range steps {
		mc := message.EncodeMC(message.MC{Channel: message.ChannelPage, Address: uint8(id)})
		phy.QueueInbound(message.Build(nil, 0, mc, []byte{0x00}, []byte{0x00}))
		now = now.Add(5 * time.Millisecond)
		if err := dev.Poll(now); err != nil {
			return err
		}
		logger.Info("cold start step", "command", id.String(), "state", dev.State().DLState.String())
	}
	return nil
}

func parseHex16(s string) (uint16, error) {
	v, err := strconv.ParseUint(trimHex(s), 16, 16)
	return uint16(v), err
}

func parseHex32(s string) (uint32, error) {
	v, err := strconv.ParseUint(trimHex(s), 16, 32)
	return uint32(v) & 0x00FFFFFF, err
}

func trimHex(s string) string {
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}
	return s
}
