package cli

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/eventcam/internal/acquire"
	"github.com/banshee-data/eventcam/internal/device"
	"github.com/banshee-data/eventcam/internal/device/usb"
	"github.com/banshee-data/eventcam/internal/enhance"
	"github.com/banshee-data/eventcam/internal/recorder"
	"github.com/banshee-data/eventcam/internal/stream"
)

var (
	streamVendorID  string
	streamProductID string
	streamSerial    string
	streamDeviceID  int16
	streamListen    string
	streamDBPath    string
	streamEnhance   bool
	statsInterval   time.Duration
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Capture from a device and serve containers over TCP",
	RunE:  runStream,
}

func init() {
	streamCmd.Flags().StringVar(&streamVendorID, "vendor-id", "152a", "USB vendor id (hex)")
	streamCmd.Flags().StringVar(&streamProductID, "product-id", "841b", "USB product id (hex)")
	streamCmd.Flags().StringVar(&streamSerial, "serial", "", "restrict to one device serial")
	streamCmd.Flags().Int16Var(&streamDeviceID, "device-id", 1, "source id tagged into every packet")
	streamCmd.Flags().StringVar(&streamListen, "listen", ":7777", "TCP listen address for subscribers")
	streamCmd.Flags().StringVar(&streamDBPath, "db", "", "SQLite file for periodic stream statistics")
	streamCmd.Flags().BoolVar(&streamEnhance, "enhance", false, "run frame enhancement (autoexposure, contrast)")
	streamCmd.Flags().DurationVar(&statsInterval, "stats-interval", 10*time.Second, "statistics snapshot interval")
}

func runStream(cmd *cobra.Command, args []string) error {
	acq, err := loadAcquisition()
	if err != nil {
		return err
	}
	vid, err := parseUSBID(streamVendorID)
	if err != nil {
		return err
	}
	pid, err := parseUSBID(streamProductID)
	if err != nil {
		return err
	}

	tr, info, err := usb.Open(device.Descriptor{VendorID: vid, ProductID: pid, Serial: streamSerial})
	if err != nil {
		return err
	}
	log.Printf("opened %s serial=%q logic=%d dvs=%dx%d aps=%dx%d",
		info.Name, info.Serial, info.LogicVersion,
		info.DVSSizeX, info.DVSSizeY, info.APSSizeX, info.APSSizeY)

	var enhancer acquire.FrameEnhancer
	if streamEnhance || acq.EnhanceFrames {
		// The exposure setter writes through the transport directly: it
		// runs on the decode path, which must never wait on the session
		// lock.
		enhancer = enhance.Chain{
			enhance.NewAutoExposure(4000, func(v uint32) error {
				return tr.ControlSet(device.ModuleAPS, device.ParamAPSExposure, v)
			}),
			enhance.NewContrastStretch(),
		}
	}
	sess := device.NewSession(tr, info, streamDeviceID, acq, enhancer)
	defer func() {
		if err := sess.Close(); err != nil {
			log.Printf("close session: %v", err)
		}
	}()

	results, err := sess.SendDefaultConfig()
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			log.Printf("default config (%d,%d)=%d: %v",
				r.Setting.Module, r.Setting.Param, r.Setting.Value, r.Err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if streamDBPath != "" {
		db, err := recorder.NewDB(streamDBPath)
		if err != nil {
			return fmt.Errorf("open stats db: %w", err)
		}
		defer db.Close()
		if err := db.RecordSession(sess.ID(), info.Name, info.Serial, info.LogicVersion); err != nil {
			return err
		}
		go db.LogPeriodically(ctx, sess.ID(), sess, statsInterval)
	}

	if err := sess.DataStart(); err != nil {
		return err
	}
	defer func() {
		if err := sess.DataStop(); err != nil && err != device.ErrNotStreaming {
			log.Printf("stop stream: %v", err)
		}
		logStats(sess.Statistics())
	}()

	srv, err := stream.NewServer(streamListen, streamDeviceID, sess)
	if err != nil {
		return err
	}
	log.Printf("serving containers on %s (session %s)", srv.Addr(), sess.ID())
	if err := srv.Serve(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func logStats(s acquire.Stats) {
	log.Printf("stream stats: containers=%d dropped=%d transfer_errors=%d malformed=%d abandoned_frames=%d",
		s.Containers, s.DroppedContainers, s.TransferErrors, s.MalformedRecords, s.AbandonedFrames)
}
