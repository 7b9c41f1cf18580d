package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/eventcam/internal/acquire"
	"github.com/banshee-data/eventcam/internal/events"
	"github.com/banshee-data/eventcam/internal/stream"
)

var (
	replayInput    string
	replayOutput   string
	replayPort     int
	replayDeviceID int16
	replayFrameW   int32
	replayFrameH   int32
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Decode a captured raw stream into a container file",
	Long: `replay reads raw event records from a packet capture, runs them through
the stream decoder, and writes the resulting containers to a file in the
network stream format. Requires a build with -tags pcap.`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVarP(&replayInput, "input", "i", "", "capture file (pcap)")
	replayCmd.Flags().StringVarP(&replayOutput, "output", "o", "", "output container file")
	replayCmd.Flags().IntVar(&replayPort, "port", 8991, "UDP port carrying the raw stream")
	replayCmd.Flags().Int16Var(&replayDeviceID, "device-id", 1, "source id tagged into every packet")
	replayCmd.Flags().Int32Var(&replayFrameW, "frame-width", 346, "maximum frame width")
	replayCmd.Flags().Int32Var(&replayFrameH, "frame-height", 260, "maximum frame height")
	replayCmd.MarkFlagRequired("input")
	replayCmd.MarkFlagRequired("output")
}

func runReplay(cmd *cobra.Command, args []string) error {
	acq, err := loadAcquisition()
	if err != nil {
		return err
	}

	out, err := os.Create(replayOutput)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	w, err := stream.NewWriter(out, replayDeviceID)
	if err != nil {
		return err
	}

	var containers int
	var writeErr error
	dec := acquire.NewDecoder(acq, replayDeviceID, replayFrameW, replayFrameH, 1, nil,
		func(c *events.EventPacketContainer) {
			if writeErr != nil {
				return
			}
			if err := w.WriteContainer(c); err != nil {
				writeErr = err
				return
			}
			containers++
		})

	err = stream.ReplayFile(cmd.Context(), replayInput, replayPort, func(payload []byte) error {
		dec.Decode(payload)
		return writeErr
	})
	if err != nil {
		return err
	}
	dec.Flush()
	if writeErr != nil {
		return fmt.Errorf("write containers: %w", writeErr)
	}

	s := dec.Stats()
	log.Printf("replay done: %d containers, %d malformed records, %d abandoned frames",
		containers, s.MalformedRecords, s.AbandonedFrames)
	return nil
}
