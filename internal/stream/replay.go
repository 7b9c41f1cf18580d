//go:build pcap

package stream

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// ReplayFile feeds captured raw event data to sink, one UDP payload at a
// time, in capture order. Only available when built with the pcap tag.
func ReplayFile(ctx context.Context, pcapFile string, udpPort int, sink func(payload []byte) error) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("open capture file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("set BPF filter %q: %w", filter, err)
	}

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			log.Printf("replay stopping after %d packets: %v", packetCount, ctx.Err())
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				log.Printf("replay complete: %d packets in %v", packetCount, time.Since(startTime))
				return nil
			}
			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}
			packetCount++
			if err := sink(udp.Payload); err != nil {
				return fmt.Errorf("replay packet %d: %w", packetCount, err)
			}
			if packetCount%10000 == 0 {
				elapsed := time.Since(startTime)
				log.Printf("replay progress: %d packets in %v (%.0f pkt/s)",
					packetCount, elapsed, float64(packetCount)/elapsed.Seconds())
			}
		}
	}
}
