//go:build !pcap

package stream

import (
	"context"
	"errors"
)

// ReplayFile requires the pcap build tag, which needs libpcap at build time.
func ReplayFile(ctx context.Context, pcapFile string, udpPort int, sink func(payload []byte) error) error {
	return errors.New("capture replay requires building with -tags pcap")
}
