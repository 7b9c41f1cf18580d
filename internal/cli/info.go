package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/banshee-data/eventcam/internal/device"
	"github.com/banshee-data/eventcam/internal/device/usb"
)

var (
	infoVendorID  string
	infoProductID string
	infoSerial    string
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the description of an attached device",
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().StringVar(&infoVendorID, "vendor-id", "152a", "USB vendor id (hex)")
	infoCmd.Flags().StringVar(&infoProductID, "product-id", "841b", "USB product id (hex)")
	infoCmd.Flags().StringVar(&infoSerial, "serial", "", "restrict to one device serial")
}

func runInfo(cmd *cobra.Command, args []string) error {
	vid, err := parseUSBID(infoVendorID)
	if err != nil {
		return err
	}
	pid, err := parseUSBID(infoProductID)
	if err != nil {
		return err
	}
	tr, info, err := usb.Open(device.Descriptor{VendorID: vid, ProductID: pid, Serial: infoSerial})
	if err != nil {
		return err
	}
	defer func() {
		if err := tr.Close(); err != nil {
			log.Printf("close transport: %v", err)
		}
	}()

	fmt.Printf("Device:        %s\n", info.Name)
	fmt.Printf("Serial:        %s\n", info.Serial)
	fmt.Printf("Logic version: %d\n", info.LogicVersion)
	fmt.Printf("DVS array:     %dx%d\n", info.DVSSizeX, info.DVSSizeY)
	if info.APSSizeX > 0 {
		fmt.Printf("APS array:     %dx%d\n", info.APSSizeX, info.APSSizeY)
	} else {
		fmt.Println("APS array:     none")
	}
	fmt.Printf("IMU:           %v\n", info.HasIMU)
	return nil
}
