//go:build windows

package discovery

import (
	"context"

	"golang.org/x/sys/windows/registry"
)

// hardwareModel reads the system vendor and product from the BIOS key.
func hardwareModel(_ context.Context) (string, string) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `HARDWARE\DESCRIPTION\System\BIOS`, registry.QUERY_VALUE)
	if err != nil {
		return "", ""
	}
	defer k.Close()
	manufacturer, _, _ := k.GetStringValue("SystemManufacturer")
	model, _, _ := k.GetStringValue("SystemProductName")
	return manufacturer, model
}
