package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"

	"github.com/pcsuccession/agent/internal/models"
)

// parsePhonebook reads a RAS phonebook and returns its VPN entries.
// An entry is a VPN when its Type is 2 or it names a VpnStrategy.
func parsePhonebook(path string) ([]models.VPNConnection, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("loading phonebook %s: %w", path, err)
	}

	var out []models.VPNConnection
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		if sec.Key("Type").String() != "2" && !sec.HasKey("VpnStrategy") {
			continue
		}
		conn := models.VPNConnection{
			Name:          sec.Name(),
			Type:          phonebookStrategy(sec.Key("VpnStrategy").String()),
			ServerAddress: sec.Key("PhoneNumber").String(),
			Settings:      map[string]string{"phonebook": path},
		}
		for _, k := range []string{"VpnStrategy", "Device", "UseRasCredentials", "IpPrioritizeRemote"} {
			if sec.HasKey(k) {
				conn.Settings[k] = sec.Key(k).String()
			}
		}
		out = append(out, conn)
	}
	return out, nil
}

// phonebookStrategy maps a VpnStrategy code to a tunnel type name.
func phonebookStrategy(code string) string {
	switch code {
	case "1", "2":
		return "PPTP"
	case "3", "4":
		return "L2TP"
	case "5", "6":
		return "SSTP"
	case "7", "8", "14":
		return "IKEv2"
	default:
		return "Automatic"
	}
}

// parseNMConnection reads a NetworkManager keyfile and returns the profile
// when it describes a VPN or WireGuard connection.
func parseNMConnection(path string) (models.VPNConnection, bool, error) {
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return models.VPNConnection{}, false, fmt.Errorf("loading %s: %w", path, err)
	}
	conn := f.Section("connection")
	kind := conn.Key("type").String()
	if kind != "vpn" && kind != "wireguard" {
		return models.VPNConnection{}, false, nil
	}

	out := models.VPNConnection{
		Name:     conn.Key("id").String(),
		Type:     kind,
		Settings: map[string]string{"profile": path},
	}
	if out.Name == "" {
		out.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	switch kind {
	case "vpn":
		vpn := f.Section("vpn")
		if svc := vpn.Key("service-type").String(); svc != "" {
			out.Type = strings.TrimPrefix(svc, "org.freedesktop.NetworkManager.")
			out.Settings["service-type"] = svc
		}
		for _, k := range []string{"remote", "gateway", "host"} {
			if v := vpn.Key(k).String(); v != "" {
				out.ServerAddress = v
				break
			}
		}
	case "wireguard":
		for _, sec := range f.Sections() {
			if strings.HasPrefix(sec.Name(), "wireguard-peer.") {
				out.ServerAddress = sec.Key("endpoint").String()
				break
			}
		}
	}
	return out, true, nil
}

// nmConnections parses every keyfile in dir. Unreadable profiles are skipped.
func nmConnections(dir string) ([]models.VPNConnection, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []models.VPNConnection
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		conn, ok, err := parseNMConnection(filepath.Join(dir, e.Name()))
		if err != nil || !ok {
			continue
		}
		out = append(out, conn)
	}
	return out, nil
}
