package discovery

import "strings"

// splitHive separates a key path such as `HKLM\SOFTWARE\Policies` into its
// hive abbreviation and the remaining subkey.
func splitHive(path string) (hive, subkey string, ok bool) {
	path = strings.TrimPrefix(strings.ReplaceAll(path, "/", `\`), `\`)
	hive, subkey, found := strings.Cut(path, `\`)
	if !found || subkey == "" {
		return "", "", false
	}
	switch strings.ToUpper(hive) {
	case "HKLM", "HKEY_LOCAL_MACHINE":
		return "HKLM", subkey, true
	case "HKCU", "HKEY_CURRENT_USER":
		return "HKCU", subkey, true
	case "HKU", "HKEY_USERS":
		return "HKU", subkey, true
	}
	return "", "", false
}
