//go:build windows

package discovery

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/sys/windows/registry"

	"github.com/pcsuccession/agent/internal/models"
)

var hives = map[string]registry.Key{
	"HKLM": registry.LOCAL_MACHINE,
	"HKCU": registry.CURRENT_USER,
	"HKU":  registry.USERS,
}

var valueTypeNames = map[uint32]string{
	registry.SZ:        "REG_SZ",
	registry.EXPAND_SZ: "REG_EXPAND_SZ",
	registry.BINARY:    "REG_BINARY",
	registry.DWORD:     "REG_DWORD",
	registry.MULTI_SZ:  "REG_MULTI_SZ",
	registry.QWORD:     "REG_QWORD",
}

// registrySettings reads every value under the configured keys. A key that
// is missing or unreadable is reported and skipped.
func registrySettings(ctx context.Context, keys []string) ([]models.RegistryItem, error) {
	var (
		items []models.RegistryItem
		errs  error
	)
	for _, path := range keys {
		if ctx.Err() != nil {
			return items, ctx.Err()
		}
		found, err := readRegistryValues(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		items = append(items, found...)
	}
	return items, errs
}

func readRegistryValues(path string) ([]models.RegistryItem, error) {
	hive, subkey, ok := splitHive(path)
	if !ok {
		return nil, fmt.Errorf("unsupported registry path %q", path)
	}
	k, err := registry.OpenKey(hives[hive], subkey, registry.QUERY_VALUE)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer k.Close()

	names, err := k.ReadValueNames(-1)
	if err != nil {
		return nil, fmt.Errorf("listing values of %s: %w", path, err)
	}

	items := make([]models.RegistryItem, 0, len(names))
	for _, name := range names {
		value, valType, err := readValue(k, name)
		if err != nil {
			continue
		}
		typeName, ok := valueTypeNames[valType]
		if !ok {
			typeName = "REG_" + strconv.FormatUint(uint64(valType), 10)
		}
		items = append(items, models.RegistryItem{
			Path:      path,
			ValueName: name,
			Value:     value,
			Type:      typeName,
		})
	}
	return items, nil
}

func readValue(k registry.Key, name string) (string, uint32, error) {
	_, valType, err := k.GetValue(name, nil)
	if err != nil {
		return "", 0, err
	}
	switch valType {
	case registry.SZ, registry.EXPAND_SZ:
		s, _, err := k.GetStringValue(name)
		return s, valType, err
	case registry.DWORD, registry.QWORD:
		n, _, err := k.GetIntegerValue(name)
		return strconv.FormatUint(n, 10), valType, err
	case registry.MULTI_SZ:
		ss, _, err := k.GetStringsValue(name)
		return strings.Join(ss, ";"), valType, err
	default:
		b, _, err := k.GetBinaryValue(name)
		return hex.EncodeToString(b), valType, err
	}
}
