package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/models"
)

func healthySources() Sources {
	return Sources{
		SystemInfo: func(context.Context) (models.SystemInfo, error) {
			return models.SystemInfo{ComputerName: "PC-01"}, nil
		},
		Applications: func(context.Context) ([]models.Application, error) {
			return []models.Application{{Name: "Editor"}, {Name: "Browser"}}, nil
		},
		Registry: func(context.Context) ([]models.RegistryItem, error) {
			return []models.RegistryItem{{Path: `HKLM\SOFTWARE\Policies`, ValueName: "X"}}, nil
		},
		Certificates: func(context.Context) ([]models.Certificate, error) {
			return []models.Certificate{{Subject: "CN=root"}}, nil
		},
		VPN: func(context.Context) ([]models.VPNConnection, error) {
			return []models.VPNConnection{{Name: "Office"}}, nil
		},
		UserData: func(context.Context) ([]models.FileLocation, error) {
			return []models.FileLocation{{Type: "Documents", SizeMB: 10}}, nil
		},
	}
}

func TestPerformFullDiscovery_AllSucceed(t *testing.T) {
	c := NewCollectorWith(healthySources(), zap.NewNop())
	inv, err := c.PerformFullDiscovery(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.SystemInfo.ComputerName != "PC-01" || len(inv.InstalledApplications) != 2 ||
		len(inv.RegistrySettings) != 1 || len(inv.Certificates) != 1 ||
		len(inv.VPNConnections) != 1 || len(inv.UserDataLocations) != 1 {
		t.Errorf("inventory incomplete: %+v", inv)
	}
	if inv.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestPerformFullDiscovery_FailureIsolation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Sources)
		check  func(t *testing.T, inv models.Inventory)
	}{
		{
			name: "applications error",
			mutate: func(s *Sources) {
				s.Applications = func(context.Context) ([]models.Application, error) {
					return nil, errors.New("registry unavailable")
				}
			},
			check: func(t *testing.T, inv models.Inventory) {
				if len(inv.InstalledApplications) != 0 {
					t.Errorf("applications = %v, want empty", inv.InstalledApplications)
				}
				if len(inv.Certificates) != 1 || len(inv.VPNConnections) != 1 {
					t.Error("sibling categories lost")
				}
			},
		},
		{
			name: "certificates panic",
			mutate: func(s *Sources) {
				s.Certificates = func(context.Context) ([]models.Certificate, error) {
					panic("store handle invalid")
				}
			},
			check: func(t *testing.T, inv models.Inventory) {
				if len(inv.Certificates) != 0 {
					t.Errorf("certificates = %v, want empty", inv.Certificates)
				}
				if len(inv.InstalledApplications) != 2 || inv.SystemInfo.ComputerName != "PC-01" {
					t.Error("sibling categories lost")
				}
			},
		},
		{
			name: "partial vpn result kept",
			mutate: func(s *Sources) {
				s.VPN = func(context.Context) ([]models.VPNConnection, error) {
					return []models.VPNConnection{{Name: "Home"}}, errors.New("second phonebook unreadable")
				}
			},
			check: func(t *testing.T, inv models.Inventory) {
				if len(inv.VPNConnections) != 1 || inv.VPNConnections[0].Name != "Home" {
					t.Errorf("vpn = %v, want partial result", inv.VPNConnections)
				}
			},
		},
		{
			name: "system info error",
			mutate: func(s *Sources) {
				s.SystemInfo = func(context.Context) (models.SystemInfo, error) {
					return models.SystemInfo{}, errors.New("wmi timeout")
				}
			},
			check: func(t *testing.T, inv models.Inventory) {
				if len(inv.UserDataLocations) != 1 || len(inv.RegistrySettings) != 1 {
					t.Error("sibling categories lost")
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sources := healthySources()
			tt.mutate(&sources)
			inv, err := NewCollectorWith(sources, zap.NewNop()).PerformFullDiscovery(context.Background())
			if !errors.Is(err, ErrCollection) {
				t.Errorf("error = %v, want ErrCollection", err)
			}
			if len(multierr.Errors(err)) != 1 {
				t.Errorf("got %d aggregated errors, want 1", len(multierr.Errors(err)))
			}
			tt.check(t, inv)
		})
	}
}

func TestPerformFullDiscovery_EmptyCategoriesEncodeAsArrays(t *testing.T) {
	inv, err := NewCollectorWith(Sources{}, zap.NewNop()).PerformFullDiscovery(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(inv)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "null") {
		t.Errorf("inventory JSON contains null: %s", data)
	}
}

func TestSplitHive(t *testing.T) {
	tests := []struct {
		in         string
		hive, rest string
		ok         bool
	}{
		{`HKLM\SOFTWARE\Policies`, "HKLM", `SOFTWARE\Policies`, true},
		{`HKEY_CURRENT_USER\Software\App`, "HKCU", `Software\App`, true},
		{`hku/.DEFAULT/Control Panel`, "HKU", `.DEFAULT\Control Panel`, true},
		{`HKCR\.txt`, "", "", false},
		{`HKLM`, "", "", false},
	}
	for _, tt := range tests {
		hive, rest, ok := splitHive(tt.in)
		if hive != tt.hive || rest != tt.rest || ok != tt.ok {
			t.Errorf("splitHive(%q) = %q, %q, %v; want %q, %q, %v",
				tt.in, hive, rest, ok, tt.hive, tt.rest, tt.ok)
		}
	}
}
