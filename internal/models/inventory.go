package models

import "time"

// Inventory is a full point-in-time snapshot of the machine. It is rebuilt
// wholesale on every discovery cycle.
type Inventory struct {
	AgentID               string          `json:"agent_id"`
	Timestamp             time.Time       `json:"timestamp"`
	SystemInfo            SystemInfo      `json:"system_info"`
	InstalledApplications []Application   `json:"installed_applications"`
	RegistrySettings      []RegistryItem  `json:"registry_settings"`
	Certificates          []Certificate   `json:"certificates"`
	VPNConnections        []VPNConnection `json:"vpn_connections"`
	UserDataLocations     []FileLocation  `json:"user_data_locations"`
}

// SystemInfo describes the host.
type SystemInfo struct {
	ComputerName   string `json:"computer_name"`
	UserName       string `json:"user_name"`
	DomainName     string `json:"domain_name"`
	OSVersion      string `json:"os_version"`
	Is64Bit        bool   `json:"is_64_bit"`
	ProcessorCount int    `json:"processor_count"`
	TotalMemoryMB  uint64 `json:"total_memory_mb"`
	ProcessorName  string `json:"processor_name"`
	Manufacturer   string `json:"manufacturer"`
	Model          string `json:"model"`
	MachineName    string `json:"machine_name"`
}

// Application is one installed program. RegistryKey records where the entry
// was found; entries from different install registries are not deduplicated.
type Application struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	Publisher       string `json:"publisher"`
	InstallDate     string `json:"install_date"`
	InstallLocation string `json:"install_location"`
	UninstallString string `json:"uninstall_string"`
	RegistryKey     string `json:"registry_key"`
}

// RegistryItem is a single value read from a configured settings key.
type RegistryItem struct {
	Path      string `json:"path"`
	ValueName string `json:"value_name"`
	Value     string `json:"value"`
	Type      string `json:"type"`
}

// Certificate is one entry from a certificate store.
type Certificate struct {
	Subject       string    `json:"subject"`
	Issuer        string    `json:"issuer"`
	Thumbprint    string    `json:"thumbprint"`
	NotBefore     time.Time `json:"not_before"`
	NotAfter      time.Time `json:"not_after"`
	StoreLocation string    `json:"store_location"`
	StoreName     string    `json:"store_name"`
	HasPrivateKey bool      `json:"has_private_key"`
}

// VPNConnection is a configured VPN profile.
type VPNConnection struct {
	Name          string            `json:"name"`
	Type          string            `json:"type"`
	ServerAddress string            `json:"server_address"`
	Settings      map[string]string `json:"settings"`
}

// FileLocation is a well-known user-data folder with its aggregate size.
type FileLocation struct {
	Path      string `json:"path"`
	Type      string `json:"type"`
	SizeMB    int64  `json:"size_mb"`
	FileCount int    `json:"file_count"`
}

// AgentInfo is the registration payload for POST /api/v1/agents/register.
type AgentInfo struct {
	ComputerName string `json:"computer_name"`
	UserName     string `json:"user_name"`
	OSVersion    string `json:"os_version"`
}
