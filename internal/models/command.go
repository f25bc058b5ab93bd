package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// CommandType identifies the kind of work a Command asks the agent to perform.
type CommandType string

// Known command kinds.
const (
	CommandRefreshInventory    CommandType = "refresh_inventory"
	CommandUpdateSetting       CommandType = "update_setting"
	CommandExecPowerShell      CommandType = "exec_powershell"
	CommandInstallApplication  CommandType = "install_application"
	CommandConfigureSystem     CommandType = "configure_system"
	CommandTransferFiles       CommandType = "transfer_files"
	CommandInstallCertificates CommandType = "install_certificates"
	CommandConfigureVPN        CommandType = "configure_vpn"
	CommandVerifyInstallation  CommandType = "verify_installation"
)

// Command is a unit of work pulled from the orchestration service.
// It is never modified after it has been received.
type Command struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters"`
}

// CommandResult is the body of POST /api/v1/agents/commands/{id}/result.
type CommandResult struct {
	Success   bool      `json:"success"`
	Error     *string   `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload is the typed form of a Command's parameters. The set of
// implementations is closed: every known CommandType has one, and anything
// else decodes to UnknownPayload.
type Payload interface {
	Kind() CommandType
	isPayload()
}

// RefreshInventory asks for an immediate discovery-and-push.
type RefreshInventory struct{}

// UpdateSetting writes a single key in the local settings store.
type UpdateSetting struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ExecPowerShell runs a script through the platform shell.
type ExecPowerShell struct {
	Script         string `json:"script"`
	AsAdmin        bool   `json:"as_admin"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// InstallApplication downloads and silently installs a program.
type InstallApplication struct {
	ApplicationName  string `json:"application_name"`
	InstallerURL     string `json:"installer_url"`
	InstallArguments string `json:"install_arguments"`
	VerifyCommand    string `json:"verify_command"`
}

// ConfigureSystem applies registry, environment, service or firewall settings.
type ConfigureSystem struct {
	ConfigType string         `json:"config_type"`
	Settings   map[string]any `json:"settings"`
}

// TransferFiles copies files between paths.
type TransferFiles struct {
	SourcePath    string `json:"source_path"`
	TargetPath    string `json:"target_path"`
	IncludeHidden bool   `json:"include_hidden"`
}

// InstallCertificates imports a base64 encoded certificate into a store.
type InstallCertificates struct {
	CertificateData string `json:"certificate_data"`
	StoreLocation   string `json:"store_location"`
	StoreName       string `json:"store_name"`
}

// ConfigureVPN creates a VPN connection profile.
type ConfigureVPN struct {
	ConnectionName string `json:"connection_name"`
	ServerAddress  string `json:"server_address"`
	ConnectionType string `json:"connection_type"`
}

// VerifyInstallation checks that an application or configuration is present.
type VerifyInstallation struct {
	VerificationType string `json:"verification_type"`
	Target           string `json:"target"`
}

// UnknownPayload carries a command whose type the agent does not recognise.
type UnknownPayload struct {
	Type       string
	Parameters map[string]any
}

func (RefreshInventory) Kind() CommandType    { return CommandRefreshInventory }
func (UpdateSetting) Kind() CommandType       { return CommandUpdateSetting }
func (ExecPowerShell) Kind() CommandType      { return CommandExecPowerShell }
func (InstallApplication) Kind() CommandType  { return CommandInstallApplication }
func (ConfigureSystem) Kind() CommandType     { return CommandConfigureSystem }
func (TransferFiles) Kind() CommandType       { return CommandTransferFiles }
func (InstallCertificates) Kind() CommandType { return CommandInstallCertificates }
func (ConfigureVPN) Kind() CommandType        { return CommandConfigureVPN }
func (VerifyInstallation) Kind() CommandType  { return CommandVerifyInstallation }
func (p UnknownPayload) Kind() CommandType    { return CommandType(p.Type) }

func (RefreshInventory) isPayload()    {}
func (UpdateSetting) isPayload()       {}
func (ExecPowerShell) isPayload()      {}
func (InstallApplication) isPayload()  {}
func (ConfigureSystem) isPayload()     {}
func (TransferFiles) isPayload()       {}
func (InstallCertificates) isPayload() {}
func (ConfigureVPN) isPayload()        {}
func (VerifyInstallation) isPayload()  {}
func (UnknownPayload) isPayload()      {}

// Decode converts the open-ended parameter map into the typed payload for
// the command's type. Unrecognised types yield an UnknownPayload and no error;
// an error is returned only when the parameters of a known type are malformed.
func (c Command) Decode() (Payload, error) {
	var p Payload
	switch CommandType(c.Type) {
	case CommandRefreshInventory:
		return RefreshInventory{}, nil
	case CommandUpdateSetting:
		p = &UpdateSetting{}
	case CommandExecPowerShell:
		p = &ExecPowerShell{}
	case CommandInstallApplication:
		p = &InstallApplication{}
	case CommandConfigureSystem:
		p = &ConfigureSystem{}
	case CommandTransferFiles:
		p = &TransferFiles{}
	case CommandInstallCertificates:
		p = &InstallCertificates{}
	case CommandConfigureVPN:
		p = &ConfigureVPN{}
	case CommandVerifyInstallation:
		p = &VerifyInstallation{}
	default:
		return UnknownPayload{Type: c.Type, Parameters: c.Parameters}, nil
	}

	raw, err := json.Marshal(c.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encoding %s parameters: %w", c.Type, err)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decoding %s parameters: %w", c.Type, err)
	}

	switch v := p.(type) {
	case *UpdateSetting:
		if v.Key == "" {
			return nil, fmt.Errorf("update_setting: key is required")
		}
		return *v, nil
	case *ExecPowerShell:
		if v.Script == "" {
			return nil, fmt.Errorf("exec_powershell: script is required")
		}
		return *v, nil
	case *InstallApplication:
		return *v, nil
	case *ConfigureSystem:
		return *v, nil
	case *TransferFiles:
		return *v, nil
	case *InstallCertificates:
		return *v, nil
	case *ConfigureVPN:
		return *v, nil
	case *VerifyInstallation:
		return *v, nil
	}
	return nil, fmt.Errorf("unhandled command type %q", c.Type)
}
