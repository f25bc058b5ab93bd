//go:build windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	programData := os.Getenv("ProgramData")
	return []string{
		filepath.Join(programData, "PCSuccession", "agent.yaml"),
	}
}
