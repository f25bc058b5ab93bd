//go:build !windows

package discovery

import (
	"context"

	"github.com/pcsuccession/agent/internal/models"
)

// registrySettings has nothing to read outside Windows.
func registrySettings(_ context.Context, _ []string) ([]models.RegistryItem, error) {
	return nil, nil
}
