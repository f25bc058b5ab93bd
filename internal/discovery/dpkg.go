package discovery

import (
	"bufio"
	"io"
	"strings"

	"github.com/pcsuccession/agent/internal/models"
)

// parseDpkgStatus reads a dpkg status database and returns the packages in
// the installed state. source is recorded as each entry's RegistryKey.
func parseDpkgStatus(r io.Reader, source string) ([]models.Application, error) {
	var (
		apps    []models.Application
		current map[string]string
	)
	flush := func() {
		if current == nil {
			return
		}
		if current["Package"] != "" && strings.HasSuffix(current["Status"], " installed") {
			apps = append(apps, models.Application{
				Name:        current["Package"],
				Version:     current["Version"],
				Publisher:   current["Maintainer"],
				RegistryKey: source,
			})
		}
		current = nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		// Continuation lines belong to the previous field.
		if line[0] == ' ' || line[0] == '\t' {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if current == nil {
			current = make(map[string]string)
		}
		current[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	flush()
	return apps, sc.Err()
}
