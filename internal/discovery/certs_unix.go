//go:build !windows

package discovery

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pcsuccession/agent/internal/models"
)

var certExtensions = map[string]bool{".pem": true, ".crt": true, ".cer": true}

func defaultCertificateDirs() map[string]string {
	dirs := map[string]string{
		StoreLocalMachine + "/" + StoreRoot:     "/etc/ssl/certs",
		StoreLocalMachine + "/" + StorePersonal: "/etc/ssl/localcerts",
	}
	if runtime.GOOS == "darwin" {
		dirs[StoreLocalMachine+"/"+StoreRoot] = "/etc/ssl"
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs[StoreCurrentUser+"/"+StorePersonal] = filepath.Join(home, ".local", "share", "certs")
		dirs[StoreCurrentUser+"/"+StoreRoot] = filepath.Join(home, ".local", "share", "ca-certificates")
	}
	return dirs
}

// certificates scans a PEM directory per store. Missing or unreadable
// directories are skipped.
func certificates(ctx context.Context, dirs map[string]string) ([]models.Certificate, error) {
	var out []models.Certificate
	for _, store := range certStores {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		dir, ok := dirs[store.key()]
		if !ok || dir == "" {
			continue
		}
		out = append(out, scanPEMDir(dir, store)...)
	}
	return out, nil
}

// scanPEMDir parses every certificate in dir. A certificate counts as having
// a private key when a file with the same base name and a .key extension
// sits next to it. Duplicate certificates (hash symlinks) are reported once.
func scanPEMDir(dir string, store certStore) []models.Certificate {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []models.Certificate
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || !certExtensions[ext] {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		_, keyErr := os.Stat(strings.TrimSuffix(path, filepath.Ext(path)) + ".key")
		hasKey := keyErr == nil

		for _, c := range parsePEMCertificates(data) {
			cert := toCertificate(c, store, hasKey)
			if seen[cert.Thumbprint] {
				continue
			}
			seen[cert.Thumbprint] = true
			out = append(out, cert)
		}
	}
	return out
}

func parsePEMCertificates(data []byte) []*x509.Certificate {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return certs
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		certs = append(certs, c)
	}
}
