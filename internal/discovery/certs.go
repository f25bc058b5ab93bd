package discovery

import (
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"strings"

	"github.com/pcsuccession/agent/internal/models"
)

// Store locations and names enumerated by certificate discovery.
const (
	StoreCurrentUser  = "CurrentUser"
	StoreLocalMachine = "LocalMachine"
	StorePersonal     = "My"
	StoreRoot         = "Root"
)

type certStore struct {
	location string
	name     string
}

func (s certStore) key() string { return s.location + "/" + s.name }

// certStores is {per-user, machine-wide} x {personal, trusted-root}.
var certStores = []certStore{
	{StoreCurrentUser, StorePersonal},
	{StoreCurrentUser, StoreRoot},
	{StoreLocalMachine, StorePersonal},
	{StoreLocalMachine, StoreRoot},
}

// thumbprint is the upper-case hex SHA-1 of the DER encoding.
func thumbprint(der []byte) string {
	sum := sha1.Sum(der)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func toCertificate(c *x509.Certificate, store certStore, hasKey bool) models.Certificate {
	return models.Certificate{
		Subject:       c.Subject.String(),
		Issuer:        c.Issuer.String(),
		Thumbprint:    thumbprint(c.Raw),
		NotBefore:     c.NotBefore.UTC(),
		NotAfter:      c.NotAfter.UTC(),
		StoreLocation: store.location,
		StoreName:     store.name,
		HasPrivateKey: hasKey,
	}
}
