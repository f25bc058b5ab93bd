//go:build windows

package discovery

import (
	"context"
	"crypto/x509"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/pcsuccession/agent/internal/models"
)

const certKeyProvInfoPropID = 2

var (
	crypt32                               = windows.NewLazySystemDLL("crypt32.dll")
	procCertGetCertificateContextProperty = crypt32.NewProc("CertGetCertificateContextProperty")
)

var storeFlags = map[string]uint32{
	StoreCurrentUser:  windows.CERT_SYSTEM_STORE_CURRENT_USER,
	StoreLocalMachine: windows.CERT_SYSTEM_STORE_LOCAL_MACHINE,
}

// Certificate directories are a Unix concept; system stores are used here.
func defaultCertificateDirs() map[string]string {
	return map[string]string{}
}

// certificates enumerates the CryptoAPI system stores. A store that cannot
// be opened is skipped.
func certificates(ctx context.Context, _ map[string]string) ([]models.Certificate, error) {
	var out []models.Certificate
	for _, store := range certStores {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		certs, err := readSystemStore(store)
		if err != nil {
			continue
		}
		out = append(out, certs...)
	}
	return out, nil
}

func readSystemStore(store certStore) ([]models.Certificate, error) {
	name, err := windows.UTF16PtrFromString(store.name)
	if err != nil {
		return nil, err
	}
	h, err := windows.CertOpenStore(
		windows.CERT_STORE_PROV_SYSTEM,
		0,
		0,
		storeFlags[store.location]|windows.CERT_STORE_READONLY_FLAG|windows.CERT_STORE_OPEN_EXISTING_FLAG,
		uintptr(unsafe.Pointer(name)),
	)
	if err != nil {
		return nil, err
	}
	defer windows.CertCloseStore(h, 0)

	var (
		out []models.Certificate
		cur *windows.CertContext
	)
	for {
		cur, err = windows.CertEnumCertificatesInStore(h, cur)
		if cur == nil {
			break
		}
		der := make([]byte, cur.Length)
		copy(der, unsafe.Slice(cur.EncodedCert, cur.Length))
		c, err := x509.ParseCertificate(der)
		if err != nil {
			continue
		}
		out = append(out, toCertificate(c, store, hasPrivateKey(cur)))
	}
	return out, nil
}

func hasPrivateKey(cur *windows.CertContext) bool {
	var size uint32
	r, _, _ := procCertGetCertificateContextProperty.Call(
		uintptr(unsafe.Pointer(cur)),
		certKeyProvInfoPropID,
		0,
		uintptr(unsafe.Pointer(&size)),
	)
	return r != 0
}
