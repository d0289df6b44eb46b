package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"
)

const (
	ScannerKeyHeader = "X-Scanner-Key"
	ScannerIDKey     = "scannerId"

	authCacheTTL = 10 * time.Minute
)

// ScannerAuth admits gate devices presenting a key whose bcrypt hash is
// configured. Verified keys are cached by digest to keep bcrypt off the hot
// path.
type ScannerAuth struct {
	hashes    [][]byte
	allowOpen bool

	mu    sync.Mutex
	cache map[string]cachedKey
	now   func() time.Time
}

type cachedKey struct {
	scannerID string
	expires   time.Time
}

// NewScannerAuth builds the guard. With no hashes configured every request is
// refused unless allowOpen is set.
func NewScannerAuth(hashes []string, allowOpen bool) *ScannerAuth {
	a := &ScannerAuth{
		allowOpen: allowOpen,
		cache:     make(map[string]cachedKey),
		now:       time.Now,
	}
	for _, h := range hashes {
		if h = strings.TrimSpace(h); h != "" {
			a.hashes = append(a.hashes, []byte(h))
		}
	}
	return a
}

// Authenticate returns a stable scanner id for key, or false.
func (a *ScannerAuth) Authenticate(key string) (string, bool) {
	if key == "" {
		return "", false
	}

	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])

	a.mu.Lock()
	if c, ok := a.cache[digest]; ok && a.now().Before(c.expires) {
		a.mu.Unlock()
		return c.scannerID, true
	}
	a.mu.Unlock()

	for _, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			id := "scanner_" + digest[:12]

			a.mu.Lock()
			a.cache[digest] = cachedKey{scannerID: id, expires: a.now().Add(authCacheTTL)}
			a.mu.Unlock()
			return id, true
		}
	}
	return "", false
}

func (a *ScannerAuth) Middleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if len(a.hashes) == 0 {
			if a.allowOpen {
				return e.Next()
			}
			return apis.NewUnauthorizedError("Scanner authentication is not configured.", nil)
		}

		id, ok := a.Authenticate(e.Request.Header.Get(ScannerKeyHeader))
		if !ok {
			return apis.NewUnauthorizedError("Invalid scanner key.", nil)
		}

		e.Set(ScannerIDKey, id)
		return e.Next()
	}
}

// HashScannerKey produces a value for SCANNER_KEY_HASHES.
func HashScannerKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
