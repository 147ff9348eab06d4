// Package account manages the user's cryptographic identity records:
// one ED25519 keypair per mail address, with the secret key sealed by a
// passphrase. Records live in their own private database file, separate
// from the header cache, accessed through the same store abstraction.
package account

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"lettera/internal/crypto"
	"lettera/internal/logging"
	"lettera/internal/store"
)

// Account is one identity record. The secret key is stored sealed; the
// public halves are kept in the clear for display and verification.
type Account struct {
	ID            string            `cbor:"id"`
	Address       string            `cbor:"addr"`
	PublicKey     ed25519.PublicKey `cbor:"pub"`
	EncPublicKey  []byte            `cbor:"encpub"`
	Enabled       bool              `cbor:"enabled"`
	PreferEncrypt bool              `cbor:"prefer"`
	CreatedAt     time.Time         `cbor:"created"`

	SealedKey []byte `cbor:"sealed"`
	KDFSalt   []byte `cbor:"salt"`
	KDFTime   uint32 `cbor:"kdf_t"`
	KDFMemory uint32 `cbor:"kdf_m"`
}

const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024 // KiB
	kdfThreads = 4
	saltSize   = 16
)

var (
	ErrExists     = errors.New("account already exists")
	ErrNotFound   = errors.New("account not found")
	ErrPassphrase = errors.New("wrong passphrase")
)

var logger = logging.For("account")

// Manager owns the private account store.
type Manager struct {
	st store.Store
}

// Open opens (or creates) the account database at path using the named
// store backend. The backend must support iteration.
func Open(backend, path string) (*Manager, error) {
	st, err := store.Open(backend, path)
	if err != nil {
		return nil, err
	}
	if _, ok := st.(store.Walker); !ok {
		st.Close()
		return nil, fmt.Errorf("store backend %q cannot list accounts", backend)
	}
	return &Manager{st: st}, nil
}

func (m *Manager) Close() error {
	return m.st.Close()
}

// Create generates a fresh keypair for address and seals the secret key
// under passphrase. The address doubles as the record key.
func (m *Manager) Create(address string, passphrase []byte) (*Account, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" || !strings.Contains(address, "@") {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	if _, err := m.st.Fetch([]byte(address)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, address)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking for existing account: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	_, encPub, err := crypto.EncryptionKeypair(priv)
	if err != nil {
		return nil, fmt.Errorf("deriving encryption key: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	sealed, err := seal(priv.Seed(), passphrase, salt)
	if err != nil {
		return nil, err
	}

	acct := &Account{
		ID:           uuid.NewString(),
		Address:      address,
		PublicKey:    pub,
		EncPublicKey: encPub,
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
		SealedKey:    sealed,
		KDFSalt:      salt,
		KDFTime:      kdfTime,
		KDFMemory:    kdfMemory,
	}
	if err := m.put(acct); err != nil {
		return nil, err
	}
	logger.Info("account created", "address", address, "id", acct.ID)
	return acct, nil
}

// Get returns the account for address.
func (m *Manager) Get(address string) (*Account, error) {
	raw, err := m.st.Fetch([]byte(strings.ToLower(address)))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}
	var acct Account
	if err := cbor.Unmarshal(raw, &acct); err != nil {
		return nil, fmt.Errorf("decoding account record: %w", err)
	}
	return &acct, nil
}

// List returns all accounts sorted by address.
func (m *Manager) List() ([]*Account, error) {
	var accts []*Account
	err := m.st.(store.Walker).Walk(func(key, value []byte) error {
		var acct Account
		if err := cbor.Unmarshal(value, &acct); err != nil {
			logger.Warn("skipping corrupt account record", "key", string(key), "err", err)
			return nil
		}
		accts = append(accts, &acct)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].Address < accts[j].Address })
	return accts, nil
}

// Delete removes the account for address. Deleting an absent account
// is not an error.
func (m *Manager) Delete(address string) error {
	return m.st.Delete([]byte(strings.ToLower(address)))
}

// SetEnabled flips the active flag.
func (m *Manager) SetEnabled(address string, enabled bool) (*Account, error) {
	acct, err := m.Get(address)
	if err != nil {
		return nil, err
	}
	acct.Enabled = enabled
	return acct, m.put(acct)
}

// SetPreferEncrypt flips the prefer-encrypt flag.
func (m *Manager) SetPreferEncrypt(address string, prefer bool) (*Account, error) {
	acct, err := m.Get(address)
	if err != nil {
		return nil, err
	}
	acct.PreferEncrypt = prefer
	return acct, m.put(acct)
}

// Unlock unseals the account's secret key. The recovered key is checked
// against the stored public key, so a wrong passphrase (or a tampered
// record) is always ErrPassphrase.
func (m *Manager) Unlock(address string, passphrase []byte) (ed25519.PrivateKey, error) {
	acct, err := m.Get(address)
	if err != nil {
		return nil, err
	}
	seed, err := unseal(acct.SealedKey, passphrase, acct.KDFSalt, acct.KDFTime, acct.KDFMemory)
	if err != nil {
		return nil, err
	}
	priv := ed25519.NewKeyFromSeed(seed)
	if !priv.Public().(ed25519.PublicKey).Equal(acct.PublicKey) {
		return nil, ErrPassphrase
	}
	return priv, nil
}

func (m *Manager) put(acct *Account) error {
	raw, err := cbor.Marshal(acct)
	if err != nil {
		return fmt.Errorf("encoding account record: %w", err)
	}
	return m.st.Store([]byte(acct.Address), raw)
}

func seal(secret, passphrase, salt []byte) ([]byte, error) {
	key := argon2.IDKey(passphrase, salt, kdfTime, kdfMemory, kdfThreads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, secret, nil), nil
}

func unseal(sealed, passphrase, salt []byte, timeCost, memCost uint32) ([]byte, error) {
	key := argon2.IDKey(passphrase, salt, timeCost, memCost, kdfThreads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrPassphrase
	}
	nonce, box := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	secret, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, ErrPassphrase
	}
	return secret, nil
}
