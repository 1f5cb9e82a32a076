// Package controller wires the credential store, the long-lived server
// secrets and the pure protocol handlers into the authentication service:
// it owns the bootstrap lifecycle and enforces authorization on every
// administrative mutation.
package controller

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/ticketd/internal/logger"
	"github.com/marmos91/ticketd/pkg/crypto"
	"github.com/marmos91/ticketd/pkg/protocol"
	"github.com/marmos91/ticketd/pkg/store"
)

const (
	// TicketGrantingKeyID is the store entry holding the secret key that
	// seals all ticket granting tickets.
	TicketGrantingKeyID = "ticket_granting_key"

	// ServiceServerSecretKeyID is the store entry holding the secret key
	// that seals all client-server tickets.
	ServiceServerSecretKeyID = "service_server_secret_key"

	// PrivateKeyFilename is the on-disk file for the service-server
	// private key, next to the credential store.
	PrivateKeyFilename = "service_server_private_key"

	// initialPasswordLength is the length of the generated bootstrap
	// password.
	initialPasswordLength = 15
)

// State tracks the controller lifecycle.
type State int

const (
	Uninitialized State = iota
	Initialized
	Active
	Inactive
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Options configures a Controller.
type Options struct {
	// CredentialsDir holds the credential store and the service-server
	// private key file.
	CredentialsDir string

	// TicketValidity is how long issued tickets stay valid.
	TicketValidity time.Duration

	// Cipher seals and opens every protocol record.
	Cipher crypto.Cipher

	// KeyDeriver turns the initial password into the bootstrap
	// registration key.
	KeyDeriver crypto.KeyDeriver

	// ForceBootstrap regenerates the initial password on every activation
	// regardless of store contents. For tests.
	ForceBootstrap bool
}

// Controller implements the remote-callable authentication surface. The
// credential store serializes shared state internally; the controller's own
// mutex only guards the lifecycle state and the initial password, so
// protocol requests from concurrent transport goroutines never contend
// beyond the store.
type Controller struct {
	store          *store.Store
	cipher         crypto.Cipher
	kdf            crypto.KeyDeriver
	validity       time.Duration
	dir            string
	forceBootstrap bool

	mu              sync.Mutex
	state           State
	initialPassword string

	tgsSecretKey []byte
	ssSecretKey  []byte
}

// New creates a controller in the Uninitialized state.
func New(opts Options) (*Controller, error) {
	if opts.CredentialsDir == "" {
		return nil, errors.New("credentials directory is required")
	}
	if opts.TicketValidity <= 0 {
		return nil, errors.New("ticket validity must be positive")
	}
	if opts.Cipher == nil {
		opts.Cipher = crypto.LegacyECB{}
	}
	if opts.KeyDeriver == nil {
		opts.KeyDeriver = crypto.LegacyKeyDeriver{}
	}

	return &Controller{
		store:          store.New(filepath.Join(opts.CredentialsDir, store.Filename)),
		cipher:         opts.Cipher,
		kdf:            opts.KeyDeriver,
		validity:       opts.TicketValidity,
		dir:            opts.CredentialsDir,
		forceBootstrap: opts.ForceBootstrap,
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Init loads the credential store and ensures both long-lived secret keys
// exist, generating and persisting them on first start.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Uninitialized {
		return fmt.Errorf("cannot initialize controller in state %s", c.state)
	}

	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	if err := c.store.Init(); err != nil {
		return err
	}

	for _, id := range []string{TicketGrantingKeyID, ServiceServerSecretKeyID} {
		if c.store.HasEntry(id) {
			continue
		}
		if err := c.store.AddCredentials(id, crypto.GenerateKey(), false, false); err != nil {
			return fmt.Errorf("failed to persist %s: %w", id, err)
		}
	}

	var err error
	if c.tgsSecretKey, err = c.store.GetCredentials(TicketGrantingKeyID); err != nil {
		return err
	}
	if c.ssSecretKey, err = c.store.GetCredentials(ServiceServerSecretKeyID); err != nil {
		return err
	}

	c.state = Initialized
	return nil
}

// Activate completes startup. On the first activation it creates the
// service-server key pair (public key into the store, private key into an
// owner-only file) and, when the store still holds nothing but the
// bootstrap entries, generates the initial password and prints it to
// standard output for the operator. The password lives in process memory
// only and is cleared by the first successful registration.
func (c *Controller) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Initialized && c.state != Inactive {
		return fmt.Errorf("cannot activate controller in state %s", c.state)
	}

	if !c.store.HasEntry(store.ServiceServerID) || c.forceBootstrap {
		publicKey, privateKey, err := crypto.GenerateKeyPair()
		if err != nil {
			return err
		}
		if err := c.store.AddCredentials(store.ServiceServerID, publicKey, false, true); err != nil {
			return fmt.Errorf("failed to store service server public key: %w", err)
		}
		keyPath := filepath.Join(c.dir, PrivateKeyFilename)
		if err := os.WriteFile(keyPath, privateKey, 0o600); err != nil {
			return fmt.Errorf("failed to write service server private key: %w", err)
		}
		logger.Info("Generated service server key pair", "private_key", keyPath)
	}

	if c.initialPasswordRequired() || c.forceBootstrap {
		password, err := generatePassword(initialPasswordLength)
		if err != nil {
			return err
		}
		c.initialPassword = password
		fmt.Fprintf(os.Stdout, "Initial password: %s\n", password)
		logger.Warn("Credential store is empty, generated initial registration password")
	}

	c.state = Active
	return nil
}

// Deactivate stops the controller and flushes the store.
func (c *Controller) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Active {
		return fmt.Errorf("cannot deactivate controller in state %s", c.state)
	}
	c.state = Inactive
	return c.store.Shutdown()
}

// InitialPassword returns the bootstrap password, or "" once the first user
// registered.
func (c *Controller) InitialPassword() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialPassword
}

// initialPasswordRequired reports whether the store still awaits its first
// user: never bootstrapped and holding exactly the three bootstrap entries.
// Callers must hold the mutex.
func (c *Controller) initialPasswordRequired() bool {
	return !c.store.Bootstrapped() &&
		c.store.Size() == 3 &&
		c.store.HasEntry(store.ServiceServerID) &&
		c.store.HasEntry(TicketGrantingKeyID) &&
		c.store.HasEntry(ServiceServerSecretKeyID)
}

// splitPrincipal splits a "user@client" identifier into its halves. Either
// may be empty.
func splitPrincipal(id string) (user, client string) {
	user, client, found := strings.Cut(id, "@")
	if !found {
		return id, ""
	}
	return user, client
}

// passwordAlphabet is the character set of generated initial passwords.
const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generatePassword returns a random alphanumeric string of length n.
func generatePassword(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate initial password: %w", err)
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = passwordAlphabet[int(b)%len(passwordAlphabet)]
	}
	return string(out), nil
}

// surfaceError folds internal failures into the protocol error taxonomy at
// the remote boundary: typed protocol errors pass through, everything else
// becomes a generic rejection so internal causes never leak to callers.
func surfaceError(op string, err error) error {
	var notAvailable *protocol.NotAvailableError
	var rejected *protocol.RejectedError
	var denied *protocol.PermissionDeniedError
	var fault *protocol.CryptoFaultError

	switch {
	case errors.Is(err, protocol.ErrSessionExpired):
		return err
	case errors.As(err, &notAvailable), errors.As(err, &rejected):
		logger.Warn("Request rejected", "op", op, "error", err)
		return err
	case errors.As(err, &denied):
		logger.Warn("Permission denied", "op", op, "error", err)
		return err
	case errors.As(err, &fault):
		logger.Error("Crypto fault", "op", op, "error", err)
		return protocol.Rejected("internal server error, please try again")
	default:
		logger.Error("Internal error", "op", op, "error", err)
		return protocol.Rejected("internal server error, please try again")
	}
}
