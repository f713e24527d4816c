package settings

import (
	"fmt"
	"log/slog"
	"sync"
)

// Canonical credential names. These are the only names SetKeys accepts.
const (
	KeyRecognizer  = "aai_api_key"
	KeyGenerator   = "gemini_api_key"
	KeySynthesizer = "murf_api_key"
	KeySearch      = "tavily_api_key"
	KeyWebhook     = "zapier_webhook_url"
)

// CredentialNames lists every credential the system can hold.
var CredentialNames = []string{
	KeyRecognizer,
	KeyGenerator,
	KeySynthesizer,
	KeySearch,
	KeyWebhook,
}

// Notifier receives a human-readable message when a credential lookup
// comes up empty. It is invoked asynchronously because some call sites
// cannot block on a response.
type Notifier func(msg string)

// Credentials holds provider secrets in memory only; they are never
// written to disk. Environment values are captured once at construction.
type Credentials struct {
	mu          sync.RWMutex
	env         map[string]string
	user        map[string]string
	overrideEnv bool
	logger      *slog.Logger
}

// NewCredentials creates a credential set seeded with environment values.
func NewCredentials(env map[string]string, logger *slog.Logger) *Credentials {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Credentials{
		env:    make(map[string]string, len(env)),
		user:   make(map[string]string),
		logger: logger.With("component", "credentials"),
	}
	for k, v := range env {
		c.env[k] = v
	}
	return c
}

// SetKeys stores user-supplied values for known credential names and
// sets the override-environment preference. Unknown names are dropped.
func (c *Credentials) SetKeys(keys map[string]string, overrideEnv bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrideEnv = overrideEnv
	for _, name := range CredentialNames {
		if v, ok := keys[name]; ok {
			c.user[name] = v
		}
	}
	c.logger.Info("api keys updated", "override_env", overrideEnv)
}

// Reset discards all user-supplied values and the override preference.
func (c *Credentials) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = make(map[string]string)
	c.overrideEnv = false
}

// Resolve returns the usable value for a credential name.
//
// Precedence, each branch checked only if the previous yields nothing:
// user value when override is set, environment value, user value as a
// fallback. When all are empty the notifier (if any) is told
// asynchronously and ok is false; the caller proceeds and fails
// downstream rather than raising here.
func (c *Credentials) Resolve(name string, notify Notifier) (string, bool) {
	c.mu.RLock()
	envVal := c.env[name]
	userVal := c.user[name]
	override := c.overrideEnv
	c.mu.RUnlock()

	switch {
	case override && userVal != "":
		c.logger.Info("using user-provided credential", "name", name)
		return userVal, true
	case envVal != "":
		c.logger.Debug("using environment credential", "name", name)
		return envVal, true
	case userVal != "":
		c.logger.Warn("no environment credential, falling back to user-provided value", "name", name)
		return userVal, true
	}

	msg := fmt.Sprintf("No %s found in environment or user-provided keys", name)
	c.logger.Error(msg)
	if notify != nil {
		go notify(msg)
	}
	return "", false
}
