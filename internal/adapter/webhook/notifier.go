// Package webhook delivers signed push notifications to task callback URLs.
package webhook

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/skyfuse/skyfuse/internal/config"
	"github.com/skyfuse/skyfuse/internal/port/notifier"
)

// SignatureHeader carries the base64 ed25519 signature of the request body.
// Receivers verify it against the key published at /api/v1/notifications/key.
const SignatureHeader = "X-Skyfuse-Signature"

// Notifier implements the notifier port over HTTP with ed25519-signed
// payloads.
type Notifier struct {
	key    ed25519.PrivateKey
	client *http.Client
}

// New creates a notifier. The signing key is loaded from the configured
// PEM file; with no file configured an ephemeral key is generated, which
// is fine for development but means receivers must refetch the public key
// after every restart.
func New(cfg config.Notify) (*Notifier, error) {
	key, err := loadKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		key:    key,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Push delivers the notification to the target URL, signed.
func (n *Notifier) Push(ctx context.Context, target string, note notifier.Notification) error {
	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	sig := ed25519.Sign(n.key, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, base64.StdEncoding.EncodeToString(sig))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification target %s returned %d", target, resp.StatusCode)
	}
	slog.Debug("push notification delivered", "task_id", note.TaskID, "target", target)
	return nil
}

// PublicKey returns the verification key receivers use to authenticate
// notifications.
func (n *Notifier) PublicKey() ed25519.PublicKey {
	return n.key.Public().(ed25519.PublicKey)
}

func loadKey(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		slog.Warn("no signing key configured, generated ephemeral key")
		return key, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("signing key %s: no PEM block", path)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key %s is not ed25519", path)
	}
	return key, nil
}
