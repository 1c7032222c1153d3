// Package k8ssecret implements the one concrete credential provider the
// runtime ships: it resolves a credential by reading an in-cluster
// Kubernetes Secret.
package k8ssecret

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/vitaliisemenov/agentcore/internal/agent/credential"
	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
)

const (
	defaultMaxRetries      = 3
	defaultRetryBackoff    = 100 * time.Millisecond
	defaultMaxRetryBackoff = 5 * time.Second
)

// Config configures one Provider instance, built from the Credentials
// section entry naming this provider's CredentialType.
type Config struct {
	ID         envelope.ComponentId
	Namespace  string
	SecretName string
	// Keys restricts the resolved credential to these data keys. Empty
	// means "all keys in the secret".
	Keys    []string
	Timeout time.Duration

	// MaxRetries, RetryBackoff, and MaxRetryBackoff parameterize Resolve's
	// exponential-backoff retry over transient API errors. Zero values
	// fall back to defaultMaxRetries/defaultRetryBackoff/defaultMaxRetryBackoff.
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// Provider reads a Secret's data into a map[string]string credential.
type Provider struct {
	id              envelope.ComponentId
	namespace       string
	secretName      string
	keys            []string
	timeout         time.Duration
	maxRetries      int
	retryBackoff    time.Duration
	maxRetryBackoff time.Duration
	clientset       kubernetes.Interface
	logger          *slog.Logger
}

// New builds a Provider using the in-cluster Kubernetes configuration. It
// fails fast if that configuration is unavailable, rather than deferring
// the failure to the first Resolve call.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("k8ssecret: in-cluster config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("k8ssecret: build clientset: %w", err)
	}

	return newWithClientset(cfg, clientset, logger), nil
}

// newWithClientset lets tests inject a fake clientset instead of an
// in-cluster one.
func newWithClientset(cfg Config, clientset kubernetes.Interface, logger *slog.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}
	maxRetryBackoff := cfg.MaxRetryBackoff
	if maxRetryBackoff <= 0 {
		maxRetryBackoff = defaultMaxRetryBackoff
	}
	return &Provider{
		id:              cfg.ID,
		namespace:       cfg.Namespace,
		secretName:      cfg.SecretName,
		keys:            cfg.Keys,
		timeout:         timeout,
		maxRetries:      maxRetries,
		retryBackoff:    retryBackoff,
		maxRetryBackoff: maxRetryBackoff,
		clientset:       clientset,
		logger:          logger.With("component", string(cfg.ID)),
	}
}

// ID implements credential.Provider.
func (p *Provider) ID() envelope.ComponentId { return p.id }

// Resolve fetches the secret and returns its data (or the requested subset
// of keys) as a map[string]string credential. The fetch itself retries
// transient API errors (timeouts, 5xx, rate limiting) with exponential
// backoff; permanent errors (auth, not-found, invalid) fail immediately.
func (p *Provider) Resolve(ctx context.Context) (credential.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var secret *corev1.Secret
	err := p.retryWithBackoff(ctx, func() error {
		s, err := p.clientset.CoreV1().Secrets(p.namespace).Get(ctx, p.secretName, metav1.GetOptions{})
		if err != nil {
			return err
		}
		secret = s
		return nil
	})
	if err != nil {
		p.logger.Error("failed to read secret", "namespace", p.namespace, "secret", p.secretName, "error", err)
		return nil, fmt.Errorf("k8ssecret: get secret %s/%s: %w", p.namespace, p.secretName, err)
	}

	values := make(map[string]string, len(secret.Data))
	if len(p.keys) == 0 {
		for k, v := range secret.Data {
			values[k] = string(v)
		}
		return values, nil
	}

	for _, k := range p.keys {
		v, ok := secret.Data[k]
		if !ok {
			return nil, fmt.Errorf("k8ssecret: key %q not present in secret %s/%s", k, p.namespace, p.secretName)
		}
		values[k] = string(v)
	}
	return values, nil
}

// retryWithBackoff runs operation, retrying transient failures with
// exponential backoff up to maxRetries, bounded by maxRetryBackoff.
func (p *Provider) retryWithBackoff(ctx context.Context, operation func() error) error {
	backoff := p.retryBackoff

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		if !isRetryableError(err) || attempt == p.maxRetries {
			return err
		}

		p.logger.Warn("retrying transient secret read failure",
			"attempt", attempt+1, "max_retries", p.maxRetries, "backoff", backoff, "error", err,
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
		if backoff > p.maxRetryBackoff {
			backoff = p.maxRetryBackoff
		}
	}

	return fmt.Errorf("k8ssecret: exhausted %d retries", p.maxRetries)
}

// isRetryableError classifies a Kubernetes API error as transient (worth
// retrying) or permanent. Auth failures, not-found, and invalid requests are
// never retried; unclassified errors default to retryable.
func isRetryableError(err error) bool {
	if k8serrors.IsTimeout(err) || k8serrors.IsServerTimeout(err) {
		return true
	}
	if k8serrors.IsInternalError(err) || k8serrors.IsServiceUnavailable(err) {
		return true
	}
	if k8serrors.IsTooManyRequests(err) {
		return true
	}
	if k8serrors.IsUnauthorized(err) || k8serrors.IsForbidden(err) {
		return false
	}
	if k8serrors.IsNotFound(err) || k8serrors.IsInvalid(err) {
		return false
	}
	return true
}
