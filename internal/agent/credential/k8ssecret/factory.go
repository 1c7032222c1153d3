package k8ssecret

import (
	"github.com/vitaliisemenov/agentcore/internal/agent/credential"
	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
	"github.com/vitaliisemenov/agentcore/internal/agent/manager"
	"github.com/vitaliisemenov/agentcore/internal/agent/plugincontext"
)

// CredentialType is the name a Credentials entry's type field must match to
// construct a Provider.
const CredentialType = "k8ssecret"

// Provider registers the Kubernetes-secret credential provider factory
// under CredentialType, so any Credentials entry declaring that type
// constructs one of these.
func Provider(catalogs *manager.Catalogs) error {
	catalogs.Credentials.Register(CredentialType, build)
	return nil
}

func build(ctx *plugincontext.Context) (credential.Provider, error) {
	id, _ := ctx.Data["id"].(string)
	cfg := Config{
		ID:              envelope.ComponentId(id),
		Namespace:       ctx.Config.GetString("namespace"),
		SecretName:      ctx.Config.GetString("secretname"),
		Keys:            ctx.Config.GetStringSlice("keys"),
		Timeout:         ctx.Config.GetDuration("timeout"),
		MaxRetries:      ctx.Config.GetInt("maxretries"),
		RetryBackoff:    ctx.Config.GetDuration("retrybackoff"),
		MaxRetryBackoff: ctx.Config.GetDuration("maxretrybackoff"),
	}
	return New(cfg, ctx.Logger)
}
