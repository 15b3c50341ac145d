package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/scy"
	"github.com/viant/scy/cred"
	_ "github.com/viant/scy/kms/blowfish"
)

// SecretLoader resolves scy encoded resources; tests substitute an in-memory loader.
type SecretLoader func(ctx context.Context, ref string, target interface{}) (interface{}, error)

func loadSecret(ctx context.Context, ref string, target interface{}) (interface{}, error) {
	res := scy.EncodedResource(ref).Decode(ctx, target)
	sec, err := scy.New().Load(ctx, res)
	if err != nil {
		return nil, err
	}
	return sec.Target, nil
}

// resolveSecrets fills credentials and the Azure app registration from scy resources.
func (a *App) resolveSecrets(ctx context.Context, opts *Options) error {
	load := a.LoadSecret
	if load == nil {
		load = loadSecret
	}
	if ref := strings.TrimSpace(opts.SecretRef); ref != "" {
		v, err := load(ctx, ref, cred.Basic{})
		if err != nil {
			return fmt.Errorf("failed to load secret %s: %w", ref, err)
		}
		basic, ok := v.(*cred.Basic)
		if !ok {
			return fmt.Errorf("secret %s is not of type cred.Basic (expected JSON with Username, Password)", ref)
		}
		if opts.Username == "" {
			opts.Username = basic.Username
		}
		if opts.Password == "" {
			opts.Password = basic.Password
		}
	}
	if ref := strings.TrimSpace(opts.AzureRef); ref != "" {
		v, err := load(ctx, ref, cred.Azure{})
		if err != nil {
			return fmt.Errorf("failed to load azure-ref secret %s: %w", ref, err)
		}
		az, ok := v.(*cred.Azure)
		if !ok {
			return fmt.Errorf("azure-ref secret %s is not of type cred.Azure (expected JSON with ClientID, TenantID)", ref)
		}
		if opts.ClientID == "" && az.ClientID != "" {
			opts.ClientID = az.ClientID
		}
		if (opts.TenantID == "" || opts.TenantID == opts.Domain) && az.TenantID != "" {
			opts.TenantID = az.TenantID
		}
	}
	return nil
}
