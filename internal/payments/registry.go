package payments

import (
	"fmt"

	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
)

// Registry resolves the gateway for a provider.
type Registry struct {
	gateways map[enums.PaymentProvider]Gateway
}

func NewRegistry(gateways ...Gateway) (*Registry, error) {
	r := &Registry{gateways: make(map[enums.PaymentProvider]Gateway, len(gateways))}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		provider := gw.Provider()
		if _, exists := r.gateways[provider]; exists {
			return nil, fmt.Errorf("payment gateway %s registered twice", provider)
		}
		r.gateways[provider] = gw
	}
	return r, nil
}

// Get returns a validation error for providers that are not configured.
func (r *Registry) Get(provider enums.PaymentProvider) (Gateway, error) {
	if r != nil {
		if gw, ok := r.gateways[provider]; ok {
			return gw, nil
		}
	}
	return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "payment provider %q is not available", provider)
}

func (r *Registry) Providers() []enums.PaymentProvider {
	if r == nil {
		return nil
	}
	out := make([]enums.PaymentProvider, 0, len(r.gateways))
	for _, provider := range []enums.PaymentProvider{enums.PaymentProviderStripe, enums.PaymentProviderPayPal} {
		if _, ok := r.gateways[provider]; ok {
			out = append(out, provider)
		}
	}
	return out
}
