package task

import "context"

// Provider discovers targets for one project root. A provider instance is
// created per root and refresh by a ProviderFactory and closed by the
// Manager when it is replaced or its root goes away.
type Provider interface {
	// Name identifies the provider in notifications.
	Name() string

	// IsEligible reports whether the provider has anything to offer for
	// its root. Ineligible instances are closed immediately.
	IsEligible(ctx context.Context) bool

	// Settings returns the provider's targets. A provider may return
	// targets together with an error when only part of its input was
	// usable; both are kept.
	Settings(ctx context.Context) ([]Target, error)

	// OnRefresh registers fn to be called when the provider's inputs
	// changed and its targets should be reloaded.
	OnRefresh(fn func()) (unsubscribe func())

	// Close releases watchers and other resources.
	Close() error
}

// ProviderFactory creates a provider for root.
type ProviderFactory func(root string) Provider
