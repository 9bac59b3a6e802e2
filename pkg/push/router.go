package push

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/device"
)

// DeviceSource resolves device lists for the router's high-level helpers.
// Implemented by device.Registry; declared here so the router depends only
// on the read side.
type DeviceSource interface {
	FindByUsers(ctx context.Context, userIDs []string) ([]device.Device, error)
	FindByDepartments(ctx context.Context, departmentIDs []string) ([]device.Device, error)
	FindAll(ctx context.Context) ([]device.Device, error)
}

// Router classifies tokens by platform and delegates to the matching
// provider. It is safe for concurrent use; providers hold their own state.
type Router struct {
	providers map[device.Platform]Provider
	devices   DeviceSource
	logger    *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithAPNS routes ios tokens to the given provider.
func WithAPNS(p Provider) RouterOption {
	return WithProvider(device.PlatformIOS, p)
}

// WithFCM routes android tokens to the given provider.
func WithFCM(p Provider) RouterOption {
	return WithProvider(device.PlatformAndroid, p)
}

// WithProvider routes an arbitrary platform to the given provider.
// Nil providers are ignored so callers can wire optional transports directly.
func WithProvider(platform device.Platform, p Provider) RouterOption {
	return func(r *Router) {
		if p != nil {
			r.providers[platform] = p
		}
	}
}

// WithDeviceSource enables SendToUsers/SendToDepartments/SendToAll.
func WithDeviceSource(src DeviceSource) RouterOption {
	return func(r *Router) {
		r.devices = src
	}
}

// WithRouterLogger sets the logger for the Router.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRouter creates a Router. A router without providers is valid: every
// send degrades to an all-failed not_configured result.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		providers: make(map[device.Platform]Provider),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendToTokens delivers the payload to tokens of a single platform.
//
// An empty token list returns a zero result. A platform with no provider
// wired returns an all-failed result with CodeNotConfigured and contacts
// nothing; this is a degraded outcome, never an error.
func (r *Router) SendToTokens(ctx context.Context, tokens []string, platform device.Platform, payload Payload) (BatchResult, error) {
	if len(tokens) == 0 {
		return BatchResult{}, nil
	}

	provider, ok := r.providers[platform]
	if !ok {
		r.logger.WarnContext(ctx, "no provider for platform",
			slog.String("platform", string(platform)),
			slog.Int("tokens", len(tokens)))
		return AllFailed(tokens, CodeNotConfigured, "no provider configured for platform "+string(platform)), nil
	}

	return provider.Send(ctx, tokens, payload)
}

// SendToDevices partitions a mixed-platform device list, sends once per
// platform group, and merges the results additively.
func (r *Router) SendToDevices(ctx context.Context, devices []device.Device, payload Payload) (BatchResult, error) {
	groups, order := partitionByPlatform(devices)

	var batch BatchResult
	for _, platform := range order {
		res, err := r.SendToTokens(ctx, groups[platform], platform, payload)
		if err != nil {
			return batch, err
		}
		batch.Merge(res)
	}
	return batch, nil
}

// SendToUsers resolves the users' devices and delivers to them.
func (r *Router) SendToUsers(ctx context.Context, userIDs []string, payload Payload) (BatchResult, error) {
	return r.sendResolved(ctx, payload, func(ctx context.Context) ([]device.Device, error) {
		return r.devices.FindByUsers(ctx, userIDs)
	})
}

// SendToDepartments resolves the departments' devices and delivers to them.
func (r *Router) SendToDepartments(ctx context.Context, departmentIDs []string, payload Payload) (BatchResult, error) {
	return r.sendResolved(ctx, payload, func(ctx context.Context) ([]device.Device, error) {
		return r.devices.FindByDepartments(ctx, departmentIDs)
	})
}

// SendToAll delivers to every registered device.
func (r *Router) SendToAll(ctx context.Context, payload Payload) (BatchResult, error) {
	return r.sendResolved(ctx, payload, func(ctx context.Context) ([]device.Device, error) {
		return r.devices.FindAll(ctx)
	})
}

func (r *Router) sendResolved(ctx context.Context, payload Payload, resolve func(context.Context) ([]device.Device, error)) (BatchResult, error) {
	if r.devices == nil {
		return BatchResult{}, ErrNoDeviceSource
	}

	devices, err := resolve(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	return r.SendToDevices(ctx, device.DedupeByToken(devices), payload)
}

// partitionByPlatform groups tokens by platform, preserving the order in
// which each platform was first seen and the token order within a group.
func partitionByPlatform(devices []device.Device) (map[device.Platform][]string, []device.Platform) {
	groups := make(map[device.Platform][]string)
	var order []device.Platform
	for _, d := range devices {
		if _, ok := groups[d.Platform]; !ok {
			order = append(order, d.Platform)
		}
		groups[d.Platform] = append(groups[d.Platform], d.Token)
	}
	return groups, order
}
