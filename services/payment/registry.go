package payment

import (
	"fmt"
	"strings"
)

// Registry holds the gateway clients and the order in which they are tried
// when the caller does not ask for a specific one.
type Registry struct {
	clients  map[string]GatewayClient
	priority []string
}

// NewRegistry registers clients by Name. Clients missing from priority are
// appended in registration order.
func NewRegistry(priority []string, clients ...GatewayClient) *Registry {
	r := &Registry{clients: make(map[string]GatewayClient, len(clients))}
	seen := make(map[string]bool)
	for _, c := range clients {
		r.clients[c.Name()] = c
	}
	for _, name := range priority {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := r.clients[name]; ok && !seen[name] {
			r.priority = append(r.priority, name)
			seen[name] = true
		}
	}
	for _, c := range clients {
		if !seen[c.Name()] {
			r.priority = append(r.priority, c.Name())
			seen[c.Name()] = true
		}
	}
	return r
}

// Get returns a registered client regardless of configuration.
func (r *Registry) Get(name string) (GatewayClient, error) {
	c, ok := r.clients[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return c, nil
}

// Select picks the requested gateway, or the first configured one by priority.
func (r *Registry) Select(requested string) (GatewayClient, error) {
	if requested != "" {
		c, err := r.Get(requested)
		if err != nil {
			return nil, err
		}
		if !c.IsConfigured() {
			return nil, fmt.Errorf("%w: %s is missing credentials", ErrNoGatewayConfigured, c.Name())
		}
		return c, nil
	}
	for _, name := range r.priority {
		if c := r.clients[name]; c.IsConfigured() {
			return c, nil
		}
	}
	return nil, ErrNoGatewayConfigured
}

// Configured lists usable gateways in priority order.
func (r *Registry) Configured() []string {
	var names []string
	for _, name := range r.priority {
		if r.clients[name].IsConfigured() {
			names = append(names, name)
		}
	}
	return names
}
