// Package registry registers a trustchain server endpoint with Consul so
// other sdk-core processes can discover it, rather than hardcoding a single
// address. No IRequester implementation in this module reads it.
package registry

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/consul/api"

	"github.com/jaydenbeard/sdk-core/internal/ids"
)

// ConsulRegistry registers and discovers trustchain server instances.
type ConsulRegistry struct {
	client     *api.Client
	serviceID  string
	serverID   string
	serverPort int
}

// NewConsulRegistry creates a registry client pointed at a Consul agent.
func NewConsulRegistry(addr, serverID, serverPort string) (*ConsulRegistry, error) {
	cfg := api.DefaultConfig()
	cfg.Address = addr

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	port, err := strconv.Atoi(serverPort)
	if err != nil {
		log.Printf("warning: failed to parse server port, using default 8080: %v", err)
		port = 8080
	}

	return &ConsulRegistry{
		client:     client,
		serviceID:  serverID,
		serverID:   serverID,
		serverPort: port,
	}, nil
}

// Register registers this trustchain server with Consul under the
// "sdk-core-trustchain" service name, tagging it with the trustchain it
// serves so HealthyServersForTrustchain can narrow discovery to the
// servers that actually hold a given trustchain's blocks.
func (c *ConsulRegistry) Register(trustchainID ids.TrustchainID) error {
	hostname, err := os.Hostname()
	if err != nil {
		log.Printf("warning: failed to get hostname, using localhost: %v", err)
		hostname = "localhost"
	}

	trustchainTag := trustchainServiceTag(trustchainID)

	registration := &api.AgentServiceRegistration{
		ID:      c.serviceID,
		Name:    "sdk-core-trustchain",
		Port:    c.serverPort,
		Address: hostname,
		Tags:    []string{"trustchain", "sdk-core", trustchainTag},
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", hostname, c.serverPort),
			Interval:                       "10s",
			Timeout:                        "3s",
			DeregisterCriticalServiceAfter: "30s",
		},
		Meta: map[string]string{
			"server_id":     c.serverID,
			"trustchain_id": hex.EncodeToString(trustchainID[:]),
		},
	}

	if err := c.client.Agent().ServiceRegister(registration); err != nil {
		return err
	}

	log.Printf("registered with consul: %s (trustchain %s)", c.serviceID, hex.EncodeToString(trustchainID[:]))
	return nil
}

// trustchainServiceTag derives the Consul tag used to filter servers down
// to the ones serving a particular trustchain.
func trustchainServiceTag(trustchainID ids.TrustchainID) string {
	return "trustchain-" + hex.EncodeToString(trustchainID[:])
}

// Deregister removes this server from Consul.
func (c *ConsulRegistry) Deregister() error {
	if err := c.client.Agent().ServiceDeregister(c.serviceID); err != nil {
		return err
	}

	log.Printf("deregistered from consul: %s", c.serviceID)
	return nil
}

// HealthyServers returns the ids of all healthy trustchain server
// instances currently registered.
func (c *ConsulRegistry) HealthyServers() ([]string, error) {
	services, _, err := c.client.Health().Service("sdk-core-trustchain", "", true, nil)
	if err != nil {
		return nil, err
	}

	servers := make([]string, 0, len(services))
	for _, service := range services {
		servers = append(servers, service.Service.ID)
	}
	return servers, nil
}

// HealthyServersForTrustchain returns the ids of healthy server instances
// that have registered as serving the given trustchain, filtering by the
// tag Register attaches.
func (c *ConsulRegistry) HealthyServersForTrustchain(trustchainID ids.TrustchainID) ([]string, error) {
	tag := trustchainServiceTag(trustchainID)
	services, _, err := c.client.Health().Service("sdk-core-trustchain", tag, true, nil)
	if err != nil {
		return nil, err
	}

	servers := make([]string, 0, len(services))
	for _, service := range services {
		servers = append(servers, service.Service.ID)
	}
	return servers, nil
}

// WatchServices blocks, invoking callback every time the set of healthy
// trustchain server instances changes.
func (c *ConsulRegistry) WatchServices(callback func([]string)) {
	var lastIndex uint64

	for {
		services, meta, err := c.client.Health().Service("sdk-core-trustchain", "", true, &api.QueryOptions{
			WaitIndex: lastIndex,
			WaitTime:  5 * time.Minute,
		})
		if err != nil {
			log.Printf("error watching consul services: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		if meta.LastIndex != lastIndex {
			lastIndex = meta.LastIndex

			servers := make([]string, 0, len(services))
			for _, service := range services {
				servers = append(servers, service.Service.ID)
			}
			callback(servers)
		}
	}
}
