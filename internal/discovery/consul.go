package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/hashicorp/consul/api"
)

type ConsulClient struct {
	client *api.Client
	logger *slog.Logger
}

type ServiceConfig struct {
	Name string
	ID   string
	// Address defaults to the preferred outbound IP when empty.
	Address string
	Port    int
	Tags    []string
}

// NewConsulClient connects to the agent at addr (host:port) and verifies it
// answers before returning.
func NewConsulClient(addr string, logger *slog.Logger) (*ConsulClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	config := api.DefaultConfig()
	config.Address = addr

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	if _, err := client.Agent().Self(); err != nil {
		return nil, fmt.Errorf("failed to connect to consul: %w", err)
	}

	logger = logger.With("component", "consul")
	logger.Info("connected to consul", "addr", addr)
	return &ConsulClient{client: client, logger: logger}, nil
}

// PortFromAddr extracts the port of a listen address such as ":8080".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("parse port %q: %w", p, err)
	}
	return port, nil
}

func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// Register announces the service with an HTTP check against its /health route.
func (c *ConsulClient) Register(cfg ServiceConfig) error {
	host := cfg.Address
	if host == "" {
		host = outboundIP()
	}

	registration := &api.AgentServiceRegistration{
		ID:      cfg.ID,
		Name:    cfg.Name,
		Port:    cfg.Port,
		Address: host,
		Tags:    cfg.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s/health", net.JoinHostPort(host, strconv.Itoa(cfg.Port))),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}
	if err := c.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	c.logger.Info("registered service", "name", cfg.Name, "id", cfg.ID, "address", host, "port", cfg.Port)
	return nil
}

func (c *ConsulClient) Deregister(serviceID string) error {
	if err := c.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	c.logger.Info("deregistered service", "id", serviceID)
	return nil
}
