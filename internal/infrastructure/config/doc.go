// Package config handles loading and validating libmqtt bridge configuration.
//
// This package manages:
//   - The per-client configuration (ClientConfig) that the binding assembles
//     through its setters and freezes at setup
//   - Loading the driver configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - MQTT credentials and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/bridge.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, c := range cfg.Clients {
//	    fmt.Println(c.Name, c.Server)
//	}
package config
