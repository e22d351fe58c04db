// Package config handles loading and validating brokerlink configuration.
//
// This package manages:
//   - Loading configuration from YAML or TOML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The private key path is configuration; the key itself is never logged
//   - The InfluxDB token should be set via BROKERLINK_INFLUXDB_TOKEN
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/brokerlink.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Broker.Host)
package config
