// Package config handles loading and validating the smart home core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a local .env file into the environment
//   - Overriding with SMARTHOME_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Secrets (JWT secret, federated secret, broker and InfluxDB credentials)
//     should be set via environment variables, not the YAML file
//   - Session secrets shorter than 32 characters are rejected
//
// Usage:
//
//	if err := config.LoadDotEnv(); err != nil {
//	    return err
//	}
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
