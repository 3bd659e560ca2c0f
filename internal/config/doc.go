// Package config loads, normalizes, and validates fbicheck configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for broker
// and index credentials. The Config type centralizes every knob the daemon and
// CLI need: where the queue databases and spot cursor live, how to reach
// RabbitMQ and Elasticsearch, and how the crawler behaves.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
