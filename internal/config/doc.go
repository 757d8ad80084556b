// Package config loads the tempo.json server configuration.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "address": ":8080",
//	    "endpoint": "/subscription",
//	    "idleTimeout": "0",
//	    "shutdownTimeout": "10s",
//	    "allowedOrigins": ["http://localhost:3000"],
//	    "maxConnections": 100
//	  },
//	  "model": {
//	    "source": "s3://models/plant.go",
//	    "root": "Plant",
//	    "cycleGuard": "path",
//	    "s3Endpoint": "http://localhost:4566"
//	  },
//	  "log": {"level": "info", "format": "json"},
//	  "metrics": {"enabled": true}
//	}
//
// Durations use time.ParseDuration syntax. An empty or "0" idle timeout
// keeps connections open until either side closes them.
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
