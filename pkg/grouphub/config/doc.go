/*
Package config loads grouphub server settings.

# Sources

Settings are assembled in order, later sources winning:

 1. Built-in defaults (Defaults)
 2. A .env file in the working directory, if present
 3. A YAML or JSON config file
 4. GROUPHUB_* environment variables

A config file groups keys by section:

	server:
	  addr: ":9000"
	database:
	  driver: postgres
	  dsn: postgres://grouphub@localhost/grouphub?sslmode=disable
	bus:
	  executor: pool
	  workers: 8
	  listener_timeout: 30s
	notify:
	  transport: apprise
	  apprise_url: http://apprise:8000
	scheduler:
	  interval: 5m

# Raw access

Config wraps the decoded map and offers typed accessors that fall back
to a default on a missing key or a type mismatch:

	cfg, err := config.FromFile("grouphub.yaml")
	timeout := cfg.Section("bus").Duration("listener_timeout", 30*time.Second)

Duration accepts a time.ParseDuration string or a number of seconds.
*/
package config
