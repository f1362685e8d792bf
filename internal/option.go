package internal

import "github.com/davidcpage/research-notebook/internal/cardservice"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	sandbox cardservice.Sandbox
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithSandbox sets the code execution sandbox for code cards.
func WithSandbox(sb cardservice.Sandbox) Option {
	return func(a *application) {
		a.sandbox = sb
	}
}
