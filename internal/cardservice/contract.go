package cardservice

import "context"

// Sandbox executes a code card's source in an isolated environment.
// Implementations live outside this module (a subprocess runner, a
// remote executor); the engine only consumes the result.
type Sandbox interface {
	// Run executes source and returns captured stdout, stderr and an
	// HTML rendering of the output suitable for a companion file.
	Run(ctx context.Context, language, source string) (stdout, stderr, renderedHTML string, err error)
}

// Renderer turns markdown text into HTML for card previews.
type Renderer interface {
	Render(ctx context.Context, markdown string) (string, error)
}
