// Package report turns analysis documents into narrative backtest reports.
package report

import "context"

// Renderer produces report text from an analysis document
type Renderer interface {
	Render(ctx context.Context, document string) (string, error)
	Name() string
}

// StaticRenderer returns the document itself; used when AI reports are disabled
type StaticRenderer struct{}

// Render implements Renderer
func (StaticRenderer) Render(_ context.Context, document string) (string, error) {
	return document, nil
}

// Name implements Renderer
func (StaticRenderer) Name() string { return "static" }
