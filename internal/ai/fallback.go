package ai

import (
	"context"
	"errors"
	"log/slog"
)

// chainCompleter tries each configured provider in order and returns the
// first reply. Providers share the caller's context, so a deadline that
// expires on one provider is not retried on the next.
type chainCompleter struct {
	links  []Completer
	logger *slog.Logger
}

// NewFallbackCompleter returns a Completer that asks primary and, when that
// fails, secondary. Nil providers are skipped; with none configured every
// call fails with ErrTransport.
func NewFallbackCompleter(primary, secondary Completer, logger *slog.Logger) Completer {
	c := &chainCompleter{logger: logger}
	for _, l := range []Completer{primary, secondary} {
		if l != nil {
			c.links = append(c.links, l)
		}
	}
	return c
}

// Complete returns the first successful reply. When every provider fails the
// error joins all provider errors under ErrTransport.
func (c *chainCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if len(c.links) == 0 {
		return "", transportf("ai: no completer configured")
	}

	var errs []error
	for i, l := range c.links {
		if i > 0 && ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		text, err := l.Complete(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("ai: reply served by fallback provider", "provider", i)
			}
			return text, nil
		}
		errs = append(errs, err)
		if i < len(c.links)-1 {
			c.logger.Warn("ai: provider failed, trying next",
				"provider", i,
				"error", err,
				"max_tokens", req.MaxTokens,
			)
		}
	}
	return "", transportf("ai: all %d providers failed: %w", len(c.links), errors.Join(errs...))
}
