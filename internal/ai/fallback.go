package ai

import (
	"context"
	"errors"
	"log"
	"net"
	"strings"
)

// FallbackAdapter routes between a primary and an optional secondary
// Adapter, failing over on connection or quota errors.
type FallbackAdapter struct {
	Primary   Adapter
	Secondary Adapter
}

// NewFallbackAdapter builds a FallbackAdapter. secondary may be nil, in
// which case FallbackAdapter behaves like primary alone.
func NewFallbackAdapter(primary, secondary Adapter) *FallbackAdapter {
	return &FallbackAdapter{Primary: primary, Secondary: secondary}
}

func (f *FallbackAdapter) Summarize(ctx context.Context, text string) (string, error) {
	if f.Primary != nil {
		result, err := f.Primary.Summarize(ctx, text)
		if err == nil {
			return result, nil
		}
		log.Printf("[AIAdapter] primary summarize failed: %v", err)
		if f.Secondary == nil || !shouldFailover(err) {
			return "", err
		}
	}
	if f.Secondary != nil {
		result, err := f.Secondary.Summarize(ctx, text)
		if err == nil {
			return result, nil
		}
		log.Printf("[AIAdapter] secondary summarize failed: %v", err)
		return "", err
	}
	return "", ErrUnavailable
}

func (f *FallbackAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.Primary != nil {
		result, err := f.Primary.Embed(ctx, text)
		if err == nil {
			return result, nil
		}
		log.Printf("[AIAdapter] primary embed failed: %v", err)
		if f.Secondary == nil || !shouldFailover(err) {
			return nil, err
		}
	}
	if f.Secondary != nil {
		result, err := f.Secondary.Embed(ctx, text)
		if err == nil {
			return result, nil
		}
		log.Printf("[AIAdapter] secondary embed failed: %v", err)
		return nil, err
	}
	return nil, ErrUnavailable
}

// shouldFailover reports whether err looks like a connection or quota
// problem worth retrying against the other provider.
func shouldFailover(err error) bool {
	return isConnectionError(err) || isQuotaError(err)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, indicator := range []string{"connection refused", "no such host", "network is unreachable", "connection reset", "timeout", "dial tcp", "eof"} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, indicator := range []string{"429", "quota", "rate limit", "too many requests", "resource_exhausted"} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
