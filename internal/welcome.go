package internal

import (
	"context"
	"fmt"
)

// HasSeenWelcome reports whether the one-time welcome prompt was dismissed
func HasSeenWelcome(ctx context.Context, kv KV) (bool, error) {
	v, ok, err := kv.Load(ctx, KeyHasSeenWelcome)
	if err != nil {
		return false, fmt.Errorf("failed to read welcome flag: %w", err)
	}
	return ok && v == "true", nil
}

// DismissWelcome records that the welcome prompt has been seen
func DismissWelcome(ctx context.Context, kv KV) error {
	if err := kv.Save(ctx, KeyHasSeenWelcome, "true"); err != nil {
		return fmt.Errorf("failed to save welcome flag: %w", err)
	}
	return nil
}
