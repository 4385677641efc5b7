package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xjectro/actionkit/internal/constants"
	"github.com/xjectro/actionkit/pkg/tagcache"
)

// NewInvalidateCommand creates the invalidate command.
func NewInvalidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate TAG...",
		Short: "Invalidate cache tags",
		Long: `Signal the configured invalidation backend for each tag, in order.

With cache.type set to nats the invalidation is broadcast to every process
listening on the invalidation subject.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return constants.ErrNoTags
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, tag := range args {
				err := tagcache.ValidateTag(tag)
				if err != nil {
					return fmt.Errorf("tag %q: %w", tag, err)
				}
			}

			rt, err := newRuntime(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			for _, tag := range args {
				err := rt.store.Invalidate(ctx, tag)
				if err != nil {
					return fmt.Errorf("failed to invalidate %q: %w", tag, err)
				}

				printSuccess(cmd.OutOrStdout(), "Invalidated tag %s", tag)
			}

			return nil
		},
	}
}
