// Package cli implements the navconsole command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"navconsole/internal/reconcile"
	"navconsole/internal/version"
)

// Execute runs the CLI with the provided args and manager.
func Execute(args []string, manager Manager, out, errOut io.Writer) int {
	return ExecuteContext(context.Background(), args, manager, out, errOut)
}

// ExecuteContext is Execute with a caller-supplied context, cancelled on interrupt.
func ExecuteContext(ctx context.Context, args []string, manager Manager, out, errOut io.Writer) int {
	cmd := NewRootCommand(manager, out, errOut)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			_, _ = fmt.Fprintln(errOut, "Error:", err)
			return ExitInvalidUsage
		}
		if jsonOutput, _ := cmd.PersistentFlags().GetBool("json"); !jsonOutput {
			_, _ = fmt.Fprintln(errOut, renderError(err))
		}
		return ExitRuntimeError
	}
	return ExitSuccess
}

// NewRootCommand builds the root CLI command tree.
func NewRootCommand(manager Manager, out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "navconsole",
		Short:         "create and track servers and backups",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.PersistentFlags().Bool("json", false, "output JSONL")

	root.AddCommand(newServerCommand(manager))
	root.AddCommand(newBackupCommand(manager))
	root.AddCommand(newCancelCommand(manager))
	root.AddCommand(newListCommand(manager))
	root.AddCommand(newWatchCommand(manager))
	root.AddCommand(newVersionCommand())

	return root
}

type usageError struct {
	err error
}

func (u *usageError) Error() string {
	if u.err == nil {
		return "invalid usage"
	}
	return u.err.Error()
}

func requireArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return &usageError{err: fmt.Errorf("requires %d argument(s)", n)}
		}
		return nil
	}
}

func newServerCommand(manager Manager) *cobra.Command {
	server := &cobra.Command{
		Use:   "server",
		Short: "manage servers",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "create a server and follow its progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := ServerOptions{}
			opts.Name, _ = cmd.Flags().GetString("name")
			opts.Loader, _ = cmd.Flags().GetString("loader")
			opts.Version, _ = cmd.Flags().GetString("version")
			opts.RAM, _ = cmd.Flags().GetInt("ram")
			opts.Detach, _ = cmd.Flags().GetBool("detach")
			if strings.TrimSpace(opts.Name) == "" || opts.Loader == "" || opts.Version == "" {
				return &usageError{err: fmt.Errorf("name, loader and version are required")}
			}
			if opts.RAM <= 0 {
				return &usageError{err: fmt.Errorf("ram must be a positive number of megabytes")}
			}
			return streamEvents(cmd, manager.ServerCreate(cmd.Context(), opts))
		},
	}
	createCmd.Flags().String("name", "", "server name")
	createCmd.Flags().String("loader", "", "server loader (vanilla, paper, fabric, ...)")
	createCmd.Flags().String("version", "", "game version")
	createCmd.Flags().Int("ram", 2048, "memory in megabytes")
	createCmd.Flags().Bool("detach", false, "return once the creation is accepted")

	server.AddCommand(createCmd)
	return server
}

func newBackupCommand(manager Manager) *cobra.Command {
	backup := &cobra.Command{
		Use:   "backup",
		Short: "manage backups",
	}

	createCmd := &cobra.Command{
		Use:   "create <server-id>",
		Short: "back up a server and follow its progress",
		Args:  requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			detach, _ := cmd.Flags().GetBool("detach")
			return streamEvents(cmd, manager.BackupCreate(cmd.Context(), BackupOptions{
				ServerID: args[0],
				Name:     name,
				Detach:   detach,
			}))
		},
	}
	createCmd.Flags().String("name", "", "backup name")
	createCmd.Flags().Bool("detach", false, "return once the creation is accepted")

	backup.AddCommand(createCmd)
	return backup
}

func newCancelCommand(manager Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "stop tracking a creation and ask the daemon to abort it",
		Args:  requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := manager.Cancel(cmd.Context(), args[0]); err != nil {
				return writeError(cmd, err)
			}
			return writeEvent(cmd, ProgressEvent{
				Type:      EventSuccess,
				RequestID: args[0],
				Message:   fmt.Sprintf("cancelled %s", args[0]),
			})
		},
	}
}

func newListCommand(manager Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "list [servers|backups]",
		Short: "list servers and backups, including creations in progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := reconcile.Kinds
			if len(args) > 0 {
				kind, err := reconcile.ParseKind(args[0])
				if err != nil {
					return &usageError{err: err}
				}
				kinds = []reconcile.Kind{kind}
			}
			for _, kind := range kinds {
				entities, err := manager.List(cmd.Context(), kind)
				if err != nil {
					return writeError(cmd, err)
				}
				if err := writeEvent(cmd, ProgressEvent{Type: EventResult, Code: string(kind), Data: entities}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newWatchCommand(manager Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "resume tracking of pending creations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return streamEvents(cmd, manager.Watch(cmd.Context()))
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			return writeEvent(cmd, ProgressEvent{Type: EventResult, Message: info.String(), Data: info})
		},
	}
}

func streamEvents(cmd *cobra.Command, events <-chan ProgressEvent) error {
	ctx := cmd.Context()
	jsonOutput, _ := cmd.Flags().GetBool("json")
	hasError := false
	for event := range events {
		if err := writeEventWithContext(ctx, cmd, event, jsonOutput); err != nil {
			return err
		}
		if event.Type == EventError {
			hasError = true
		}
	}
	if hasError {
		return &runtimeError{err: fmt.Errorf("operation failed")}
	}
	return nil
}

type runtimeError struct {
	err error
}

func (r *runtimeError) Error() string {
	if r.err == nil {
		return "runtime error"
	}
	return r.err.Error()
}

func (r *runtimeError) Unwrap() error {
	return r.err
}

func writeError(cmd *cobra.Command, err error) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		_ = writeEventWithContext(cmd.Context(), cmd, ProgressEvent{
			Type:    EventError,
			Message: err.Error(),
		}, true)
	}
	return &runtimeError{err: err}
}

func writeEvent(cmd *cobra.Command, event ProgressEvent) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return writeEventWithContext(cmd.Context(), cmd, event, jsonOutput)
}

func writeEventWithContext(ctx context.Context, cmd *cobra.Command, event ProgressEvent, jsonOutput bool) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		return encoder.Encode(event)
	}
	if text := renderEvent(event); text != "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
		return err
	}
	return nil
}
