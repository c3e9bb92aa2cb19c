package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskflow/internal/manager"
	"taskflow/internal/task"
)

func (a *app) listCmd() *cobra.Command {
	var status, priority, search, format string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks, newest first",
		Args:    cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status (all, todo, in-progress, done)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "filter by priority (all, low, medium, high, urgent)")
	cmd.Flags().StringVarP(&search, "search", "q", "", "match title, description or tags")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table, json, yaml)")

	cmd.RunE = a.withStore(false, func(cmd *cobra.Command, _ []string) error {
		if err := checkFormat(format); err != nil {
			return err
		}
		m := a.manager(cmd, declineAll)
		f := m.Snapshot().Filters
		if cmd.Flags().Changed("status") {
			f.Status = task.Status(strings.ToLower(strings.TrimSpace(status)))
		}
		if cmd.Flags().Changed("priority") {
			f.Priority = task.Priority(strings.ToLower(strings.TrimSpace(priority)))
		}
		f.Search = search
		if err := m.SetFilters(cmd.Context(), f); err != nil {
			return err
		}
		snap := m.Snapshot()
		return printTasks(cmd.OutOrStdout(), format, snap.Filtered, snap.Counts)
	})
	return cmd
}

// taskFlags are the draft fields shared by add and edit.
type taskFlags struct {
	title       string
	description string
	status      string
	priority    string
	due         string
	tags        []string
}

func (tf *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&tf.title, "title", "t", "", "task title")
	cmd.Flags().StringVarP(&tf.description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&tf.status, "status", "s", string(task.StatusTodo), "todo, in-progress or done")
	cmd.Flags().StringVarP(&tf.priority, "priority", "p", string(task.PriorityMedium), "low, medium, high or urgent")
	cmd.Flags().StringVar(&tf.due, "due", "", "due date as YYYY-MM-DD (empty clears it)")
	cmd.Flags().StringArrayVar(&tf.tags, "tag", nil, "tag, repeatable")
}

// apply copies the flags the user set onto in.
func (tf *taskFlags) apply(cmd *cobra.Command, in *task.Input) error {
	changed := cmd.Flags().Changed
	if changed("title") {
		in.Title = tf.title
	}
	if changed("description") {
		in.Description = tf.description
	}
	if changed("status") || in.Status == "" {
		s, err := task.ParseStatus(tf.status)
		if err != nil {
			return err
		}
		in.Status = s
	}
	if changed("priority") || in.Priority == "" {
		p, err := task.ParsePriority(tf.priority)
		if err != nil {
			return err
		}
		in.Priority = p
	}
	if changed("due") {
		due, err := parseDue(tf.due)
		if err != nil {
			return err
		}
		in.DueDate = due
	}
	if changed("tag") {
		in.Tags = []string{}
		for _, raw := range tf.tags {
			in.Tags, _ = task.AddTag(in.Tags, raw)
		}
	}
	return nil
}

func (a *app) addCmd() *cobra.Command {
	var tf taskFlags
	cmd := &cobra.Command{
		Use:     "add",
		Aliases: []string{"new"},
		Short:   "Create a task",
		Args:    cobra.NoArgs,
	}
	tf.register(cmd)
	cmd.RunE = a.withStore(false, func(cmd *cobra.Command, _ []string) error {
		m := a.manager(cmd, declineAll)
		if err := m.OpenCreate(); err != nil {
			return err
		}
		return a.submit(cmd, m, &tf)
	})
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	var tf taskFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a task; unset flags keep their value",
		Args:  cobra.ExactArgs(1),
	}
	tf.register(cmd)
	cmd.RunE = a.withStore(false, func(cmd *cobra.Command, args []string) error {
		m := a.manager(cmd, declineAll)
		// The configured default filter must not hide the task being edited.
		if err := m.SetFilters(cmd.Context(), task.DefaultFilters()); err != nil {
			return err
		}
		if err := m.OpenEdit(args[0]); err != nil {
			return fmt.Errorf("task %s: %w", args[0], err)
		}
		return a.submit(cmd, m, &tf)
	})
	return cmd
}

func (a *app) submit(cmd *cobra.Command, m *manager.Manager, tf *taskFlags) error {
	var applyErr error
	if err := m.EditDraft(func(in *task.Input) { applyErr = tf.apply(cmd, in) }); err != nil {
		return err
	}
	if applyErr != nil {
		return applyErr
	}
	return m.Submit(cmd.Context())
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <todo|in-progress|done>",
		Short: "Set the status of a task",
		Args:  cobra.ExactArgs(2),
		RunE: a.withStore(false, func(cmd *cobra.Command, args []string) error {
			s, err := task.ParseStatus(args[1])
			if err != nil {
				return err
			}
			m := a.manager(cmd, declineAll)
			return m.ChangeStatus(cmd.Context(), args[0], s)
		}),
	}
}

func (a *app) deleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task after confirmation",
		Args:    cobra.ExactArgs(1),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.RunE = a.withStore(false, func(cmd *cobra.Command, args []string) error {
		var confirm manager.Confirmer = promptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
		if yes {
			confirm = acceptAll
		}
		m := a.manager(cmd, confirm)
		deleted, err := m.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !deleted {
			a.log.Debug("task not deleted", "id", args[0])
		}
		return nil
	})
	return cmd
}

var (
	acceptAll  = manager.ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
	declineAll = manager.ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })
)

// promptConfirmer asks on out and reads a y/n answer from in. Anything but
// y or yes declines.
func promptConfirmer(in io.Reader, out io.Writer) manager.Confirmer {
	r := bufio.NewReader(in)
	return manager.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%s [y/N]: ", prompt)
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Delete cancelled")
				return false, nil
			}
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		fmt.Fprintln(out, "Delete cancelled")
		return false, nil
	})
}

func parseDue(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, &task.ValidationError{Field: "dueDate", Message: fmt.Sprintf("invalid due date %q, want YYYY-MM-DD", v)}
	}
	return &t, nil
}
