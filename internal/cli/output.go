package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"taskflow/internal/preference"
	"taskflow/internal/task"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
}

// encode writes v as JSON or YAML. It reports false for the table format.
func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func printTasks(w io.Writer, format string, tasks []task.Task, counts task.Counts) error {
	if tasks == nil {
		tasks = []task.Task{}
	}
	if done, err := encode(w, format, tasks); done {
		return err
	}

	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks found.")
	} else {
		tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tDUE\tTITLE\tTAGS")
		for _, t := range tasks {
			due := "-"
			if t.DueDate != nil {
				due = t.DueDate.Format("2006-01-02")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.ID, t.Status.Label(), t.Priority.Label(), due, t.Title, strings.Join(t.Tags, ","))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	parts := make([]string, 0, len(task.Statuses()))
	for _, s := range task.Statuses() {
		parts = append(parts, fmt.Sprintf("%s %d", s.Label(), counts[s]))
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, " | "))
	return err
}

func printPreference(w io.Writer, format string, p preference.Preference) error {
	if done, err := encode(w, format, p); done {
		return err
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "user\t%s\n", p.Owner)
	fmt.Fprintf(tw, "name\t%s\n", p.UserName)
	fmt.Fprintf(tw, "dark mode\t%t\n", p.DarkMode)
	if !p.LastLogin.IsZero() {
		fmt.Fprintf(tw, "last login\t%s\n", p.LastLogin.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
