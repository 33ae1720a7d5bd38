// Package render formats specs, jobs and request state for the terminal.
//
// Names and descriptions come from job specs written by server operators and
// may contain markup. Everything shown to the user passes through Text first.
package render

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/microcosm-cc/bluemonday"

	"github.com/jobson/jobson-cli/internal/api"
	"github.com/jobson/jobson-cli/internal/editor"
	"github.com/jobson/jobson-cli/internal/models"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

func policy() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

// Text strips all markup from s and collapses it to a single trimmed line.
func Text(s string) string {
	if s == "" {
		return ""
	}
	clean := html.UnescapeString(policy().Sanitize(s))
	return strings.Join(strings.Fields(clean), " ")
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 1, 1, 2, ' ', 0)
}

// SpecSummaries writes one row per job spec.
func SpecSummaries(w io.Writer, specs []models.JobSpecSummary) error {
	if len(specs) == 0 {
		_, err := fmt.Fprintln(w, "No job specs available.")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
	for _, s := range specs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, Text(s.Name), Text(s.Description))
	}
	return tw.Flush()
}

// Spec writes a spec header followed by its expected inputs.
func Spec(w io.Writer, spec models.JobSpec) error {
	fmt.Fprintf(w, "%s (%s)\n", Text(spec.Name), spec.ID)
	if d := Text(spec.Description); d != "" {
		fmt.Fprintf(w, "  %s\n", d)
	}
	if len(spec.ExpectedInputs) == 0 {
		_, err := fmt.Fprintln(w, "\nThis spec takes no inputs.")
		return err
	}

	fmt.Fprintln(w)
	tw := newTable(w)
	fmt.Fprintln(tw, "INPUT\tTYPE\tDEFAULT\tNAME")
	for _, in := range spec.ExpectedInputs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", in.ID, in.Type, defaultText(in), Text(in.DisplayName()))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, in := range spec.ExpectedInputs {
		switch {
		case len(in.Options) > 0:
			fmt.Fprintf(w, "\n%s options:\n", in.ID)
			for _, o := range in.Options {
				fmt.Fprintf(w, "  %s\t%s\n", o.ID, Text(o.Label()))
			}
		case len(in.Tables) > 0:
			fmt.Fprintf(w, "\n%s tables:\n", in.ID)
			for _, t := range in.Tables {
				cols := make([]string, 0, len(t.Columns))
				for _, c := range t.Columns {
					cols = append(cols, c.ID+" "+c.Type)
				}
				fmt.Fprintf(w, "  %s (%s)\n", t.ID, strings.Join(cols, ", "))
			}
		}
	}
	return nil
}

func defaultText(in models.ExpectedInput) string {
	v, ok := in.DefaultValue()
	if !ok {
		return "-"
	}
	return Value(v)
}

// Value formats an input value on one line.
func Value(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		return t
	case []string:
		if editor.Interactive(t) {
			return strings.Join(t, ", ")
		}
		s := editor.Summarize(t)
		return fmt.Sprintf("%d values: %s ... %s", s.Count, strings.Join(s.First, ", "), strings.Join(s.Last, ", "))
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = Value(e)
		}
		return strings.Join(parts, ", ")
	case models.FileInput:
		return t.Filename
	case []models.FileInput:
		names := make([]string, len(t))
		for i, f := range t {
			names[i] = f.Filename
		}
		return strings.Join(names, ", ")
	case editor.QuerySelection:
		return "query on " + t.Table
	default:
		return fmt.Sprint(v)
	}
}

// JobList writes one row per job with its latest status.
func JobList(w io.Writer, jobs []models.JobDetails) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "No jobs found.")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tOWNER\tSTATUS")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.ID, Text(j.Name), j.Owner, j.LatestStatus())
	}
	return tw.Flush()
}

// JobDetails writes a job and its status history.
func JobDetails(w io.Writer, job models.JobDetails) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "ID:\t%s\n", job.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", Text(job.Name))
	fmt.Fprintf(tw, "Owner:\t%s\n", job.Owner)
	fmt.Fprintf(tw, "Status:\t%s\n", job.LatestStatus())
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(job.Timestamps) == 0 {
		return nil
	}

	fmt.Fprintln(w, "\nHistory:")
	tw = newTable(w)
	for _, ts := range job.Timestamps {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", ts.Time, ts.Status, Text(ts.Message))
	}
	return tw.Flush()
}

// JobOutputs writes one row per output of a job.
func JobOutputs(w io.Writer, outputs []models.JobOutput) error {
	if len(outputs) == 0 {
		_, err := fmt.Fprintln(w, "This job has no outputs.")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSIZE\tTYPE\tNAME")
	for _, o := range outputs {
		mime := o.MimeType
		if mime == "" {
			mime = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", o.ID, o.Size, mime, Text(o.Name))
	}
	return tw.Flush()
}

// Form writes the current state of every input editor of a form.
func Form(w io.Writer, form *editor.Form) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Job name:\t%s\n", form.JobName())
	for _, ed := range form.Editors() {
		in := ed.Input()
		state := editor.MatchInput(ed.Update(),
			func(v any) string { return Value(v) },
			func() string {
				if in.HasDefault() {
					return "(default) " + defaultText(in)
				}
				return "(missing)"
			},
			func(errs []string) string { return "(invalid) " + strings.Join(errs, "; ") },
		)
		fmt.Fprintf(tw, "%s:\t%s\n", in.ID, state)
	}
	return tw.Flush()
}

// Warnings writes reset warnings sorted by input id.
func Warnings(w io.Writer, warnings map[string]string) {
	ids := make([]string, 0, len(warnings))
	for id := range warnings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "warning: %s: %s\n", id, warnings[id])
	}
}

// Aggregate reports whether a request is ready to submit and, if not, lists
// what is blocking it.
func Aggregate(w io.Writer, u editor.RequestUpdate) bool {
	return editor.MatchRequest(u,
		func(req models.JobRequest) bool {
			fmt.Fprintf(w, "Request %q is ready to submit.\n", req.Name)
			return true
		},
		func(errs []string) bool {
			fmt.Fprintln(w, "The request cannot be submitted yet:")
			for _, e := range errs {
				fmt.Fprintf(w, "  - %s\n", e)
			}
			return false
		},
	)
}

// Error formats an error for display, with a hint when the server was not reached.
func Error(err error) string {
	if api.IsConnectionError(err) {
		return err.Error() + " (check that the server is running and the URL is correct)"
	}
	return err.Error()
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
