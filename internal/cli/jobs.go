package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobson/jobson-cli/internal/api"
	"github.com/jobson/jobson-cli/internal/localpath"
	"github.com/jobson/jobson-cli/internal/models"
	"github.com/jobson/jobson-cli/internal/render"
)

const followPollInterval = 2 * time.Second

// newJobsCmd creates the 'jobs' command group.
func newJobsCmd() *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Job operations (list, get, inputs, stdout, stderr, follow, abort, outputs)",
		Long:  `Commands for inspecting and controlling jobs on a Jobson server.`,
	}

	jobsCmd.AddCommand(newJobsListCmd())
	jobsCmd.AddCommand(newJobsGetCmd())
	jobsCmd.AddCommand(newJobsInputsCmd())
	jobsCmd.AddCommand(newJobsOutputStreamCmd("stdout"))
	jobsCmd.AddCommand(newJobsOutputStreamCmd("stderr"))
	jobsCmd.AddCommand(newJobsFollowCmd())
	jobsCmd.AddCommand(newJobsAbortCmd())
	jobsCmd.AddCommand(newJobsOutputsCmd())

	return jobsCmd
}

// newJobsListCmd creates the 'jobs list' command.
func newJobsListCmd() *cobra.Command {
	var (
		query  string
		page   int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Long: `List jobs on the server, newest first.

Example:
  # Jobs whose id, name or owner contains "nightly"
  jobson-cli jobs list --query nightly

  # Second page of results
  jobson-cli jobs list --page 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if page < 0 {
				return fmt.Errorf("--page must not be negative, got %d", page)
			}
			apiClient, _, err := getAPIClient(nil)
			if err != nil {
				return err
			}

			coll, err := apiClient.FetchJobSummaries(GetContext(cmd), query, page)
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}
			if asJSON {
				return render.JSON(cmd.OutOrStdout(), coll.Entries)
			}
			if err := render.JobList(cmd.OutOrStdout(), coll.Entries); err != nil {
				return err
			}
			if _, ok := coll.Links["next"]; ok {
				fmt.Fprintf(cmd.OutOrStdout(), "\nMore jobs available: use --page %d\n", page+1)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Only show jobs matching this text")
	cmd.Flags().IntVarP(&page, "page", "p", 0, "Page of results to show (zero based)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON")

	return cmd
}

// newJobsGetCmd creates the 'jobs get' command.
func newJobsGetCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show a job and its status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, _, err := getAPIClient(nil)
			if err != nil {
				return err
			}

			job, err := apiClient.FetchJobDetails(GetContext(cmd), args[0])
			if err != nil {
				return fmt.Errorf("failed to get job: %w", err)
			}
			if asJSON {
				return render.JSON(cmd.OutOrStdout(), job)
			}
			return render.JobDetails(cmd.OutOrStdout(), *job)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON")

	return cmd
}

// newJobsInputsCmd creates the 'jobs inputs' command.
func newJobsInputsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inputs <job-id>",
		Short: "Print the inputs a job was submitted with, as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, _, err := getAPIClient(nil)
			if err != nil {
				return err
			}

			inputs, err := apiClient.FetchJobInputs(GetContext(cmd), args[0])
			if err != nil {
				return fmt.Errorf("failed to get job inputs: %w", err)
			}
			return render.JSON(cmd.OutOrStdout(), inputs)
		},
	}
}

// newJobsOutputStreamCmd creates the 'jobs stdout' and 'jobs stderr' commands.
func newJobsOutputStreamCmd(stream string) *cobra.Command {
	return &cobra.Command{
		Use:   stream + " <job-id>",
		Short: "Print the " + stream + " of a job",
		Long: `Print what a job has written to ` + stream + ` so far.

A job that has not written anything prints nothing. Use 'jobs follow' to
keep streaming while the job runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, _, err := getAPIClient(nil)
			if err != nil {
				return err
			}

			fetch := apiClient.FetchJobStdout
			if stream == "stderr" {
				fetch = apiClient.FetchJobStderr
			}
			data, err := fetch(GetContext(cmd), args[0])
			if err != nil {
				return fmt.Errorf("failed to get job %s: %w", stream, err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// newJobsFollowCmd creates the 'jobs follow' command.
func newJobsFollowCmd() *cobra.Command {
	var stderr bool

	cmd := &cobra.Command{
		Use:   "follow [job-id]",
		Short: "Stream job status changes or a job's output",
		Long: `Without a job id, print every job status change as it happens.

With a job id, print the job's stdout (or stderr with --stderr) as it is
written and exit once the job has finished.

Examples:
  jobson-cli jobs follow
  jobson-cli jobs follow 2d4f... --stderr`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, _, err := getAPIClient(nil)
			if err != nil {
				return err
			}
			ctx := GetContext(cmd)
			out := cmd.OutOrStdout()

			var followErr error
			if len(args) == 0 {
				followErr = apiClient.FollowJobEvents(ctx, func(ev models.JobEvent) {
					fmt.Fprintf(out, "%s\t%s\n", ev.JobID, ev.NewStatus)
				})
			} else {
				followErr = followJobOutput(ctx, apiClient, args[0], stderr, out)
			}

			switch {
			case followErr == nil, errors.Is(followErr, context.Canceled):
				return nil
			case api.IsSubscriptionClosed(followErr):
				GetLogger().Debug().Err(followErr).Msg("Subscription ended")
				return errors.New("the server closed the subscription; run the command again to reconnect")
			default:
				return followErr
			}
		},
	}

	cmd.Flags().BoolVar(&stderr, "stderr", false, "Follow stderr instead of stdout")

	return cmd
}

// followJobOutput streams one output of a job until the job reaches a final
// status. A job that already finished just has its output printed.
func followJobOutput(ctx context.Context, apiClient *api.Client, jobID string, stderr bool, out io.Writer) error {
	job, err := apiClient.FetchJobDetails(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	fetch, follow := apiClient.FetchJobStdout, apiClient.FollowJobStdout
	if stderr {
		fetch, follow = apiClient.FetchJobStderr, apiClient.FollowJobStderr
	}

	if models.IsFinalStatus(job.LatestStatus()) {
		data, err := fetch(ctx, jobID)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		eventErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		eventErr = apiClient.FollowJobEvents(ctx, func(ev models.JobEvent) {
			if ev.JobID == jobID && models.IsFinalStatus(ev.NewStatus) {
				cancel()
			}
		})
	}()
	// The final status event is missed when the job ends before the
	// subscription opens.
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(followPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job, err := apiClient.FetchJobDetails(ctx, jobID)
				if err == nil && models.IsFinalStatus(job.LatestStatus()) {
					cancel()
					return
				}
			}
		}
	}()

	err = follow(ctx, jobID, func(chunk []byte) {
		out.Write(chunk)
	})
	cancel()
	wg.Wait()

	if err == nil || errors.Is(err, context.Canceled) {
		err = eventErr
	}
	return err
}

// newJobsAbortCmd creates the 'jobs abort' command.
func newJobsAbortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abort <job-id>",
		Short: "Abort a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, _, err := getAPIClient(nil)
			if err != nil {
				return err
			}

			if err := apiClient.AbortJob(GetContext(cmd), args[0]); err != nil {
				return err
			}
			GetLogger().Info().Str("job_id", args[0]).Msg("Abort requested")
			fmt.Fprintf(cmd.OutOrStdout(), "Abort requested for job %s\n", args[0])
			return nil
		},
	}
}

// newJobsOutputsCmd creates the 'jobs outputs' command.
func newJobsOutputsCmd() *cobra.Command {
	var (
		outputID string
		outPath  string
	)

	cmd := &cobra.Command{
		Use:   "outputs <job-id>",
		Short: "List or download the outputs of a job",
		Long: `List the outputs a job produced, or download one of them.

Examples:
  jobson-cli jobs outputs 2d4f...
  jobson-cli jobs outputs 2d4f... --get result --output result.csv
  jobson-cli jobs outputs 2d4f... --get stdout --output ~/results/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, _, err := getAPIClient(nil)
			if err != nil {
				return err
			}
			ctx := GetContext(cmd)
			jobID := args[0]

			if outputID == "" {
				outputs, err := apiClient.FetchJobOutputs(ctx, jobID)
				if err != nil {
					return fmt.Errorf("failed to list job outputs: %w", err)
				}
				return render.JobOutputs(cmd.OutOrStdout(), outputs)
			}

			var w io.Writer = cmd.OutOrStdout()
			target := ""
			if outPath != "" && outPath != "-" {
				if target, err = outputTarget(ctx, apiClient, jobID, outputID, outPath); err != nil {
					return err
				}
				f, err := os.Create(target)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", target, err)
				}
				defer f.Close()
				w = f
			}
			n, err := apiClient.DownloadJobOutput(ctx, jobID, outputID, w)
			if err != nil {
				return fmt.Errorf("failed to download output %s: %w", outputID, err)
			}
			GetLogger().Debug().Str("job_id", jobID).Str("output", outputID).Int64("bytes", n).Msg("Output downloaded")
			if target != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", n, target)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outputID, "get", "", "Download the output with this id")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "File or directory to write the downloaded output to (default stdout)")

	return cmd
}

// outputTarget resolves the file an output is downloaded to. A directory
// receives the output under its server-side name. The filesystem must have
// room for the output.
func outputTarget(ctx context.Context, apiClient *api.Client, jobID, outputID, outPath string) (string, error) {
	target, err := localpath.Expand(outPath)
	if err != nil {
		return "", err
	}

	outputs, err := apiClient.FetchJobOutputs(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("failed to list job outputs: %w", err)
	}
	var output *models.JobOutput
	for i := range outputs {
		if outputs[i].ID == outputID {
			output = &outputs[i]
			break
		}
	}
	if output == nil {
		return "", fmt.Errorf("job %s has no output '%s'", jobID, outputID)
	}

	if localpath.IsDir(target) {
		name := output.Name
		if name == "" {
			name = output.ID
		}
		if target, err = localpath.Within(target, name); err != nil {
			return "", fmt.Errorf("cannot save output %s: %w", outputID, err)
		}
	}
	if err := localpath.CheckSpace(target, output.Size); err != nil {
		return "", err
	}
	return target, nil
}
