package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus mirrors the server's status response.
type jobStatus struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Config struct {
		Frame     string `json:"frame"`
		Backend   string `json:"backend"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		NumOfBins int    `json:"numOfBins"`
	} `json:"config"`
	Blocks   int     `json:"blocks"`
	Dispatch float64 `json:"dispatch"`
	Wall     float64 `json:"wall"`
	Verdict  string  `json:"verdict"`
	Error    string  `json:"error"`
}

// jobSummary mirrors an entry of the server's job list.
type jobSummary struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Config struct {
		Frame   string `json:"frame"`
		Backend string `json:"backend"`
	} `json:"config"`
	Blocks  int           `json:"blocks"`
	Elapsed time.Duration `json:"elapsedNs"`
	Error   string        `json:"error"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return listJobs(out, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(out, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func getJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(out io.Writer, url string) error {
	var jobs []jobSummary
	if _, err := getJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Frame: %s (%s)\n", job.Config.Frame, job.Config.Backend)
		if job.Blocks > 0 {
			fmt.Fprintf(out, "  Blocks: %d in %s\n", job.Blocks, job.Elapsed.Round(time.Microsecond))
		}
		if job.Error != "" {
			fmt.Fprintf(out, "  Error: %s\n", job.Error)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func getJobStatus(out io.Writer, url, jobID string) error {
	var status jobStatus
	code, err := getJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n\n", status.State)

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Frame: %s\n", status.Config.Frame)
	fmt.Fprintf(out, "  Backend: %s\n", status.Config.Backend)
	if status.Config.Width > 0 {
		fmt.Fprintf(out, "  Size: %dx%d\n", status.Config.Width, status.Config.Height)
	}
	if status.Config.NumOfBins > 0 {
		fmt.Fprintf(out, "  Bins: %d\n", status.Config.NumOfBins)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	if status.Blocks > 0 {
		fmt.Fprintf(out, "  Blocks: %d\n", status.Blocks)
		dispatch := time.Duration(status.Dispatch * float64(time.Second))
		fmt.Fprintf(out, "  Dispatch: %s\n", dispatch.Round(time.Microsecond))
	}
	wall := time.Duration(status.Wall * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", wall.Round(time.Millisecond))
	if status.Verdict != "" {
		fmt.Fprintf(out, "  Validation: %s\n", status.Verdict)
	}

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}
	return nil
}
