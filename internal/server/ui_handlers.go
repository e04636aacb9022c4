package server

import (
	"fmt"
	"net/http"

	"github.com/cwbudde/blockhist/internal/ui"
)

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	jobs := s.jobManager.ListJobs()
	items := make([]ui.JobListItem, len(jobs))
	for i, job := range jobs {
		var geometry string
		if job.result != nil {
			c := job.cfg
			geometry = fmt.Sprintf("%dx%d / %dx%d / %d bins", c.Width, c.Height, c.BlockWidth, c.BlockHeight, c.NumOfBins)
		}
		items[i] = ui.JobListItem{
			ID:        job.ID,
			State:     string(job.State),
			Frame:     job.Config.Frame,
			Backend:   job.Config.Backend,
			Geometry:  geometry,
			Blocks:    job.Blocks,
			Elapsed:   job.Elapsed,
			Verdict:   job.Verdict,
			StartTime: job.StartTime,
			EndTime:   job.EndTime,
			Error:     job.Error,
		}
	}

	if err := ui.JobList(items).Render(r.Context(), w); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
}
