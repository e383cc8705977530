/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/verdandi/internal/models"
	"github.com/friendsincode/verdandi/internal/snapshot"
)

type exportCreateRequest struct {
	PresetID   string `json:"preset_id"`
	Name       string `json:"name"`
	Schedule   string `json:"schedule"`
	Format     string `json:"format"`
	WindowDays int    `json:"window_days"`
	Enabled    *bool  `json:"enabled"`
}

func (a *API) handleExportsList(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.exports.ListJobs(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list export jobs failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) handleExportsCreate(w http.ResponseWriter, r *http.Request) {
	var req exportCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	job := &models.ExportJob{
		PresetID:   req.PresetID,
		Name:       req.Name,
		Schedule:   req.Schedule,
		Format:     models.ExportFormat(req.Format),
		WindowDays: req.WindowDays,
		Enabled:    req.Enabled == nil || *req.Enabled,
	}

	switch err := a.exports.CreateJob(r.Context(), job); {
	case err == nil:
		writeJSON(w, http.StatusCreated, job)
	case errors.Is(err, snapshot.ErrInvalidJob):
		writeError(w, http.StatusBadRequest, "invalid_job")
	default:
		a.logger.Error().Err(err).Msg("create export job failed")
		writeError(w, http.StatusInternalServerError, "db_error")
	}
}

func (a *API) handleExportsGet(w http.ResponseWriter, r *http.Request) {
	job, err := a.exports.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	switch {
	case errors.Is(err, snapshot.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case err != nil:
		a.logger.Error().Err(err).Msg("get export job failed")
		writeError(w, http.StatusInternalServerError, "db_error")
	default:
		writeJSON(w, http.StatusOK, job)
	}
}

func (a *API) handleExportsUpdate(w http.ResponseWriter, r *http.Request) {
	var patch snapshot.JobPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	job, err := a.exports.UpdateJob(r.Context(), chi.URLParam(r, "jobID"), patch)
	switch {
	case errors.Is(err, snapshot.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, snapshot.ErrInvalidJob):
		writeError(w, http.StatusBadRequest, "invalid_job")
	case err != nil:
		a.logger.Error().Err(err).Msg("update export job failed")
		writeError(w, http.StatusInternalServerError, "db_error")
	default:
		writeJSON(w, http.StatusOK, job)
	}
}

func (a *API) handleExportsDelete(w http.ResponseWriter, r *http.Request) {
	err := a.exports.DeleteJob(r.Context(), chi.URLParam(r, "jobID"))
	switch {
	case errors.Is(err, snapshot.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case err != nil:
		a.logger.Error().Err(err).Msg("delete export job failed")
		writeError(w, http.StatusInternalServerError, "db_error")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleExportsRun triggers a job outside its schedule. The run itself
// records failures on the job, so a failed render is still a 500 here but
// the job row carries the diagnostic.
func (a *API) handleExportsRun(w http.ResponseWriter, r *http.Request) {
	snap, err := a.exports.Run(r.Context(), chi.URLParam(r, "jobID"))
	switch {
	case errors.Is(err, snapshot.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case err != nil:
		a.logger.Error().Err(err).Msg("export run failed")
		writeError(w, http.StatusInternalServerError, "run_failed")
	default:
		writeJSON(w, http.StatusCreated, snap)
	}
}

func (a *API) handleExportSnapshots(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := a.exports.GetJob(r.Context(), jobID); err != nil {
		if errors.Is(err, snapshot.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		a.logger.Error().Err(err).Msg("get export job failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	snapshots, err := a.exports.Snapshots(r.Context(), jobID)
	if err != nil {
		a.logger.Error().Err(err).Msg("list snapshots failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (a *API) handleSnapshotDownload(w http.ResponseWriter, r *http.Request) {
	snap, data, err := a.exports.Open(r.Context(), chi.URLParam(r, "snapshotID"))
	switch {
	case errors.Is(err, snapshot.ErrSnapshotNotFound):
		writeError(w, http.StatusNotFound, "not_found")
		return
	case err != nil:
		a.logger.Error().Err(err).Msg("open snapshot failed")
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}

	w.Header().Set("Content-Type", contentTypeForFormat(snap.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(snap.ObjectKey)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func contentTypeForFormat(format models.ExportFormat) string {
	switch format {
	case models.FormatICS:
		return "text/calendar; charset=utf-8"
	case models.FormatCSV:
		return "text/csv; charset=utf-8"
	case models.FormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
