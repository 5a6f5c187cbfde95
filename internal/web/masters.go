package web

import (
	"net/http"

	"kalapa/internal/model"
	"kalapa/internal/recurrence"
)

// masterDTO is a stored event plus its recurrence picker label.
type masterDTO struct {
	model.Event
	RecurrenceLabel string `json:"recurrence_label"`
}

func toMasterDTO(ev model.Event) masterDTO {
	return masterDTO{Event: ev, RecurrenceLabel: recurrence.Label(ev.Recurrence)}
}

type mastersResponse struct {
	Masters []masterDTO `json:"masters"`
}

func (s *Server) handleListMasters(w http.ResponseWriter, _ *http.Request) {
	events := s.store.List()
	out := make([]masterDTO, 0, len(events))
	for _, ev := range events {
		out = append(out, toMasterDTO(ev))
	}
	writeJSON(w, http.StatusOK, mastersResponse{Masters: out})
}

func (s *Server) handleGetMaster(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMasterDTO(ev))
}

func (s *Server) handleCreateMaster(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.store.Create(r.Context(), ev)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMasterDTO(created))
}

// handleUpdateMaster replaces a stored event; for a master this edits all
// occurrences. An instance id in the path addresses its master.
func (s *Server) handleUpdateMaster(w http.ResponseWriter, r *http.Request) {
	current, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var ev model.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev.ID = current.ID

	updated, err := s.store.Update(r.Context(), ev)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMasterDTO(updated))
}

func (s *Server) handleDeleteMaster(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEditOccurrence stores a patch for one occurrence ("this event
// only") and returns the updated master.
func (s *Server) handleEditOccurrence(w http.ResponseWriter, r *http.Request) {
	var patch model.OccurrencePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	master, err := s.store.EditOccurrence(r.Context(), r.PathValue("id"), r.PathValue("date"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMasterDTO(master))
}

// handleDeleteOccurrence suppresses one occurrence and returns the
// updated master.
func (s *Server) handleDeleteOccurrence(w http.ResponseWriter, r *http.Request) {
	master, err := s.store.DeleteOccurrence(r.Context(), r.PathValue("id"), r.PathValue("date"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMasterDTO(master))
}
