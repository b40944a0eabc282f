package api

import (
	"net/http"
	"strconv"

	"github.com/AndyChoi4495/fragments/internal/auth"
	"github.com/AndyChoi4495/fragments/internal/logging"
	"github.com/AndyChoi4495/fragments/internal/metrics"
	"github.com/AndyChoi4495/fragments/internal/protocol"
)

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	f, err := s.fragments.Create(r.Context(), auth.OwnerID(r.Context()), r.Header.Get("Content-Type"), body)
	if err != nil {
		s.sendFragmentError(w, r, err)
		return
	}

	logging.WithContext(r.Context()).Info("fragment created",
		logging.String("id", f.ID),
		logging.String("type", f.Type),
		logging.Int64("size", f.Size))

	w.Header().Set("Location", s.location(r, f.ID))
	s.sendJSON(w, http.StatusCreated, protocol.FragmentResponse{
		Status:   protocol.StatusOK,
		Fragment: protocol.FragmentView{Fragment: f.Metadata()},
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	expand := r.URL.Query().Get("expand") == "1"

	list, err := s.fragments.ByOwner(r.Context(), auth.OwnerID(r.Context()), expand)
	if err != nil {
		s.sendFragmentError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.FragmentListResponse{
		Status:    protocol.StatusOK,
		Fragments: list,
	})
}

// handleGet serves a fragment's bytes. An extension on the id selects a
// converted representation: /v1/fragments/{id}.html.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rep, err := s.fragments.Read(r.Context(), auth.OwnerID(r.Context()), r.PathValue("id"))
	if err != nil {
		s.sendFragmentError(w, r, err)
		return
	}

	metrics.RecordFragmentRead(int64(len(rep.Data)))

	w.Header().Set("Content-Type", rep.Type)
	w.Header().Set("Content-Length", strconv.Itoa(len(rep.Data)))
	w.Header().Set("Last-Modified", rep.Fragment.Updated.Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	w.Write(rep.Data)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, err := s.fragments.ByID(r.Context(), auth.OwnerID(r.Context()), id)
	if err != nil {
		s.sendFragmentError(w, r, err)
		return
	}
	if f == nil {
		s.sendError(w, http.StatusNotFound, "fragment "+id+" not found")
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.FragmentResponse{
		Status:   protocol.StatusOK,
		Fragment: protocol.FragmentView{Fragment: f, Formats: f.Formats()},
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	f, err := s.fragments.Update(r.Context(), auth.OwnerID(r.Context()), id, r.Header.Get("Content-Type"), body)
	if err != nil {
		s.sendFragmentError(w, r, err)
		return
	}

	logging.WithContext(r.Context()).Info("fragment updated",
		logging.String("id", f.ID),
		logging.String("type", f.Type),
		logging.Int64("size", f.Size))

	s.sendJSON(w, http.StatusOK, protocol.FragmentResponse{
		Status:   protocol.StatusOK,
		Fragment: protocol.FragmentView{Fragment: f.Metadata(), Formats: f.Formats()},
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.fragments.Delete(r.Context(), auth.OwnerID(r.Context()), id); err != nil {
		s.sendFragmentError(w, r, err)
		return
	}

	logging.WithContext(r.Context()).Info("fragment deleted", logging.String("id", id))
	s.sendJSON(w, http.StatusOK, protocol.StatusResponse{Status: protocol.StatusOK})
}
