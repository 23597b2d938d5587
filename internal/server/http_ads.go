package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/marketplace/internal/idgen"
	"github.com/alfredjeanlab/marketplace/internal/marketplace"
	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/store"
)

// CommandResponse is returned by every ad command.
type CommandResponse struct {
	ID       string         `json:"id"`
	Position model.Position `json:"position"`
}

type registerAdRequest struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
}

type changeTitleRequest struct {
	Title string `json:"title"`
}

type updateTextRequest struct {
	Text string `json:"text"`
}

type changePriceRequest struct {
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

type publishRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// handleRegisterAd handles POST /v1/ads. An id is generated when the
// request carries none.
func (s *Server) handleRegisterAd(w http.ResponseWriter, r *http.Request) {
	var req registerAdRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}
	if req.ID == "" {
		id, err := idgen.NewAdID()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate id")
			return
		}
		req.ID = id
	}
	pos, err := s.ads.Register(r.Context(), req.ID, req.OwnerID)
	if errors.Is(err, store.ErrWrongExpectedVersion) {
		writeError(w, http.StatusConflict, "ad already exists")
		return
	}
	s.writeCommandResult(w, http.StatusCreated, req.ID, pos, err)
}

// handleChangeTitle handles PUT /v1/ads/{id}/title.
func (s *Server) handleChangeTitle(w http.ResponseWriter, r *http.Request) {
	var req changeTitleRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	pos, err := s.ads.ChangeTitle(r.Context(), id, req.Title)
	s.writeCommandResult(w, http.StatusOK, id, pos, err)
}

// handleUpdateText handles PUT /v1/ads/{id}/text.
func (s *Server) handleUpdateText(w http.ResponseWriter, r *http.Request) {
	var req updateTextRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	pos, err := s.ads.UpdateText(r.Context(), id, req.Text)
	s.writeCommandResult(w, http.StatusOK, id, pos, err)
}

// handleChangePrice handles PUT /v1/ads/{id}/price.
func (s *Server) handleChangePrice(w http.ResponseWriter, r *http.Request) {
	var req changePriceRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	pos, err := s.ads.ChangePrice(r.Context(), id, req.Price, req.Currency)
	s.writeCommandResult(w, http.StatusOK, id, pos, err)
}

// handlePublish handles POST /v1/ads/{id}/publish. The owner is the one
// the ad was registered with.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	pos, err := s.ads.Publish(r.Context(), id, req.ApprovedBy)
	s.writeCommandResult(w, http.StatusOK, id, pos, err)
}

// handleMarkAsSold handles POST /v1/ads/{id}/sold.
func (s *Server) handleMarkAsSold(w http.ResponseWriter, r *http.Request) {
	if s.ads == nil {
		writeError(w, http.StatusServiceUnavailable, "commands are disabled")
		return
	}
	id := r.PathValue("id")
	pos, err := s.ads.MarkAsSold(r.Context(), id)
	s.writeCommandResult(w, http.StatusOK, id, pos, err)
}

// handleListAvailableAds handles GET /v1/ads. ?all=true includes drafts and
// sold ads.
func (s *Server) handleListAvailableAds(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	ads, err := s.readModels.ListAvailableAds(r.Context(), !all)
	if err != nil {
		s.logger.Error("list available ads failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list ads")
		return
	}
	if ads == nil {
		ads = []*model.AvailableAd{}
	}
	writeJSON(w, http.StatusOK, ads)
}

// handleListOwnerAds handles GET /v1/owners/{id}/ads.
func (s *Server) handleListOwnerAds(w http.ResponseWriter, r *http.Request) {
	ads, err := s.readModels.ListOwnerAds(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("list owner ads failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list ads")
		return
	}
	if ads == nil {
		ads = []*model.OwnerAd{}
	}
	writeJSON(w, http.StatusOK, ads)
}

// decodeCommand rejects the request when commands are disabled or the body
// is not valid JSON.
func (s *Server) decodeCommand(w http.ResponseWriter, r *http.Request, v any) bool {
	if s.ads == nil {
		writeError(w, http.StatusServiceUnavailable, "commands are disabled")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) writeCommandResult(w http.ResponseWriter, code int, id string, pos model.Position, err error) {
	switch {
	case err == nil:
		writeJSON(w, code, CommandResponse{ID: id, Position: pos})
	case errors.Is(err, marketplace.ErrIDRequired),
		errors.Is(err, marketplace.ErrOwnerRequired),
		errors.Is(err, marketplace.ErrTitleTooLong),
		errors.Is(err, marketplace.ErrPriceNotAllowed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, marketplace.ErrAdNotFound):
		writeError(w, http.StatusNotFound, "ad not found")
	case errors.Is(err, store.ErrWrongExpectedVersion):
		writeError(w, http.StatusConflict, "ad was changed concurrently")
	default:
		s.logger.Error("ad command failed", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "command failed")
	}
}
