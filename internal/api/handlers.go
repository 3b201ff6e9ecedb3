package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/macro-finder/internal/discovery"
	"github.com/sells-group/macro-finder/internal/menu"
	"github.com/sells-group/macro-finder/internal/model"
	"github.com/sells-group/macro-finder/internal/rank"
	"github.com/sells-group/macro-finder/internal/refresh"
	"github.com/sells-group/macro-finder/internal/seed"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	rank.Request
	Refresh bool `json:"refresh,omitempty"`
}

type searchResponse struct {
	Results      []model.RankResult `json:"results"`
	Debug        *rank.Debug        `json:"debug,omitempty"`
	Refresh      *refresh.Result    `json:"refresh,omitempty"`
	RefreshError string             `json:"refreshError,omitempty"`
}

// handleSearch ranks items, optionally refreshing the area first. A failed
// refresh never fails the search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(w, r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := searchResponse{}
	if req.Refresh && req.Lat != nil && req.Lng != nil && s.cfg.Refresher != nil {
		res, err := s.runRefresh(r.Context(), refresh.Request{
			Lat:           *req.Lat,
			Lng:           *req.Lng,
			RadiusKm:      req.RadiusKm,
			IncludeBrands: req.IncludeBrands,
		})
		if err != nil {
			s.log.Warn("search refresh failed", zap.Error(err))
			resp.RefreshError = err.Error()
		}
		resp.Refresh = res
	}

	ranked, err := s.cfg.Ranker.Rank(r.Context(), req.Request)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp.Results = ranked.Results
	resp.Debug = ranked.Debug
	writeJSON(w, http.StatusOK, resp)
}

// runRefresh detaches from the request so imports finish if the client goes
// away, bounded by RefreshTimeout.
func (s *Server) runRefresh(parent context.Context, req refresh.Request) (*refresh.Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.RefreshTimeout)
	defer cancel()
	return s.cfg.Refresher.Refresh(ctx, req)
}

type priceRequest struct {
	PlaceID string   `json:"placeId"`
	ItemID  string   `json:"itemId"`
	Price   *float64 `json:"price"`
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	switch {
	case strings.TrimSpace(req.PlaceID) == "":
		s.writeError(w, r, model.Invalid("placeId", "is required"))
		return
	case strings.TrimSpace(req.ItemID) == "":
		s.writeError(w, r, model.Invalid("itemId", "is required"))
		return
	case req.Price == nil:
		s.writeError(w, r, model.Invalid("price", "is required"))
		return
	}
	if err := model.ValidatePrice("price", *req.Price); err != nil {
		s.writeError(w, r, err)
		return
	}

	rep, err := s.cfg.Store.SetPrice(r.Context(), req.PlaceID, req.ItemID, *req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discovery.Request
	if err := decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.cfg.Discoverer.Discover(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refresh.Request
	if err := decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.cfg.Refresher.Refresh(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type brandsResponse struct {
	Count  int           `json:"count"`
	Brands []model.Brand `json:"brands"`
}

func (s *Server) handleListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := s.cfg.Store.ListBrands(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if brands == nil {
		brands = []model.Brand{}
	}
	writeJSON(w, http.StatusOK, brandsResponse{Count: len(brands), Brands: brands})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Importer == nil || !s.cfg.Importer.Configured() {
		s.writeError(w, r, menu.ErrNotConfigured)
		return
	}
	res, err := s.cfg.Importer.Import(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type bulkRequest struct {
	Items []menu.ManualItem `json:"items"`
}

func (s *Server) handleBulkUpload(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.cfg.Uploader.Upload(r.Context(), req.Items)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStartSeed(w http.ResponseWriter, r *http.Request) {
	var req seed.Request
	if err := decode(w, r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.cfg.Seeds.Start(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListSeeds(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, model.Invalid("limit", "must be a positive integer"))
			return
		}
		limit = n
	}
	jobs, err := s.cfg.Seeds.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []model.SeedJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetSeed(w http.ResponseWriter, r *http.Request) {
	job, err := s.cfg.Seeds.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type statusResponse struct {
	Counts    *model.StoreCounts `json:"counts"`
	Providers map[string]string  `json:"providers,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.cfg.Store.Counts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := statusResponse{Counts: counts, Timestamp: time.Now().UTC()}
	if s.cfg.Breakers != nil {
		resp.Providers = s.cfg.Breakers()
	}
	writeJSON(w, http.StatusOK, resp)
}
