package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"botgrid/internal/spatial"
	"botgrid/internal/world"
)

const (
	defaultQueryRadius = 30.0
	maxBodyBytes       = 64 << 10
	gridCellPixels     = 8
)

type mapSummary struct {
	world.Stats
	Cache spatial.Stats `json:"cache"`
}

// summarize pairs every map's world counters with its cache statistics.
func summarize(maps MapService) []mapSummary {
	stats := maps.Stats()
	out := make([]mapSummary, 0, len(stats))
	for _, s := range stats {
		sum := mapSummary{Stats: s}
		if c, err := maps.Cache(s.MapID); err == nil {
			sum.Cache = c.Stats()
		}
		out = append(out, sum)
	}
	return out
}

func (h *routerHandlers) handleListMaps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, summarize(h.maps))
}

func (h *routerHandlers) handleMapStats(w http.ResponseWriter, r *http.Request) {
	c, ok := h.cache(w, r)
	if !ok {
		return
	}
	writeJSON(w, c.Stats())
}

type cellJSON struct {
	X      int32          `json:"x"`
	Y      int32          `json:"y"`
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
}

func (h *routerHandlers) handleActiveCells(w http.ResponseWriter, r *http.Request) {
	c, ok := h.cache(w, r)
	if !ok {
		return
	}
	cells := c.ActiveCells()
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Y != cells[j].Y {
			return cells[i].Y < cells[j].Y
		}
		return cells[i].X < cells[j].X
	})

	out := make([]cellJSON, 0, len(cells))
	for _, cell := range cells {
		counts := make(map[string]int, len(cell.Counts))
		for k, n := range cell.Counts {
			if n > 0 {
				counts[spatial.Kind(k).String()] = n
			}
		}
		out = append(out, cellJSON{X: cell.X, Y: cell.Y, Total: cell.Total(), Counts: counts})
	}
	writeJSON(w, out)
}

type nearbyResponse struct {
	Kind       string           `json:"kind"`
	Center     spatial.Position `json:"center"`
	Radius     float64          `json:"radius"`
	Count      int              `json:"count"`
	Generation uint64           `json:"generation,omitempty"`
	Results    any              `json:"results"`
}

func (h *routerHandlers) handleNearby(w http.ResponseWriter, r *http.Request) {
	c, ok := h.cache(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	x, errX := parseFinite(q.Get("x"))
	y, errY := parseFinite(q.Get("y"))
	if errX != nil || errY != nil {
		writeError(w, "x and y are required finite numbers", http.StatusBadRequest)
		return
	}
	radius := defaultQueryRadius
	if raw := q.Get("r"); raw != "" {
		v, err := parseFinite(raw)
		if err != nil {
			writeError(w, "r must be a finite number", http.StatusBadRequest)
			return
		}
		radius = v
	}
	center := spatial.Position{X: x, Y: y}
	if raw := q.Get("z"); raw != "" {
		z, err := parseFinite(raw)
		if err != nil {
			writeError(w, "z must be a finite number", http.StatusBadRequest)
			return
		}
		center.Z = z
	}

	kindName := chi.URLParam(r, "kind")
	resp := nearbyResponse{Kind: kindName, Center: center, Radius: radius}
	if kindName == "all" {
		n := c.QueryNearby(center, radius)
		resp.Count, resp.Generation, resp.Results = n.Len(), n.Generation, n
		writeJSON(w, resp)
		return
	}

	kind, ok := spatial.ParseKind(kindName)
	if !ok {
		writeError(w, "unknown kind "+strconv.Quote(kindName), http.StatusNotFound)
		return
	}
	resp.Kind = kind.String()
	switch kind {
	case spatial.KindCreature:
		res := c.QueryCreatures(center, radius)
		resp.Count, resp.Results = len(res), res
	case spatial.KindPlayer:
		res := c.QueryPlayers(center, radius)
		resp.Count, resp.Results = len(res), res
	case spatial.KindObject:
		res := c.QueryObjects(center, radius)
		resp.Count, resp.Results = len(res), res
	case spatial.KindTrigger:
		res := c.QueryTriggers(center, radius)
		resp.Count, resp.Results = len(res), res
	case spatial.KindEffect:
		res := c.QueryEffects(center, radius)
		resp.Count, resp.Results = len(res), res
	}
	writeJSON(w, resp)
}

func (h *routerHandlers) handleGridPNG(w http.ResponseWriter, r *http.Request) {
	c, ok := h.cache(w, r)
	if !ok {
		return
	}
	dc := renderOccupancy(c.ActiveCells(), gridCellPixels)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := dc.EncodePNG(w); err != nil {
		h.logger.Warn("⚠️ grid render failed", slog.Any("error", err))
	}
}

func (h *routerHandlers) handleSpawn(w http.ResponseWriter, r *http.Request) {
	mapID, ok := mapIDParam(w, r)
	if !ok {
		return
	}

	var req world.SpawnRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	guid, err := h.maps.Spawn(mapID, req)
	if err != nil {
		h.writeWorldError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]any{
		"guid": guid,
		"kind": req.Kind.String(),
	})
}

func (h *routerHandlers) handleDespawn(w http.ResponseWriter, r *http.Request) {
	mapID, ok := mapIDParam(w, r)
	if !ok {
		return
	}
	guid, ok := guidParam(w, r)
	if !ok {
		return
	}
	if err := h.maps.Submit(mapID, world.DespawnCommand(guid)); err != nil {
		h.writeWorldError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]any{"guid": guid})
}

func (h *routerHandlers) handleMove(w http.ResponseWriter, r *http.Request) {
	mapID, ok := mapIDParam(w, r)
	if !ok {
		return
	}
	guid, ok := guidParam(w, r)
	if !ok {
		return
	}

	var pos spatial.Position
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&pos); err != nil {
		writeError(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !pos.Valid() {
		writeError(w, "position must be finite", http.StatusBadRequest)
		return
	}
	if err := h.maps.Submit(mapID, world.MoveCommand(guid, pos)); err != nil {
		h.writeWorldError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]any{"guid": guid, "pos": pos})
}

// cache resolves the {mapID} parameter to a loaded cache, writing the error
// response itself when it cannot.
func (h *routerHandlers) cache(w http.ResponseWriter, r *http.Request) (*spatial.Cache, bool) {
	mapID, ok := mapIDParam(w, r)
	if !ok {
		return nil, false
	}
	c, err := h.maps.Cache(mapID)
	if err != nil {
		h.writeWorldError(w, err)
		return nil, false
	}
	return c, true
}

func (h *routerHandlers) writeWorldError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, world.ErrMapNotLoaded):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, world.ErrBadCommand):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, world.ErrQueueFull):
		w.Header().Set("Retry-After", "1")
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.Error("request failed", slog.Any("error", err))
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

var errNotFinite = errors.New("not a finite number")

// parseFinite parses a float query value, rejecting NaN and infinities which
// cannot be encoded back as JSON.
func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}

func mapIDParam(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "mapID"), 10, 32)
	if err != nil {
		writeError(w, "invalid map id", http.StatusBadRequest)
		return 0, false
	}
	return uint32(id), true
}

func guidParam(w http.ResponseWriter, r *http.Request) (spatial.GUID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "guid"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, "invalid guid", http.StatusBadRequest)
		return spatial.EmptyGUID, false
	}
	return spatial.GUID(id), true
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSONStatus(w, code, map[string]string{"error": message})
}
