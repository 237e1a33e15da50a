package queryapi

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wellsgz/rrdb/internal/config"
	"github.com/wellsgz/rrdb/internal/processor"
	"github.com/wellsgz/rrdb/internal/rrd"
	"github.com/wellsgz/rrdb/internal/timespec"
	"github.com/wellsgz/rrdb/internal/updatecache"
)

// Handler holds dependencies for the query API's HTTP handlers.
type Handler struct {
	config    *config.Config
	registry  *Registry
	cache     *updatecache.Cache
	startTime time.Time
}

// NewHandler builds a Handler over the given configuration, database
// registry and (optional) update cache.
func NewHandler(cfg *config.Config, registry *Registry, cache *updatecache.Cache) *Handler {
	return &Handler{config: cfg, registry: registry, cache: cache, startTime: time.Now()}
}

// StatusResponse reports basic server health, mirroring the teacher's
// GetStatus endpoint shape.
type StatusResponse struct {
	Status        string  `json:"status"`
	Uptime        string  `json:"uptime"`
	UptimeSecs    float64 `json:"uptime_secs"`
	DatabaseCount int     `json:"database_count"`
}

// GetStatus returns server uptime and configured database count.
func (h *Handler) GetStatus(c *gin.Context) {
	uptime := time.Since(h.startTime)
	c.JSON(http.StatusOK, StatusResponse{
		Status:        "ok",
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSecs:    uptime.Seconds(),
		DatabaseCount: len(h.config.Databases),
	})
}

// DSInfo describes one data source in an info response.
type DSInfo struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Heartbeat int32    `json:"heartbeat"`
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
}

// ArchiveInfo describes one archive in an info response.
type ArchiveInfo struct {
	CF         string  `json:"cf"`
	XFF        float64 `json:"xff"`
	Steps      int32   `json:"steps"`
	Rows       int32   `json:"rows"`
	CurrentRow int32   `json:"current_row"`
}

// InfoResponse is the response body for GET .../info.
type InfoResponse struct {
	Name           string        `json:"name"`
	Step           int32         `json:"step"`
	LastUpdateTime int64         `json:"last_update_time"`
	DataSources    []DSInfo      `json:"data_sources"`
	Archives       []ArchiveInfo `json:"archives"`
}

// GetInfo returns the header, DS and archive definitions of a database.
func (h *Handler) GetInfo(c *gin.Context) {
	name := c.Param("name")
	db, err := h.registry.Open(name)
	if err != nil {
		notFound(c, err)
		return
	}

	step, err := db.Header().Step()
	if err != nil {
		internalError(c, err)
		return
	}
	lut, err := db.Header().LastUpdateTime()
	if err != nil {
		internalError(c, err)
		return
	}

	resp := InfoResponse{Name: name, Step: step, LastUpdateTime: lut}

	for _, ds := range db.DataSources() {
		dsName, err := ds.Name()
		if err != nil {
			internalError(c, err)
			return
		}
		dsType, err := ds.Type()
		if err != nil {
			internalError(c, err)
			return
		}
		hb, err := ds.Heartbeat()
		if err != nil {
			internalError(c, err)
			return
		}
		min, err := ds.Min()
		if err != nil {
			internalError(c, err)
			return
		}
		max, err := ds.Max()
		if err != nil {
			internalError(c, err)
			return
		}
		resp.DataSources = append(resp.DataSources, DSInfo{
			Name: dsName, Type: string(dsType), Heartbeat: hb,
			Min: floatPtr(min), Max: floatPtr(max),
		})
	}

	for _, arc := range db.Archives() {
		cf, err := arc.ConsolidationFunction()
		if err != nil {
			internalError(c, err)
			return
		}
		xff, err := arc.XFF()
		if err != nil {
			internalError(c, err)
			return
		}
		steps, err := arc.Steps()
		if err != nil {
			internalError(c, err)
			return
		}
		rows, err := arc.Rows()
		if err != nil {
			internalError(c, err)
			return
		}
		cur, err := arc.CurrentRow()
		if err != nil {
			internalError(c, err)
			return
		}
		resp.Archives = append(resp.Archives, ArchiveInfo{
			CF: string(cf), XFF: xff, Steps: steps, Rows: rows, CurrentRow: cur,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// FetchResponse is the response body for GET .../fetch. NaN values are
// carried as JSON null, via *float64, matching the teacher's DataPoint
// convention for unknown readings.
type FetchResponse struct {
	Database string       `json:"database"`
	Start    int64        `json:"start"`
	End      int64        `json:"end"`
	Step     int32        `json:"step"`
	DSNames  []string     `json:"ds_names"`
	Rows     [][]*float64 `json:"rows"`
}

// SeriesResponse is the response body for GET .../fetch when the request
// carries cdef expressions: a named series-name → aligned value array,
// as internal/processor.ComputeSeries returns it.
type SeriesResponse struct {
	Database   string                `json:"database"`
	Start      int64                 `json:"start"`
	End        int64                 `json:"end"`
	Step       int64                 `json:"step"`
	Timestamps []int64               `json:"timestamps"`
	Series     map[string][]*float64 `json:"series"`
}

// GetFetch runs a fetch over a database. With no def/cdef query
// parameters it returns the raw rectangular archive result (NaN
// preserved as JSON null). When the request carries one or more cdef
// parameters, it instead evaluates the named DEF/CDEF graph described
// by the def/cdef/order parameters via internal/processor and returns a
// SeriesResponse.
func (h *Handler) GetFetch(c *gin.Context) {
	name := c.Param("name")
	db, err := h.registry.Open(name)
	if err != nil {
		notFound(c, err)
		return
	}

	cfStr := c.DefaultQuery("cf", "AVERAGE")
	cf, ok := rrd.ParseCFunc(cfStr)
	if !ok {
		badRequest(c, "unknown consolidation function %q", cfStr)
		return
	}

	now := time.Now()
	startExpr := c.DefaultQuery("start", "end-1day")
	endExpr := c.DefaultQuery("end", "now")
	start, end, err := timespec.ResolvePair(startExpr, endExpr, now)
	if err != nil {
		badRequest(c, "bad time range: %v", err)
		return
	}

	resolution := int32(300)
	if r := c.Query("resolution"); r != "" {
		n, err := strconv.ParseInt(r, 10, 32)
		if err != nil {
			badRequest(c, "bad resolution %q", r)
			return
		}
		resolution = int32(n)
	}

	cdefParams := c.QueryArray("cdef")
	if len(cdefParams) > 0 {
		h.getFetchGraph(c, db, name, cf, c.QueryArray("def"), cdefParams, start.Unix(), end.Unix(), resolution)
		return
	}

	result, err := db.CreateFetchRequest(cf, start.Unix(), end.Unix(), resolution).Fetch()
	if err != nil {
		internalError(c, err)
		return
	}

	resp := FetchResponse{
		Database: name,
		Start:    result.Start,
		End:      result.End,
		Step:     result.Step,
		DSNames:  result.DSNames,
		Rows:     make([][]*float64, len(result.Rows)),
	}
	for i, row := range result.Rows {
		out := make([]*float64, len(row))
		for j, v := range row {
			out[j] = floatPtr(v)
		}
		resp.Rows[i] = out
	}

	c.JSON(http.StatusOK, resp)
}

// getFetchGraph builds a processor.Graph from defParams ("name:dsname:cf",
// cf defaulting to the request's own cf when omitted) and cdefParams
// ("name:rpn-expr"), evaluates it over [start, end], and writes a
// SeriesResponse. Every DEF sources from db, the database the request's
// :name already resolved; graphing across multiple databases is not
// exposed through this endpoint.
func (h *Handler) getFetchGraph(c *gin.Context, db *rrd.Database, name string, defaultCF rrd.CFunc, defParams, cdefParams []string, start, end int64, resolution int32) {
	order := strings.Split(c.Query("order"), ",")
	for i := range order {
		order[i] = strings.TrimSpace(order[i])
	}

	sources := make(map[string]processor.SourceSpec, len(defParams))
	for _, raw := range defParams {
		parts := strings.Split(raw, ":")
		if len(parts) < 2 || len(parts) > 3 {
			badRequest(c, "bad def %q: want \"name:dsname\" or \"name:dsname:cf\"", raw)
			return
		}
		seriesCF := defaultCF
		if len(parts) == 3 {
			parsed, ok := rrd.ParseCFunc(parts[2])
			if !ok {
				badRequest(c, "def %q: unknown consolidation function %q", raw, parts[2])
				return
			}
			seriesCF = parsed
		}
		sources[parts[0]] = processor.SourceSpec{Path: db.Path(), DSName: parts[1], CF: seriesCF}
	}

	cdefs := make(map[string]string, len(cdefParams))
	for _, raw := range cdefParams {
		nameAndExpr := strings.SplitN(raw, ":", 2)
		if len(nameAndExpr) != 2 {
			badRequest(c, "bad cdef %q: want \"name:rpn-expr\"", raw)
			return
		}
		cdefs[nameAndExpr[0]] = nameAndExpr[1]
	}

	opener := func(path string) (*rrd.Database, error) { return h.registry.OpenByPath(path) }
	result, err := processor.ComputeSeries(opener, sources, cdefs, order, start, end, resolution)
	if err != nil {
		badRequest(c, "%v", err)
		return
	}

	resp := SeriesResponse{
		Database:   name,
		Start:      start,
		End:        end,
		Step:       result.Step,
		Timestamps: result.Timestamps,
		Series:     make(map[string][]*float64, len(result.Series)),
	}
	for seriesName, vals := range result.Series {
		out := make([]*float64, len(vals))
		for i, v := range vals {
			out[i] = floatPtr(v)
		}
		resp.Series[seriesName] = out
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateRequest is the body of POST .../update.
type UpdateRequest struct {
	Time   int64    `json:"time"`
	Values []string `json:"values"`
}

// PostUpdate submits one sample, either directly against the database or
// (if an update cache is wired in) through it for batched, timestamp-
// ordered application.
func (h *Handler) PostUpdate(c *gin.Context) {
	name := c.Param("name")
	db, err := h.registry.Open(name)
	if err != nil {
		notFound(c, err)
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	if req.Time == 0 {
		req.Time = time.Now().Unix()
	}

	if h.cache != nil {
		h.cache.Register(name, db)
		if err := h.cache.Submit(name, req.Time, req.Values); err != nil {
			internalError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
		return
	}

	if err := db.CreateSample().SetTime(req.Time).SetValues(req.Values...).Update(); err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "committed"})
}

func floatPtr(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func notFound(c *gin.Context, err error) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Not Found", "message": err.Error()})
}

func badRequest(c *gin.Context, format string, args ...interface{}) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "message": fmt.Sprintf(format, args...)})
}

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error", "message": err.Error()})
}
