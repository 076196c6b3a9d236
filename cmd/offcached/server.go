package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/offcache"
)

type server struct {
	cache  offcache.Cache[json.RawMessage]
	log    *logrus.Logger
	e      *echo.Echo
	served *prometheus.CounterVec
}

func newServer(c offcache.Cache[json.RawMessage], reg *prometheus.Registry, log *logrus.Logger) *server {
	s := &server{
		cache: c,
		log:   log,
		e:     echo.New(),
		served: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offcached_http_requests_total",
			Help: "HTTP requests served by the daemon.",
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(s.served)

	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Use(s.countRequests)

	s.e.GET("/entries/:key", s.getEntry)
	s.e.PUT("/entries/:key", s.putEntry)
	s.e.DELETE("/entries/:key", s.deleteEntry)
	s.e.GET("/stats", s.stats)
	s.e.GET("/operations", s.operations)
	s.e.GET("/attention", s.attention)
	s.e.POST("/operations/:id/retry", s.retryOperation)
	s.e.DELETE("/operations/:id", s.discardOperation)
	s.e.POST("/sync", s.sync)
	s.e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	return s
}

func (s *server) countRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		status := c.Response().Status
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
		}
		route := c.Path()
		if route == "" {
			route = c.Request().URL.Path
		}
		s.served.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
		return err
	}
}

func (s *server) getEntry(c echo.Context) error {
	v, ok, err := s.cache.Get(c.Request().Context(), c.Param("key"))
	if err != nil {
		return s.fail(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no such entry")
	}
	return c.JSONBlob(http.StatusOK, v)
}

// putEntry stores the JSON body. Query: ttl (Go duration, "0" = never),
// tags (comma separated), priority, sync=false.
func (s *server) putEntry(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !json.Valid(body) {
		return echo.NewHTTPError(http.StatusBadRequest, "body must be JSON")
	}

	var opts []offcache.SetOption
	if raw := c.QueryParam("ttl"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid ttl")
		}
		opts = append(opts, offcache.WithTTL(ttl))
	}
	if raw := c.QueryParam("tags"); raw != "" {
		opts = append(opts, offcache.WithTags(strings.Split(raw, ",")...))
	}
	if raw := c.QueryParam("priority"); raw != "" {
		p := offcache.Priority(raw)
		if !p.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid priority")
		}
		opts = append(opts, offcache.WithPriority(p))
	}
	if c.QueryParam("sync") == "false" {
		opts = append(opts, offcache.WithoutSync())
	}

	key := c.Param("key")
	if err := s.cache.Set(c.Request().Context(), key, json.RawMessage(body), opts...); err != nil {
		return s.fail(err)
	}
	e, _ := s.cache.Entry(key)
	return c.JSON(http.StatusOK, newEntryJSON(e))
}

func (s *server) deleteEntry(c echo.Context) error {
	existed, err := s.cache.Delete(c.Request().Context(), c.Param("key"))
	if err != nil {
		return s.fail(err)
	}
	if !existed {
		return echo.NewHTTPError(http.StatusNotFound, "no such entry")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *server) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cache.Stats())
}

func (s *server) operations(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cache.Operations())
}

func (s *server) attention(c echo.Context) error {
	ops := s.cache.NeedsAttention()
	if ops == nil {
		ops = []offcache.Operation{}
	}
	return c.JSON(http.StatusOK, ops)
}

func (s *server) retryOperation(c echo.Context) error {
	if err := s.cache.RetryOperation(c.Request().Context(), c.Param("id")); err != nil {
		return s.fail(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *server) discardOperation(c echo.Context) error {
	if err := s.cache.DiscardOperation(c.Request().Context(), c.Param("id")); err != nil {
		return s.fail(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *server) sync(c echo.Context) error {
	rep, err := s.cache.ProcessQueue(c.Request().Context())
	if err != nil {
		return s.fail(err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (s *server) fail(err error) error {
	var se *offcache.StorageError
	switch {
	case errors.Is(err, offcache.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, offcache.ErrEmptyKey):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, offcache.ErrNotFailed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, offcache.ErrClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &se):
		s.log.WithError(err).WithField("doc", se.Doc).Error("storage failure")
		return echo.NewHTTPError(http.StatusInternalServerError, "storage failure")
	default:
		s.log.WithError(err).Error("request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// entryJSON hides the stored bytes, which may be compressed or encrypted.
type entryJSON struct {
	Key        string              `json:"key"`
	Version    uint64              `json:"version"`
	Checksum   string              `json:"checksum"`
	Tags       []string            `json:"tags,omitempty"`
	Priority   offcache.Priority   `json:"priority"`
	SyncStatus offcache.SyncStatus `json:"syncStatus"`
	ExpiresAt  *time.Time          `json:"expiresAt,omitempty"`
}

func newEntryJSON(e offcache.Entry) entryJSON {
	v := entryJSON{
		Key:        e.Key,
		Version:    e.Version,
		Checksum:   e.Checksum,
		Tags:       e.Tags,
		Priority:   e.Priority,
		SyncStatus: e.SyncStatus,
	}
	if !e.ExpiresAt.IsZero() {
		t := e.ExpiresAt
		v.ExpiresAt = &t
	}
	return v
}
