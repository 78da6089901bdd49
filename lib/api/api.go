// Package api exposes reminder scheduling, on-demand sweeps, health and
// metrics over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ecociel/remind/lib/reminder"
	restful "github.com/emicklei/go-restful/v3"
	restfullog "github.com/emicklei/go-restful/v3/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type scheduler interface {
	Schedule(ctx context.Context, req reminder.Request) error
}

type sweeper interface {
	Sweep(ctx context.Context) (reminder.Result, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Status struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type resource struct {
	scheduler scheduler
	sweeper   sweeper
	db        pinger
	logger    *slog.Logger
}

type Deps struct {
	Scheduler scheduler
	Sweeper   sweeper
	// DB is pinged by /healthz when set.
	DB       pinger
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewContainer returns the HTTP handler of the service. Routes whose
// dependency is nil are not registered.
func NewContainer(d Deps) *restful.Container {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	restfullog.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))

	r := &resource{scheduler: d.Scheduler, sweeper: d.Sweeper, db: d.DB, logger: logger}

	ws := new(restful.WebService)
	ws.Path("/").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)
	if d.Scheduler != nil {
		ws.Route(ws.POST("/reminders").To(r.scheduleReminder).
			Doc("schedule the reminder of a stored task").
			Reads(reminder.Request{}).
			Returns(http.StatusAccepted, "scheduled or already scheduled", Status{}).
			Returns(http.StatusUnprocessableEntity, "unparseable due time", Status{}))
	}
	if d.Sweeper != nil {
		ws.Route(ws.POST("/sweeps").To(r.sweep).
			Doc("run one fallback sweep now").
			Returns(http.StatusOK, "sweep result", reminder.Result{}))
	}
	ws.Route(ws.GET("/healthz").To(r.health))

	c := restful.NewContainer()
	c.Add(ws)
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	c.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return c
}

func (r *resource) scheduleReminder(req *restful.Request, resp *restful.Response) {
	var body reminder.Request
	if err := req.ReadEntity(&body); err != nil {
		writeStatus(resp, http.StatusBadRequest, err)
		return
	}
	if body.TaskID <= 0 {
		writeStatus(resp, http.StatusBadRequest, errors.New("task_id is required"))
		return
	}
	err := r.scheduler.Schedule(req.Request.Context(), body)
	switch {
	case err == nil:
		writeStatus(resp, http.StatusAccepted, nil)
	case errors.Is(err, reminder.ErrUnparseableDue):
		writeStatus(resp, http.StatusUnprocessableEntity, err)
	default:
		r.logger.Error("schedule reminder", "task_id", body.TaskID, "error", err)
		writeStatus(resp, http.StatusInternalServerError, err)
	}
}

func (r *resource) sweep(req *restful.Request, resp *restful.Response) {
	res, err := r.sweeper.Sweep(req.Request.Context())
	if err != nil {
		r.logger.Error("sweep", "error", err)
		writeStatus(resp, http.StatusInternalServerError, err)
		return
	}
	_ = resp.WriteHeaderAndEntity(http.StatusOK, res)
}

func (r *resource) health(req *restful.Request, resp *restful.Response) {
	if r.db != nil {
		ctx, cancel := context.WithTimeout(req.Request.Context(), 2*time.Second)
		defer cancel()
		if err := r.db.Ping(ctx); err != nil {
			writeStatus(resp, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeStatus(resp, http.StatusOK, nil)
}

func writeStatus(resp *restful.Response, code int, err error) {
	s := Status{Status: http.StatusText(code)}
	if err != nil {
		s.Error = err.Error()
	}
	_ = resp.WriteHeaderAndEntity(code, s)
}
