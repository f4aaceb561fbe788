package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rahul/neurotasker/internal/agent"
	"github.com/rahul/neurotasker/internal/observability"
	"github.com/rahul/neurotasker/internal/store"
	"go.uber.org/zap"
)

// TaskStore is the part of the record store the gateway needs.
type TaskStore interface {
	CreateProfile(name, neuroType string) (*store.Profile, error)
	GetProfile(id int64) (*store.Profile, error)
	ListProfiles() ([]store.Profile, error)
	DeleteProfile(id int64) error
	ToggleDyslexicFont(id int64) (*store.Profile, error)
	AwardXP(id int64, amount int) (*store.Profile, bool, error)
	AddTask(profileID int64, title string, steps []store.MicroStep) (*store.Task, error)
	ListTasks(profileID int64) ([]store.Task, error)
	DeleteTask(id int64) error
	CompleteStep(taskID int64, stepID int) (*store.Task, bool, error)
}

// HTTPGateway serves the JSON API and the streaming decomposition endpoint.
type HTTPGateway struct {
	Echo   *echo.Echo
	Coach  agent.Coach
	Store  TaskStore
	Logger *observability.Logger

	addr     string
	sanitize *bluemonday.Policy
}

func NewHTTPGateway(addr string, coach agent.Coach, st TaskStore, logger *observability.Logger) *HTTPGateway {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger.Zap())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger.Zap()))

	g := &HTTPGateway{
		Echo:     e,
		Coach:    coach,
		Store:    st,
		Logger:   logger,
		addr:     addr,
		sanitize: bluemonday.StrictPolicy(),
	}
	g.routes()
	return g
}

func (g *HTTPGateway) routes() {
	g.Echo.GET("/health", g.health)

	api := g.Echo.Group("/api")
	api.GET("/profiles", g.listProfiles)
	api.POST("/profiles", g.createProfile)
	api.GET("/profiles/:id", g.getProfile)
	api.DELETE("/profiles/:id", g.deleteProfile)
	api.POST("/profiles/:id/font", g.toggleFont)
	api.GET("/profiles/:id/tasks", g.listTasks)
	api.POST("/profiles/:id/decompose", g.decompose)
	api.DELETE("/tasks/:id", g.deleteTask)
	api.POST("/tasks/:id/steps/:step/complete", g.completeStep)
}

func (g *HTTPGateway) Start() error {
	g.Logger.Zap().Info("HTTP gateway listening", zap.String("addr", g.addr))
	if err := g.Echo.Start(g.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *HTTPGateway) Stop(ctx context.Context) error {
	return g.Echo.Shutdown(ctx)
}

func (g *HTTPGateway) health(c echo.Context) error {
	phase, active, lastHB := observability.GetStatus()
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"phase":          phase,
		"active":         active,
		"last_heartbeat": lastHB,
	})
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

// cleanText strips markup from user input; entities are decoded back to plain text.
func (g *HTTPGateway) cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(g.sanitize.Sanitize(s)))
}

func (g *HTTPGateway) listProfiles(c echo.Context) error {
	profiles, err := g.Store.ListProfiles()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profiles)
}

type createProfileRequest struct {
	Name      string `json:"name"`
	NeuroType string `json:"neuro_type"`
}

func (g *HTTPGateway) createProfile(c echo.Context) error {
	var req createProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	p, err := g.Store.CreateProfile(g.cleanText(req.Name), agent.NormalizeNeuroType(req.NeuroType))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (g *HTTPGateway) getProfile(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	p, err := g.Store.GetProfile(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"profile":  p,
		"progress": store.ProgressPercent(p.XP, p.Level),
		"xp_next":  store.XPForNextLevel(p.Level),
	})
}

func (g *HTTPGateway) deleteProfile(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := g.Store.DeleteProfile(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (g *HTTPGateway) toggleFont(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	p, err := g.Store.ToggleDyslexicFont(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (g *HTTPGateway) listTasks(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if _, err := g.Store.GetProfile(id); err != nil {
		return err
	}
	tasks, err := g.Store.ListTasks(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

type decomposeRequest struct {
	Task string `json:"task"`
}

type decomposeResult struct {
	Task      *store.Task       `json:"task,omitempty"`
	Steps     []store.MicroStep `json:"steps"`
	Profile   *store.Profile    `json:"profile"`
	LeveledUp bool              `json:"leveled_up"`
}

// decompose streams Server-Sent Events: a "steps" event with the full list every time
// it grows, then one "done" event once the task is saved.
func (g *HTTPGateway) decompose(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req decomposeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	title := g.cleanText(req.Task)
	if title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task is required")
	}
	profile, err := g.Store.GetProfile(id)
	if err != nil {
		return err
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	steps, err := g.Coach.Decompose(c.Request().Context(), title, agent.Profile{Name: profile.Name, NeuroType: profile.NeuroType}, func(partial []store.MicroStep) {
		if err := writeEvent(w, "steps", partial); err != nil {
			g.Logger.Zap().Debug("dropping live update", zap.Error(err))
		}
	})
	if err != nil {
		// client went away; nothing is saved
		return nil
	}

	result := decomposeResult{Steps: steps, Profile: profile}
	if len(steps) > 0 && !agent.IsConnectionFailure(steps) {
		task, err := g.Store.AddTask(profile.ID, title, steps)
		if err != nil {
			return writeEvent(w, "error", map[string]string{"error": err.Error()})
		}
		result.Task = task
		result.Steps = task.Steps

		updated, up, err := g.Store.AwardXP(profile.ID, store.XPTaskDecomposed)
		if err != nil {
			return writeEvent(w, "error", map[string]string{"error": err.Error()})
		}
		g.Logger.LogXP(profile.ID, store.XPTaskDecomposed, updated.Level, up)
		result.Profile, result.LeveledUp = updated, up
	}
	return writeEvent(w, "done", result)
}

func writeEvent(w *echo.Response, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func (g *HTTPGateway) deleteTask(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := g.Store.DeleteTask(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type completeStepResult struct {
	Task      *store.Task    `json:"task"`
	Profile   *store.Profile `json:"profile"`
	Finished  bool           `json:"finished"`
	LeveledUp bool           `json:"leveled_up"`
}

// completeStep is the focus-mode "done" button: +10 XP, +50 more for the last step.
func (g *HTTPGateway) completeStep(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	stepID, err := pathID(c, "step")
	if err != nil {
		return err
	}
	task, finished, err := g.Store.CompleteStep(id, int(stepID))
	if err != nil {
		return err
	}

	amount := store.XPStepCompleted
	if finished {
		amount += store.XPTaskFinished
	}
	profile, up, err := g.Store.AwardXP(task.ProfileID, amount)
	if err != nil {
		return err
	}
	g.Logger.LogXP(task.ProfileID, amount, profile.Level, up)

	return c.JSON(http.StatusOK, completeStepResult{
		Task:      task,
		Profile:   profile,
		Finished:  finished,
		LeveledUp: up,
	})
}
