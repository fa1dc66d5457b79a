package api

import (
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/board"
	"kanban-api/dnd"
	"kanban-api/domain"
)

const dueDateLayout = "2006-01-02"

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, b Board, logger *log.Logger) {
	e.Use(GzipRequestMiddleware())

	g := &gestureHandler{coordinator: dnd.NewCoordinator(b)}

	e.GET("/api/board", getBoard(b, logger))
	e.GET("/api/board/stream", streamBoard(b))

	e.POST("/api/tasks", postTask(b))
	e.PATCH("/api/tasks/:id", patchTask(b))
	e.DELETE("/api/tasks/:id", deleteTask(b))
	e.POST("/api/tasks/:id/move", moveTask(b))
	e.POST("/api/tasks/:id/subtasks/:subtaskId/toggle", toggleSubtask(b))
	e.POST("/api/tasks/:id/expansion/toggle", toggleExpansion(b))

	e.POST("/api/statuses", postStatus(b))
	e.PATCH("/api/statuses/:id", patchStatus(b))
	e.DELETE("/api/statuses/:id", deleteStatus(b))

	e.POST("/api/gesture", g.handle)

	e.GET("/healthz", healthz)
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// decodeBody reads a size-limited JSON body into v, rejecting unknown
// fields.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, postBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func getBoard(b Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		fetchStart := time.Now()
		snap := b.Snapshot()
		metrics.ObserveFetch(time.Since(fetchStart))
		metrics.SetTasksReturned(len(snap.Tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, snap)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

// streamBoard sends the current snapshot and then every subsequent one as
// server-sent events until the client disconnects.
func streamBoard(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		updates, cancel := b.Subscribe()
		defer cancel()

		ctx := c.Request().Context()
		snap := b.Snapshot()
		for {
			data, err := sonic.Marshal(snap)
			if err == nil {
				if _, err := c.Response().Write([]byte("data: ")); err != nil {
					return nil
				}
				if _, err := c.Response().Write(data); err != nil {
					return nil
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
			select {
			case <-ctx.Done():
				return nil
			case next, open := <-updates:
				if !open {
					return nil
				}
				snap = next
			}
		}
	}
}

func postTask(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req addTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if _, err := time.Parse(dueDateLayout, req.DueDate); err != nil {
			return c.String(http.StatusBadRequest, "due date must be a valid YYYY-MM-DD date")
		}

		task, err := b.AddTask(req.Content, req.Description, req.StatusID, req.Priority, req.DueDate, req.Subtasks, req.Assignee, req.Tags)
		if err != nil {
			if isValidationError(err) {
				return c.String(http.StatusBadRequest, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func patchTask(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if patch.DueDate != nil {
			if _, err := time.Parse(dueDateLayout, *patch.DueDate); err != nil {
				return c.String(http.StatusBadRequest, "due date must be a valid YYYY-MM-DD date")
			}
		}
		if patch.Priority != nil && !patch.Priority.Valid() {
			return c.String(http.StatusBadRequest, "unknown priority level")
		}
		b.EditTask(c.Param("id"), patch)
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTask(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		b.DeleteTask(c.Param("id"))
		return c.NoContent(http.StatusNoContent)
	}
}

func moveTask(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req moveTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.StatusID == "" {
			return c.String(http.StatusBadRequest, "statusId is required")
		}
		b.MoveTask(c.Param("id"), req.StatusID)
		return c.NoContent(http.StatusNoContent)
	}
}

func toggleSubtask(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		b.ToggleSubtask(c.Param("id"), c.Param("subtaskId"))
		return c.NoContent(http.StatusNoContent)
	}
}

func toggleExpansion(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		b.ToggleTaskExpansion(c.Param("id"))
		return c.NoContent(http.StatusNoContent)
	}
}

func postStatus(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req statusRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		status, err := b.AddStatus(req.Name)
		if err != nil {
			if isValidationError(err) {
				return c.String(http.StatusBadRequest, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, status)
	}
}

func patchStatus(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req statusRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		b.EditStatus(c.Param("id"), req.Name)
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteStatus(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		b.DeleteStatus(c.Param("id"))
		return c.NoContent(http.StatusNoContent)
	}
}

// gestureHandler drives the drag coordinator from stateless clients. The
// coordinator models a single pointer, so requests are serialized.
type gestureHandler struct {
	mu          sync.Mutex
	coordinator *dnd.Coordinator
}

func (g *gestureHandler) handle(c echo.Context) error {
	var req gestureRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	moved := false
	switch req.Action {
	case "begin":
		if err := g.coordinator.Begin(req.TaskID); err != nil {
			if errors.Is(err, dnd.ErrGestureActive) {
				return c.String(http.StatusConflict, err.Error())
			}
			return c.String(http.StatusBadRequest, err.Error())
		}
	case "enter":
		g.coordinator.Enter(req.StatusID)
	case "leave":
		g.coordinator.Leave(req.StatusID)
	case "drop":
		moved = g.coordinator.Drop(req.StatusID)
	case "cancel":
		g.coordinator.Cancel()
	default:
		return c.String(http.StatusBadRequest, "unknown gesture action")
	}

	return c.JSON(http.StatusOK, gestureResponse{
		Dragging: g.coordinator.Phase() == dnd.Dragging,
		Payload:  g.coordinator.Payload(),
		Hovering: g.coordinator.Hovering(),
		Moved:    moved,
	})
}

func isValidationError(err error) bool {
	return errors.Is(err, board.ErrEmptyContent) ||
		errors.Is(err, board.ErrMissingDueDate) ||
		errors.Is(err, board.ErrInvalidPriority) ||
		errors.Is(err, board.ErrEmptyStatusName)
}
