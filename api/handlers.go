package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aka-azad/task-sorter-server/domain"
)

// maxBodySize bounds mutation request bodies.
const maxBodySize = 1 << 20

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, notifier Notifier, logger *log.Logger) {
	e.GET("/", health())
	e.POST("/jwt", postJWT(auth))
	e.POST("/users", postUsers(store))
	e.GET("/tasks/:userId", getTasks(store, auth, logger))
	e.POST("/tasks", postTasks(store, auth, notifier))
	e.PUT("/edit-task/:id", editTask(store, auth, notifier))
	e.DELETE("/tasks/:id", deleteTask(store, auth, notifier))
	e.PUT("/tasks/reorder", reorderTasks(store, auth, notifier))
}

func health() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, "Task Sorter API Running")
	}
}

func postJWT(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body struct {
			Email string `json:"email"`
		}
		if err := decodeBody(c, &body); err != nil || body.Email == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "Email is required"})
		}
		token, err := auth.IssueToken(body.Email)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Failed to issue token"})
		}
		return c.JSON(http.StatusOK, echo.Map{"token": token})
	}
}

// postUsers upserts the caller-supplied credential document by email. The
// body is kept as a raw document so arbitrary profile fields survive the
// write.
func postUsers(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		doc := map[string]any{}
		if err := decodeBody(c, &doc); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
		}
		result, err := store.UpsertUser(ctx, doc)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Failed to save user"})
		}
		return c.JSON(http.StatusOK, result)
	}
}

func getTasks(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := auth.EmailFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized access"})
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.FetchTasks(ctx, c.Param("userId"))
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.JSON(http.StatusInternalServerError, echo.Map{"message": "Failed to fetch tasks"})
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasks)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postTasks(store Storage, auth Authenticator, notifier Notifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.EmailFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized access"})
		}

		var task domain.Task
		if err := decodeBody(c, &task); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
		}
		if task.Title == "" || task.Category == "" || task.UserID == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "Missing required fields"})
		}

		next, err := store.NextOrderIndex(ctx, task.UserID, task.Category)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Failed to add task"})
		}
		task.OrderIndex = next

		result, err := store.InsertTask(ctx, task)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Failed to add task"})
		}

		// The payload is the record as it went to the store: the assigned
		// orderIndex is present, the store-assigned id is not.
		notifier.Broadcast(domain.NewTaskAdded(task))

		return c.JSON(http.StatusOK, result)
	}
}

func editTask(store Storage, auth Authenticator, notifier Notifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.EmailFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized access"})
		}

		id := c.Param("id")
		if _, err := primitive.ObjectIDFromHex(id); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid task ID"})
		}

		var task domain.Task
		if err := decodeBody(c, &task); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
		}

		// Full replace: fields the caller left out are written back empty.
		if err := store.ReplaceTaskFields(ctx, id, task); err != nil {
			var notFound TaskNotFoundError
			if errors.As(err, &notFound) {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "Task not found"})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal Server Error"})
		}

		notifier.Broadcast(domain.NewTaskUpdated(task))

		return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Task updated successfully!"})
	}
}

func deleteTask(store Storage, auth Authenticator, notifier Notifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.EmailFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized access"})
		}

		id := c.Param("id")
		result, err := store.DeleteTask(ctx, id)
		if err != nil {
			var notFound TaskNotFoundError
			var invalidID InvalidTaskIDError
			if errors.As(err, &notFound) || errors.As(err, &invalidID) {
				return c.JSON(http.StatusNotFound, echo.Map{"message": "Task not found"})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal Server Error"})
		}

		notifier.Broadcast(domain.NewTaskDeleted(id))

		return c.JSON(http.StatusOK, result)
	}
}

func reorderTasks(store Storage, auth Authenticator, notifier Notifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.EmailFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized access"})
		}

		var body struct {
			Tasks []domain.TaskPosition `json:"tasks"`
		}
		if err := decodeBody(c, &body); err != nil || body.Tasks == nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid task data"})
		}

		if err := store.BulkReorder(ctx, body.Tasks); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Failed to reorder tasks"})
		}

		notifier.Broadcast(domain.NewTasksReordered(body.Tasks))

		return c.JSON(http.StatusOK, echo.Map{"success": true})
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	return sonic.ConfigStd.NewDecoder(lr).Decode(v)
}
