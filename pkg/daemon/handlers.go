package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smilelock/pkg/config"
	"github.com/charlie0129/smilelock/pkg/events"
	"github.com/charlie0129/smilelock/pkg/unlock"
	"github.com/charlie0129/smilelock/pkg/version"
)

func abortWith(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, ctrl.Snapshot())
}

func getSessions(c *gin.Context) {
	limit := -1
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			abortWith(c, http.StatusBadRequest, fmt.Errorf("limit must be a non-negative integer, got %q", q))
			return
		}
		limit = n
	}

	c.IndentedJSON(http.StatusOK, ctrl.Sessions(limit))
}

func startDetection(c *gin.Context) {
	if err := ctrl.StartDetection(); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, unlock.ErrNotLocked) {
			code = http.StatusConflict
		}
		abortWith(c, code, err)
		return
	}

	logrus.Info("smile detection started")

	c.IndentedJSON(http.StatusCreated, "ok")
}

func stopDetection(c *gin.Context) {
	ctrl.StopDetection()

	logrus.Info("smile detection stopped")

	c.IndentedJSON(http.StatusCreated, "ok")
}

func lockPhone(c *gin.Context) {
	ctrl.Lock()

	logrus.Info("locked")

	c.IndentedJSON(http.StatusCreated, "ok")
}

func resetData(c *gin.Context) {
	ctrl.ResetData()

	c.IndentedJSON(http.StatusCreated, "ok")
}

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func formatNextRun(next time.Time) string {
	if next.IsZero() {
		return ""
	}
	return next.Format(time.RFC3339)
}

func getResetSchedule(c *gin.Context) {
	next, _, _ := resetScheduler.Status()
	c.IndentedJSON(http.StatusOK, formatNextRun(next))
}

func setResetSchedule(c *gin.Context) {
	var expr string
	if err := c.BindJSON(&expr); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}

	if err := resetScheduler.Schedule(expr); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}

	conf.SetResetSchedule(expr)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWith(c, http.StatusInternalServerError, err)
		return
	}

	if expr == "" {
		logrus.Info("scheduled data reset disabled")
		c.IndentedJSON(http.StatusCreated, "scheduled data reset disabled")
		return
	}

	next, _, _ := resetScheduler.Status()
	logrus.WithField("next", formatNextRun(next)).Infof("set reset schedule to %q", expr)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("next data reset at %s", formatNextRun(next)))
}

func skipResetSchedule(c *gin.Context) {
	if err := resetScheduler.Skip(); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}

	next, _, _ := resetScheduler.Status()
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("skipped, next data reset at %s", formatNextRun(next)))
}

// streamEvents sends state changes as server-sent events until the client
// goes away or the hub is closed. The first event carries the current state.
func streamEvents(c *gin.Context) {
	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	hello, err := json.Marshal(events.StateEvent{State: ctrl.Snapshot(), Ts: time.Now().UnixMilli()})
	if err != nil {
		abortWith(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent(events.Hello, string(hello))
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
