package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/smilelock/pkg/config"
	"github.com/charlie0129/smilelock/pkg/events"
	"github.com/charlie0129/smilelock/pkg/unlock"
)

// ErrStopWatching can be returned from a Watch callback to end the stream
// without an error.
var ErrStopWatching = errors.New("stop watching")

func (c *Client) GetStatus() (*unlock.Snapshot, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}

	var s unlock.Snapshot
	if err := json.Unmarshal([]byte(ret), &s); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}
	return &s, nil
}

// GetSessions returns at most limit sessions, newest first. A negative limit
// returns all of them.
func (c *Client) GetSessions(limit int) ([]unlock.Session, error) {
	path := "/sessions"
	if limit >= 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get sessions")
	}

	var sessions []unlock.Session
	if err := json.Unmarshal([]byte(ret), &sessions); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal sessions")
	}
	return sessions, nil
}

func (c *Client) StartDetection() (string, error) {
	return c.postMessage("/detection/start")
}

func (c *Client) StopDetection() (string, error) {
	return c.postMessage("/detection/stop")
}

func (c *Client) Lock() (string, error) {
	return c.postMessage("/lock")
}

func (c *Client) ResetData() (string, error) {
	return c.postMessage("/reset")
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

// GetResetSchedule returns the next scheduled data reset, or the zero time if
// scheduled resets are disabled.
func (c *Client) GetResetSchedule() (time.Time, error) {
	ret, err := c.Get("/reset-schedule")
	if err != nil {
		return time.Time{}, pkgerrors.Wrapf(err, "failed to get reset schedule")
	}

	s, err := parseStringResponse(ret)
	if err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, pkgerrors.Wrapf(err, "failed to parse next reset time")
	}
	return t, nil
}

// SetResetSchedule sets the cron expression for data resets. An empty
// expression disables them.
func (c *Client) SetResetSchedule(expr string) (string, error) {
	payload, err := json.Marshal(expr)
	if err != nil {
		return "", err
	}
	ret, err := c.Put("/reset-schedule", string(payload))
	if err != nil {
		return "", err
	}
	return parseStringResponse(ret)
}

func (c *Client) SkipResetSchedule() (string, error) {
	return c.postMessage("/reset-schedule/skip")
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return parseStringResponse(ret)
}

// Watch streams daemon events to fn until ctx is done, the daemon closes the
// stream, or fn returns an error. Returning ErrStopWatching ends the stream
// with a nil error.
func (c *Client) Watch(ctx context.Context, fn func(events.Event) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/events", "")
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("got %d from event stream", resp.StatusCode)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ev events.Event
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.Name == "" && len(ev.Data) == 0 {
				continue
			}
			if err := fn(ev); err != nil {
				if errors.Is(err, ErrStopWatching) {
					return nil
				}
				return err
			}
			ev = events.Event{}
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.Data = append(ev.Data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		}
	}

	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return pkgerrors.Wrapf(err, "failed to read event stream")
	}
	return nil
}

func (c *Client) postMessage(path string) (string, error) {
	ret, err := c.Post(path, "")
	if err != nil {
		return "", err
	}
	return parseStringResponse(ret)
}

// parseStringResponse decodes a JSON string body. Bodies that are not JSON
// strings are returned as-is.
func parseStringResponse(resp string) (string, error) {
	var s string
	if err := json.Unmarshal([]byte(resp), &s); err != nil {
		return strings.TrimSpace(resp), nil
	}
	return s, nil
}
