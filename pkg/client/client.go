package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
)

// Client is a struct for communicating with the smilelock daemon
type Client struct {
	socketPath string
	httpClient *http.Client
}

// NewClient is a constructor for creating a new Client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					conn, err := d.DialContext(ctx, "unix", socketPath)
					if err != nil {
						if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
							return nil, ErrDaemonNotRunning
						}
						if errors.Is(err, os.ErrPermission) {
							return nil, ErrPermissionDenied
						}
						logrus.Errorf("failed to connect to unix socket: %v", err)
						return nil, err
					}
					return conn, err
				},
			},
		},
	}
}

func (c *Client) newRequest(ctx context.Context, method string, path string, data string) (*http.Request, error) {
	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"data":   data,
		"unix":   c.socketPath,
	}).Debug("sending request")

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Send is a method for sending a request to the smilelock daemon
func (c *Client) Send(method string, path string, data string) (string, error) {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut:
	default:
		return "", fmt.Errorf("unknown method: %s", method)
	}

	req, err := c.newRequest(context.Background(), method, path, data)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	body := string(b)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return "", ErrNotFound
	case http.StatusConflict:
		return "", fmt.Errorf("%w: %s", ErrConflict, body)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("got %d: %s", resp.StatusCode, body)
	}

	return body, nil
}

// Get is a method for sending a GET request to the smilelock daemon
func (c *Client) Get(path string) (string, error) {
	return c.Send(http.MethodGet, path, "")
}

// Put is a method for sending a PUT request to the smilelock daemon
func (c *Client) Put(path string, data string) (string, error) {
	return c.Send(http.MethodPut, path, data)
}

// Post is a method for sending a POST request to the smilelock daemon
func (c *Client) Post(path string, data string) (string, error) {
	return c.Send(http.MethodPost, path, data)
}
