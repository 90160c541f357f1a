package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smilelock/pkg/config"
	"github.com/charlie0129/smilelock/pkg/events"
	"github.com/charlie0129/smilelock/pkg/unlock"
)

var (
	ctrl           *unlock.Controller
	conf           config.Config
	sseHub         *events.EventHub
	resetScheduler *Scheduler

	// reloadMu serializes reloads from SIGHUP and the file watcher.
	reloadMu sync.Mutex
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/status", getStatus)
	router.GET("/sessions", getSessions)
	router.POST("/detection/start", startDetection)
	router.POST("/detection/stop", stopDetection)
	router.POST("/lock", lockPhone)
	router.POST("/reset", resetData)
	router.GET("/events", streamEvents)
	router.GET("/config", getConfig)
	router.GET("/reset-schedule", getResetSchedule)
	router.PUT("/reset-schedule", setResetSchedule)
	router.POST("/reset-schedule/skip", skipResetSchedule)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/version", getVersion)

	return router
}

// controllerOptions derives controller settings from the config. The
// observer is not part of it.
func controllerOptions(c config.Config) (unlock.Options, error) {
	sampler, err := unlock.NewSamplerByName(c.Sampler(), uint64(time.Now().UnixNano()))
	if err != nil {
		return unlock.Options{}, err
	}
	return unlock.Options{
		TickInterval:     c.TickInterval(),
		ResampleInterval: c.ResampleInterval(),
		RelockDelay:      c.RelockDelay(),
		HistoryLimit:     c.HistoryLimit(),
		Sampler:          sampler,
	}, nil
}

func resetTask() error {
	logrus.Info("running scheduled data reset")
	ctrl.ResetData()
	return nil
}

func onResetError(data any) {
	logrus.Errorf("scheduled data reset: %v", data)
}

// reloadConfig re-reads the config file and applies it. It runs on SIGHUP and
// whenever the file changes. Timing changes take effect on the next
// detection run.
func reloadConfig() error {
	reloadMu.Lock()
	defer reloadMu.Unlock()

	var opts unlock.Options
	err := conf.Reload(func(next config.Config) error {
		o, err := controllerOptions(next)
		if err != nil {
			return err
		}
		if err := resetScheduler.Validate(next.ResetSchedule()); err != nil {
			return err
		}
		opts = o
		return nil
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "config rejected, keeping current settings")
	}

	ctrl.Configure(opts)
	if err := resetScheduler.Schedule(conf.ResetSchedule()); err != nil {
		return err
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
	return nil
}

// removeStaleSocket deletes a unix socket left behind by an unclean exit.
// Anything that is not a socket is left alone.
func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return nil
	}
	return os.Remove(path)
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	f, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	conf = f
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	opts, err := controllerOptions(conf)
	if err != nil {
		return err
	}
	sseHub = events.NewEventHub()
	opts.Observer = newStateObserver(sseHub)
	ctrl = unlock.New(opts)

	resetScheduler = NewScheduler(resetTask, onResetError)
	if err := resetScheduler.Schedule(conf.ResetSchedule()); err != nil {
		logrus.Errorf("scheduled resets disabled: %v", err)
	}
	resetScheduler.Start()

	router := setupRoutes()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := reloadConfig(); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
			}
		}
	}()

	watchCtx, stopWatching := context.WithCancel(context.Background())
	defer stopWatching()
	if err := watchConfig(watchCtx, configPath, reloadConfig); err != nil {
		logrus.Warnf("config hot reload disabled, use SIGHUP instead: %v", err)
	}

	srv := &http.Server{
		Handler: router,
	}

	if err := removeStaleSocket(unixSocketPath); err != nil {
		logrus.Fatalf("failed to remove stale socket %s: %v", unixSocketPath, err)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	// Event streams never end on their own. Close them first so Shutdown
	// does not wait for them.
	sseHub.Close()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	stopWatching()

	logrus.Info("stopping reset scheduler")
	resetScheduler.Stop()

	logrus.Info("stopping unlock controller")
	ctrl.Close()

	logrus.Info("exiting")
	return nil
}
