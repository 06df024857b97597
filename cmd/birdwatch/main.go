/*
DESCRIPTION
  BirdWatch samples frames from live video streams, classifies them for
  bird species, records detections and notifies stream owners.

AUTHORS
  Mira Okafor <mira@ausocean.org>

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean).

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  This is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY
  or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public
  License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

// BirdWatch is a service that polls live streams for birds.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/birdwatch/capture"
	"github.com/ausocean/birdwatch/classify"
	"github.com/ausocean/birdwatch/gate"
	"github.com/ausocean/birdwatch/gauth"
	"github.com/ausocean/birdwatch/notify"
	"github.com/ausocean/birdwatch/queue"
	"github.com/ausocean/birdwatch/store"
	"github.com/ausocean/birdwatch/thumbnail"
)

// Project constants.
const (
	projectID         = "birdwatch"
	version           = "v0.1.0"
	defaultConfigPath = "/etc/birdwatch/config.yaml"
	shutdownTimeout   = 10 * time.Second
)

// Logging configuration.
const (
	logPath      = "/var/log/birdwatch/birdwatch.log"
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logSuppress  = true
)

// loggingLevel is the initial logging level. It is set to debug by the
// debug build tag (see debug.go).
var loggingLevel = logging.Info

// service defines the properties of our service.
type service struct {
	setupMutex sync.Mutex
	debug      bool
	standalone bool
	configPath string

	cfg     *config
	log     logging.Logger
	store   store.Admin
	dp      *Dispatcher
	sweeper *sweeper
	source  queue.Source
	dog     *watchdogNotifier
	closers []func()
}

// svc is an instance of our service.
var svc = &service{}

func main() {
	defaultPort := 8085
	v := os.Getenv("PORT")
	if v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			defaultPort = i
		}
	}

	var host string
	var port int
	flag.BoolVar(&svc.debug, "debug", false, "Run in debug mode.")
	flag.BoolVar(&svc.standalone, "standalone", false, "Run in standalone mode, reading stream IDs from stdin.")
	flag.StringVar(&host, "host", "localhost", "Host the status API listens on")
	flag.IntVar(&port, "port", defaultPort, "Port the status API listens on")
	flag.StringVar(&svc.configPath, "config", defaultConfigPath, "Config file path")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Perform one-time setup or bail.
	err := svc.setup(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not set up %s: %v\n", projectID, err)
		os.Exit(1)
	}

	err = svc.run(ctx, fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		svc.log.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	svc.log.Info("service stopped")
}

// setup executes one-time setup of the logger, store, capabilities and
// dispatcher.
func (svc *service) setup(ctx context.Context) error {
	svc.setupMutex.Lock()
	defer svc.setupMutex.Unlock()

	if svc.dp != nil {
		return nil
	}

	cfg, err := loadConfig(svc.configPath, svc.standalone)
	if err != nil {
		return err
	}
	if svc.debug || loggingLevel == logging.Debug {
		cfg.Log.Level = "debug"
	}
	svc.cfg = cfg

	// Create lumberjack logger to handle logging to file.
	fileLog := &lumberjack.Logger{
		Filename:   cfg.Log.Path,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	var w io.Writer = fileLog
	if svc.standalone || svc.debug {
		w = io.MultiWriter(fileLog, os.Stderr)
	}
	svc.log = logging.New(loggingLevel, w, cfg.Log.Suppress)
	svc.closers = append(svc.closers, func() { fileLog.Close() })
	err = applyLogConfig(svc.log, cfg)
	if err != nil {
		svc.log.Warning("could not apply log config", "error", err)
	}
	if svc.standalone {
		svc.log.Info("running in standalone mode")
	}

	svc.store, err = store.Open(ctx, store.Config{Kind: cfg.Store.Kind, ID: cfg.Store.ID, URL: cfg.Store.URL})
	if err != nil {
		return fmt.Errorf("could not open %s store: %w", cfg.Store.Kind, err)
	}
	if c, ok := svc.store.(io.Closer); ok {
		svc.closers = append(svc.closers, func() { c.Close() })
	}
	svc.log.Info("opened store", "kind", cfg.Store.Kind)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("could not load AWS config: %w", err)
	}

	var vocab *classify.Vocabulary
	if cfg.Classify.Vocabulary != "" {
		vocab, err = classify.LoadVocabulary(cfg.Classify.Vocabulary)
		if err != nil {
			return err
		}
	}

	uploader, err := svc.newUploader(ctx, awsCfg)
	if err != nil {
		return err
	}
	publisher, err := svc.newPublisher(ctx, awsCfg)
	if err != nil {
		return err
	}

	var opts []gate.Option
	if cfg.Announce.URL != "" {
		opts = append(opts, gate.WithAnnouncer(notify.NewAnnouncer(cfg.Announce.URL)))
	}

	if !svc.standalone {
		svc.dog = newWatchdogNotifier(svc.log)
	}

	d := &deps{
		store:       svc.store,
		resolver:    &capture.YTDLP{Path: cfg.Capture.YTDLP},
		opener:      &capture.FFmpeg{FFmpegPath: cfg.Capture.FFmpeg, FFprobePath: cfg.Capture.FFprobe},
		classifier:  classify.NewRekognition(awsCfg, classify.WithMaxLabels(cfg.Classify.MaxLabels), classify.WithMinConfidence(cfg.Classify.MinConfidence)),
		interpreter: classify.NewInterpreter(vocab),
		gate:        gate.New(svc.store, uploader, publisher, svc.log, opts...),
		log:         svc.log,
		dog:         svc.dog,
		sleep:       sleep,
		now:         time.Now,
	}
	svc.dp = NewDispatcher(cfg.MaxStreams, d)

	svc.sweeper, err = newSweeper(cfg.Sweep.Spec, svc.dp)
	if err != nil {
		return err
	}

	if svc.standalone {
		svc.source = queue.NewLines(os.Stdin, svc.log)
	} else {
		svc.source = &queue.AMQP{URL: cfg.Queue.URL, Queue: cfg.Queue.Name, Prefetch: cfg.MaxStreams, Log: svc.log}
	}
	return nil
}

// newUploader returns the configured thumbnail uploader.
func (svc *service) newUploader(ctx context.Context, awsCfg aws.Config) (thumbnail.Uploader, error) {
	cfg := svc.cfg
	switch cfg.Storage.Kind {
	case "s3":
		if cfg.Storage.Bucket == "" {
			return nil, fmt.Errorf("storage.bucket required for s3 storage")
		}
		return thumbnail.NewS3(awsCfg, cfg.Storage.Bucket), nil
	case "gcs":
		u, err := thumbnail.NewGCS(ctx, cfg.Storage.URL)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, func() { u.Close() })
		return u, nil
	case "local":
		return thumbnail.NewLocal(cfg.Storage.Dir, cfg.Storage.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Storage.Kind)
	}
}

// newPublisher returns the configured notification publisher.
func (svc *service) newPublisher(ctx context.Context, awsCfg aws.Config) (notify.Publisher, error) {
	cfg := svc.cfg
	switch cfg.Notify.Kind {
	case "sns":
		return notify.NewSNS(awsCfg), nil
	case "mailjet":
		secrets, err := gauth.GetSecrets(ctx, projectID, []string{"mailjetPublicKey", "mailjetPrivateKey"})
		if err != nil {
			return nil, fmt.Errorf("could not get secrets: %w", err)
		}
		opts := []notify.Option{notify.WithSecrets(secrets), notify.WithRecipientLookup(ownerLookup(svc.store, svc.log))}
		if cfg.Notify.Sender != "" {
			opts = append(opts, notify.WithSender(cfg.Notify.Sender))
		}
		m := &notify.Mailer{}
		err = m.Init(svc.log, opts...)
		if err != nil {
			return nil, fmt.Errorf("could not initialize mailer: %w", err)
		}
		return m, nil
	case "mqtt":
		p, err := notify.NewMQTT(cfg.Notify.Broker, cfg.Notify.ClientID)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, p.Close)
		return p, nil
	case "log":
		return notify.NewLog(svc.log), nil
	default:
		return nil, fmt.Errorf("unknown notify kind %q", cfg.Notify.Kind)
	}
}

// ownerLookup returns a recipient lookup for email topics. A topic is
// either an email address or an owner ID.
func ownerLookup(s store.Store, l logging.Logger) notify.Lookup {
	return func(ctx context.Context, topic string) []string {
		if strings.Contains(topic, "@") {
			return []string{topic}
		}
		o, err := s.GetOwner(ctx, topic)
		if err != nil {
			l.Warning("could not look up topic owner", "topic", topic, "error", err)
			return nil
		}
		if o.Email == "" {
			return nil
		}
		return []string{o.Email}
	}
}

// run consumes activations and serves the status API until ctx is done or
// a component fails, then shuts down the workers.
func (svc *service) run(ctx context.Context, addr string) error {
	g, gctx := errgroup.WithContext(ctx)

	// Set up a file watcher to watch the config file. This will allow us
	// to update logging configuration while the service is running.
	err := watchFile(gctx, svc.configPath, svc.onConfigChange, svc.log)
	if err != nil {
		svc.log.Warning("could not watch config file", "error", err)
	}

	svc.sweeper.Start()

	app := newApp(svc.dp)
	g.Go(func() error {
		svc.log.Info("listening", "addr", addr)
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	g.Go(func() error {
		return svc.source.Run(gctx, svc.admit)
	})
	if svc.dog != nil {
		g.Go(func() error {
			return svc.dog.notify(gctx)
		})
	}

	err = g.Wait()

	svc.log.Info("shutting down", "workers", len(svc.dp.Active()))
	svc.sweeper.Stop()
	svc.dp.Shutdown()
	for i := len(svc.closers) - 1; i >= 0; i-- {
		svc.closers[i]()
	}
	return err
}

// admit offers a stream to the dispatcher. A nil error acknowledges the
// activation message.
func (svc *service) admit(ctx context.Context, id int64) error {
	a, err := svc.dp.Admit(ctx, id)
	if err != nil {
		return err
	}
	svc.log.Debug("admission", "stream", id, "result", a.String())
	return nil
}

// onConfigChange is a callback used by the config file watcher to reload
// logging configuration.
func (svc *service) onConfigChange() {
	cfg, err := loadConfig(svc.configPath, svc.standalone)
	if err != nil {
		svc.log.Error("could not load config", "error", err)
		return
	}
	if svc.debug {
		cfg.Log.Level = "debug"
	}
	err = applyLogConfig(svc.log, cfg)
	if err != nil {
		svc.log.Error("could not apply log config", "error", err)
		return
	}
	svc.log.Info("applied log config", "level", cfg.Log.Level, "suppress", cfg.Log.Suppress)
}
