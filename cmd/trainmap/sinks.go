package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/trainmap/trainmap/internal/broadcast"
	"github.com/trainmap/trainmap/internal/broadcast/journal"
	"github.com/trainmap/trainmap/internal/broadcast/memory"
	"github.com/trainmap/trainmap/internal/broadcast/telemetry"
	wssink "github.com/trainmap/trainmap/internal/broadcast/websocket"
	"github.com/trainmap/trainmap/internal/config"
	"github.com/trainmap/trainmap/internal/database"
	"github.com/trainmap/trainmap/internal/influx"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// sinkSet keeps the sinks main needs to reach after setup.
type sinkSet struct {
	recorder *memory.Recorder
	journal  *journal.Sink
	db       *database.Manager
}

// setupSinks initializes every configured sink and registers the ones that
// came up. A sink that fails to initialize is logged and skipped.
func setupSinks(ctx context.Context, b *broadcast.Broadcaster, zlog zerolog.Logger) *sinkSet {
	set := &sinkSet{}
	bcCfg := config.GetBroadcastConfig()

	set.recorder = memory.New(bcCfg.RecorderDepth)
	addSink(b, set.recorder)

	if bcCfg.WebSocket.Enabled {
		addSink(b, wssink.New(wssink.Config{
			URL:    bcCfg.WebSocket.URL,
			Secret: bcCfg.WebSocket.Secret,
		}, Logger))
	}

	jCfg := config.GetJournalConfig()
	if jCfg.Enabled {
		db, err := database.Open(database.Settings{
			Type:       jCfg.Type,
			SQLitePath: jCfg.SQLitePath,
			Host:       jCfg.Postgres.Host,
			Port:       jCfg.Postgres.Port,
			Username:   jCfg.Postgres.Username,
			Password:   jCfg.Postgres.Password,
			Database:   jCfg.Postgres.Database,
		}, zlog.With().Str("component", "journal").Logger())
		if err != nil {
			Logger.Error("Failed to connect journal database", "type", jCfg.Type, "error", err)
		} else {
			set.db = db
			set.journal = journal.New(db.DB, jCfg.FlushInterval, Logger)
			if !addSink(b, set.journal) {
				set.journal = nil
			}
		}
	}

	inCfg := config.GetInfluxConfig()
	if inCfg.Enabled {
		mgr := influx.NewManager(influx.Settings{
			URL:        inCfg.URL,
			Token:      inCfg.Token,
			Org:        inCfg.Org,
			Bucket:     inCfg.Bucket,
			Retention:  time.Duration(inCfg.RetentionDays) * 24 * time.Hour,
			BackupPath: inCfg.BackupPath,
		}, zlog.With().Str("component", "influx").Logger())
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := mgr.Connect(connectCtx)
		cancel()
		if err != nil {
			Logger.Error("Failed to set up InfluxDB telemetry", "error", err)
		} else {
			addSink(b, telemetry.New(mgr))
		}
	}

	Logger.Info("Snapshot sinks ready", "count", b.Sinks())
	return set
}

func addSink(b *broadcast.Broadcaster, s broadcast.Sink) bool {
	if err := s.Init(); err != nil {
		Logger.Error("Failed to initialize sink", "sink", s.Name(), "error", err)
		return false
	}
	b.Add(s)
	Logger.Debug("Sink registered", "sink", s.Name())
	return true
}

// close releases the journal database. An in-memory fallback database is
// written next to the log file first so the session journal survives.
func (s *sinkSet) close(logger *slog.Logger, sessionStart time.Time) {
	if s == nil || s.db == nil {
		return
	}
	if s.db.InMemory() {
		path := filepath.Join(viper.GetString("logsDir"),
			AppName+"_"+sessionStart.Format("20060102_150405")+".db")
		if err := s.db.DumpMemoryToDisk(path); err != nil {
			logger.Error("Failed to save in-memory journal", "path", path, "error", err)
		} else {
			logger.Info("Saved in-memory journal", "path", path)
		}
	}
	if err := s.db.Close(); err != nil {
		logger.Error("Failed to close journal database", "error", err)
	}
}
