package cmd

import (
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wellsgz/rrdb/internal/config"
	"github.com/wellsgz/rrdb/internal/logging"
	"github.com/wellsgz/rrdb/internal/rrd"
	"github.com/wellsgz/rrdb/internal/updatecache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Run the update-cache daemon: batch and apply updates over a Unix socket",
	RunE: func(c *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}

		var cache *updatecache.Cache
		cfg, err := config.Load(path, func(next *config.Config) {
			logging.Info("Cache", "configuration reloaded", nil)
			registerDatabases(cache, next)
		})
		if err != nil {
			return err
		}

		cache = updatecache.New(cfg.Cache.FlushInterval)
		registerDatabases(cache, cfg)
		cache.Start()
		defer cache.Stop()

		server := updatecache.NewServer(cfg.Cache.SocketPath, cache)
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()

		logging.Info("Cache", "update-cache daemon running", nil)
		waitForSignal()
		return nil
	},
}

func registerDatabases(cache *updatecache.Cache, cfg *config.Config) {
	for _, dbCfg := range cfg.Databases {
		path := dbCfg.Name
		if !strings.HasPrefix(path, "memory:") && !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Global.DataDir, path)
		}

		db, err := rrd.Open(path)
		if err != nil {
			def, defErr := dbCfg.Definition(path, 0)
			if defErr != nil {
				logging.Error("Cache", "building definition for "+dbCfg.Name, defErr)
				continue
			}
			db, err = rrd.Create(def)
			if err != nil {
				logging.Error("Cache", "opening/creating "+dbCfg.Name, err)
				continue
			}
		}
		cache.Register(dbCfg.Name, db)
	}
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}
