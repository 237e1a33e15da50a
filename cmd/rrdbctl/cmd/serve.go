package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/wellsgz/rrdb/internal/config"
	"github.com/wellsgz/rrdb/internal/logging"
	"github.com/wellsgz/rrdb/internal/queryapi"
	"github.com/wellsgz/rrdb/internal/updatecache"
)

var serveWithCache bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the query API: fetch/info/update over HTTP, plus a commit-event websocket",
	RunE: func(c *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}

		cfg, err := config.Load(path, nil)
		if err != nil {
			return err
		}

		var cache *updatecache.Cache
		if serveWithCache {
			cache = updatecache.New(cfg.Cache.FlushInterval)
			registerDatabases(cache, cfg)
			cache.Start()
			defer cache.Stop()
		}

		server := queryapi.NewServer(cfg, cache)
		server.StartAsync(cfg.Server.Address)
		logging.Info("API", "query API running on "+cfg.Server.Address, nil)

		waitForSignal()
		return server.Shutdown(10 * time.Second)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithCache, "with-cache", true, "batch updates through an in-process update cache")
	rootCmd.AddCommand(serveCmd)
}
