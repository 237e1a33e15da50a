// Package paths resolves the default filesystem locations rrdb uses for
// its config file, database directory and update-cache socket, the same
// root-vs-user split the teacher project uses for its own daemon.
package paths

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

// Paths holds the resolved paths for config, data, and socket.
type Paths struct {
	ConfigFile string
	DataDir    string
	SocketPath string
}

// socketPathEnv overrides the update-cache socket path when set, so a
// daemon and its rrdbctl clients sharing a non-default socket (a second
// instance, a container with a read-only /var/run) don't have to agree
// on it solely through the config file.
const socketPathEnv = "RRDB_SOCKET_PATH"

// DefaultPaths returns the default paths based on the current user.
// Root: /etc/rrdb/, /var/lib/rrdb/, /var/run/rrdb/.
// Non-root: ~/.rrdb/config/, ~/.rrdb/data/, ~/.rrdb/rrdb.sock.
// RRDB_SOCKET_PATH, if set, overrides the socket path in either case.
func DefaultPaths() (*Paths, error) {
	if os.Geteuid() == 0 {
		p := &Paths{
			ConfigFile: "/etc/rrdb/config.yaml",
			DataDir:    "/var/lib/rrdb",
			SocketPath: "/var/run/rrdb/rrdb.sock",
		}
		p.applySocketPathOverride()
		return p, nil
	}

	usr, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("paths: getting current user: %w", err)
	}

	baseDir := filepath.Join(usr.HomeDir, ".rrdb")
	p := &Paths{
		ConfigFile: filepath.Join(baseDir, "config", "config.yaml"),
		DataDir:    filepath.Join(baseDir, "data"),
		SocketPath: filepath.Join(baseDir, "rrdb.sock"),
	}
	p.applySocketPathOverride()
	return p, nil
}

func (p *Paths) applySocketPathOverride() {
	if v := os.Getenv(socketPathEnv); v != "" {
		p.SocketPath = v
	}
}

// socketDirMode is more restrictive than the config/data directory mode:
// the socket carries unauthenticated update-cache writes from any local
// process that can reach it, so its directory is not group/world
// searchable.
const socketDirMode = 0700

// EnsureDirectories creates all necessary directories if they don't
// exist, tightening the socket directory's permissions to socketDirMode
// even if it already existed with a looser mode.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(p.ConfigFile),
		p.DataDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("paths: creating directory %s: %w", dir, err)
		}
	}

	socketDir := filepath.Dir(p.SocketPath)
	if err := os.MkdirAll(socketDir, socketDirMode); err != nil {
		return fmt.Errorf("paths: creating directory %s: %w", socketDir, err)
	}
	if err := os.Chmod(socketDir, socketDirMode); err != nil {
		return fmt.Errorf("paths: restricting permissions on %s: %w", socketDir, err)
	}
	return nil
}

// ConfigExists reports whether the config file exists.
func (p *Paths) ConfigExists() bool {
	_, err := os.Stat(p.ConfigFile)
	return err == nil
}

// SocketExists reports whether the cache daemon's socket file exists.
func (p *Paths) SocketExists() bool {
	_, err := os.Stat(p.SocketPath)
	return err == nil
}

// RemoveSocket removes the socket file if it exists.
func (p *Paths) RemoveSocket() error {
	if p.SocketExists() {
		return os.Remove(p.SocketPath)
	}
	return nil
}

// String returns a human-readable representation of the paths.
func (p *Paths) String() string {
	return fmt.Sprintf("Config: %s, Data: %s, Socket: %s", p.ConfigFile, p.DataDir, p.SocketPath)
}

// CreateDefaultConfig writes a starter config file if one doesn't already
// exist. Returns true if a new config was created.
func (p *Paths) CreateDefaultConfig() (bool, error) {
	if p.ConfigExists() {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(p.ConfigFile), 0755); err != nil {
		return false, fmt.Errorf("paths: creating config directory: %w", err)
	}

	defaultConfig := `# rrdb configuration
# Edit this file to declare the databases rrdb manages.

server:
  address: ":7317"
  enable_websocket: true

global:
  data_dir: "./data"

cache:
  flush_interval: 1s
  socket_path: "/var/run/rrdb/rrdb.sock"

databases:
  - name: "speed.rrd"
    step: 300
    ds:
      - name: "speed"
        type: "COUNTER"
        heartbeat: 600
        min: "U"
        max: "U"
    rra:
      - cf: "AVERAGE"
        xff: 0.5
        steps: 1
        rows: 24
      - cf: "AVERAGE"
        xff: 0.5
        steps: 6
        rows: 10
`
	if err := os.WriteFile(p.ConfigFile, []byte(defaultConfig), 0644); err != nil {
		return false, fmt.Errorf("paths: writing config file: %w", err)
	}
	return true, nil
}
