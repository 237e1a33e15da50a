package config

import "testing"

func validDatabase() DatabaseConfig {
	return DatabaseConfig{
		Name: "speed.rrd",
		Step: 300,
		DS:   []DSConfig{{Name: "speed", Type: "COUNTER", Heartbeat: 600, Min: "U", Max: "U"}},
		RRA:  []RRAConfig{{CF: "AVERAGE", XFF: 0.5, Steps: 1, Rows: 24}},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: Config{
				Cache:     CacheConfig{FlushInterval: 1},
				Databases: []DatabaseConfig{validDatabase()},
			},
			wantErr: false,
		},
		{
			name: "no databases",
			config: Config{
				Cache:     CacheConfig{FlushInterval: 1},
				Databases: nil,
			},
			wantErr: true,
		},
		{
			name: "zero flush interval",
			config: Config{
				Cache:     CacheConfig{FlushInterval: 0},
				Databases: []DatabaseConfig{validDatabase()},
			},
			wantErr: true,
		},
		{
			name: "duplicate database name",
			config: Config{
				Cache:     CacheConfig{FlushInterval: 1},
				Databases: []DatabaseConfig{validDatabase(), validDatabase()},
			},
			wantErr: true,
		},
		{
			name: "non-positive step",
			config: Config{
				Cache: CacheConfig{FlushInterval: 1},
				Databases: []DatabaseConfig{func() DatabaseConfig {
					db := validDatabase()
					db.Step = 0
					return db
				}()},
			},
			wantErr: true,
		},
		{
			name: "unknown ds type",
			config: Config{
				Cache: CacheConfig{FlushInterval: 1},
				Databases: []DatabaseConfig{func() DatabaseConfig {
					db := validDatabase()
					db.DS[0].Type = "BOGUS"
					return db
				}()},
			},
			wantErr: true,
		},
		{
			name: "unknown cf",
			config: Config{
				Cache: CacheConfig{FlushInterval: 1},
				Databases: []DatabaseConfig{func() DatabaseConfig {
					db := validDatabase()
					db.RRA[0].CF = "BOGUS"
					return db
				}()},
			},
			wantErr: true,
		},
		{
			name: "xff out of range",
			config: Config{
				Cache: CacheConfig{FlushInterval: 1},
				Databases: []DatabaseConfig{func() DatabaseConfig {
					db := validDatabase()
					db.RRA[0].XFF = 1.5
					return db
				}()},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseConfigDefinition(t *testing.T) {
	db := validDatabase()
	def, err := db.Definition("/tmp/speed.rrd", 920804400)
	if err != nil {
		t.Fatalf("Definition() error = %v", err)
	}
	if def.Path != "/tmp/speed.rrd" || def.Step != 300 {
		t.Errorf("Definition() = %+v, unexpected path/step", def)
	}
	if len(def.DSs) != 1 || len(def.Archives) != 1 {
		t.Errorf("Definition() = %+v, unexpected ds/archive counts", def)
	}
}
