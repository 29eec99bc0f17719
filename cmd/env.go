package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/benchmark"
	"github.com/sells-group/reconcile-cli/internal/engine"
	"github.com/sells-group/reconcile-cli/internal/store"
)

// env bundles the wired store and engine for one command invocation.
type env struct {
	Store  store.Store
	Engine *engine.Engine
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close", zap.Error(err))
	}
}

// initEngine opens the configured store and wires the engine.
func initEngine(ctx context.Context) (*env, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		st = pg
	case "sqlite":
		sq, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st = sq
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	var benchmarks benchmark.Provider
	if cfg.Benchmarks.Path != "" {
		table, err := benchmark.LoadTable(cfg.Benchmarks.Path)
		if err != nil {
			if os.IsNotExist(eris.Cause(err)) {
				zap.L().Warn("benchmark table not found, plausibility checks disabled",
					zap.String("path", cfg.Benchmarks.Path))
			} else {
				st.Close()
				return nil, err
			}
		} else {
			benchmarks = table
		}
	}

	return &env{
		Store:  st,
		Engine: engine.New(st, benchmarks, cfg.Reconcile),
	}, nil
}

// printJSON writes v to stdout as indented JSON, the output format all
// read verbs share.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal output")
	}
	fmt.Println(string(out))
	return nil
}
