// Command allocate runs an allocation over files on disk and prints the result.
//
//	allocate -prefs prefs.csv [-roles roles.yaml] [-trials 100] [-seed 1] [-format json|csv]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/arnavshah/role-allocator-go/internal/config"
	"github.com/arnavshah/role-allocator-go/internal/logging"
	"github.com/arnavshah/role-allocator-go/pkg/allocator"
	"github.com/arnavshah/role-allocator-go/pkg/csvio"
	"github.com/arnavshah/role-allocator-go/pkg/database"
	"github.com/arnavshah/role-allocator-go/pkg/models"
)

func main() {
	cfg := config.Load()

	rolesPath := flag.String("roles", "", "roles file (.yaml, .yml or .csv); built-in roles when empty")
	prefsPath := flag.String("prefs", "", "preferences file (.json or .csv)")
	trials := flag.Int("trials", cfg.AllocationTrials, "number of shuffled trials")
	workers := flag.Int("workers", cfg.AllocationWorkers, "parallel trial workers")
	seed := flag.Int64("seed", 1, "random seed")
	format := flag.String("format", "json", "output format: json or csv")
	outPath := flag.String("out", "", "output file (stdout when empty)")
	flag.Parse()

	logger := logging.Must(cfg.LogLevel, "console")
	defer func() { _ = logger.Sync() }()

	if *prefsPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: allocate -prefs <file> [-roles <file>] [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	roles, err := loadRoles(*rolesPath)
	if err != nil {
		logger.Fatal("could not load roles", zap.Error(err))
	}
	prefs, err := loadPreferences(*prefsPath)
	if err != nil {
		logger.Fatal("could not load preferences", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := allocator.Allocate(ctx, prefs, roles, allocator.Options{
		Trials:  *trials,
		Workers: *workers,
		Seed:    *seed,
		Logger:  logger,
	})
	if res == nil {
		logger.Fatal("allocation failed", zap.Error(err))
	}
	if err != nil {
		logger.Warn("allocation interrupted, writing best result so far", zap.Error(err))
	}

	var out io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			logger.Fatal("could not create output", zap.Error(err))
		}
		defer f.Close()
		out = f
	}

	switch strings.ToLower(*format) {
	case "csv":
		err = csvio.WriteAssignments(out, res.Assignments)
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(res)
	}
	if err != nil {
		logger.Fatal("could not write result", zap.Error(err))
	}
}

func loadRoles(path string) ([]models.Role, error) {
	if path == "" {
		return database.DefaultRoles()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return csvio.ReadRoles(f)
	default:
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		return database.ParseRoles(data)
	}
}

func loadPreferences(path string) ([]models.Preference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return csvio.ReadPreferences(f)
	}
	var prefs []models.Preference
	if err := json.NewDecoder(f).Decode(&prefs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for i := range prefs {
		prefs[i].Normalize()
	}
	return prefs, nil
}
