// Package app is the layer between the CLI and the reconciliation core.
// It discovers the project root, loads the manifest and user files,
// wires the service, and persists the manifest after mutating commands.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"scidataflow/internal/config"
	"scidataflow/internal/manifest"
	"scidataflow/internal/remote"
	"scidataflow/internal/sdf"
	"scidataflow/internal/transfer"
)

// App owns the project context for one command invocation.
type App struct {
	Root    string
	service *sdf.Service
	data    *manifest.DataCollection
	logger  *slogAdapter
}

// FindRoot walks parent directories from start for the manifest file and
// returns the project root.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, manifest.Filename)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: not a scidataflow project (run sdf init first)", manifest.ErrNoManifest)
		}
		dir = parent
	}
}

// New loads the project from the working directory and wires the service.
// The user config is optional at load time; commands that need it fail
// with a pointed message when it is absent.
func New(verbose bool) (*App, error) {
	root, err := FindRoot(".")
	if err != nil {
		return nil, err
	}
	data, err := manifest.Load(filepath.Join(root, manifest.Filename))
	if err != nil {
		return nil, err
	}
	keys, err := config.LoadAuthKeys()
	if err != nil {
		return nil, err
	}
	user, err := config.LoadUser()
	if err != nil {
		user = nil
	}

	logger := &slogAdapter{l: newLogger(verbose)}
	engine := transfer.NewEngine(transfer.DefaultConfig(), transfer.NewConsole())
	svc := sdf.NewService(root, data, keys, user, engine, remote.New, logger)

	return &App{Root: root, service: svc, data: data, logger: logger}, nil
}

// Service exposes the wired reconciliation service.
func (a *App) Service() *sdf.Service { return a.service }

// Save atomically rewrites the manifest. Mutating commands call this
// once, after the core reports success.
func (a *App) Save() error {
	return manifest.Save(filepath.Join(a.Root, manifest.Filename), a.data)
}

// Init creates an empty manifest in the working directory. It is the one
// command that runs without a discovered project.
func Init() error {
	if _, err := os.Stat(manifest.Filename); err == nil {
		return fmt.Errorf("project already initialized: %s exists", manifest.Filename)
	}
	return manifest.Init(manifest.Filename)
}

// SetConfig creates or updates the user config with any non-empty
// fields.
func SetConfig(name, email, affiliation string) error {
	cfg, err := config.LoadUser()
	if err != nil {
		cfg = &config.UserConfig{}
	}
	if name != "" {
		cfg.User.Name = name
	}
	if email != "" {
		cfg.User.Email = email
	}
	if affiliation != "" {
		cfg.User.Affiliation = affiliation
	}
	return config.SaveUser(cfg)
}

// SetMetadata updates the manifest metadata block and persists it.
func (a *App) SetMetadata(title, description string) error {
	a.service.SetMetadata(title, description)
	return a.Save()
}

// Pull dispatches the pull variants: remote-bound files, URL-sourced
// entries, or both.
func (a *App) Pull(ctx context.Context, overwrite, urls, all bool) (*sdf.SyncSummary, error) {
	if all {
		urlSummary, err := a.service.PullURLs(ctx, overwrite)
		if err != nil {
			return nil, err
		}
		remoteSummary, err := a.service.Pull(ctx, overwrite)
		if err != nil {
			return urlSummary, err
		}
		merge(urlSummary, remoteSummary)
		return urlSummary, nil
	}
	if urls {
		return a.service.PullURLs(ctx, overwrite)
	}
	return a.service.Pull(ctx, overwrite)
}

func merge(dst, src *sdf.SyncSummary) {
	dst.Transferred += src.Transferred
	dst.Identical = append(dst.Identical, src.Identical...)
	dst.WouldOverwrite = append(dst.WouldOverwrite, src.WouldOverwrite...)
	dst.LocalModified = append(dst.LocalModified, src.LocalModified...)
	dst.Untracked = append(dst.Untracked, src.Untracked...)
	dst.DeletedLocal = append(dst.DeletedLocal, src.DeletedLocal...)
	dst.Errors = append(dst.Errors, src.Errors...)
}
