//go:build windows && 386

// Command cmdhelper is the in-game plugin, built as a DLL the ASI loader maps
// into gta_sa.exe:
//
//	GOOS=windows GOARCH=386 CGO_ENABLED=1 go build -buildmode=c-shared -o cmdhelper.asi ./cmd/cmdhelper
package main

import "C"

import (
	"fmt"
	"os"
	"path/filepath"

	"cmdhelper/internal/config"
	"cmdhelper/internal/hook"
	"cmdhelper/internal/logger"
	"cmdhelper/internal/memory"
	"cmdhelper/internal/native"
	"cmdhelper/internal/plugin"
	"cmdhelper/internal/version"
)

// instance keeps the plugin reachable for the lifetime of the process.
var instance *plugin.Plugin

func init() {
	// The loader lock is held while init runs; attach from a goroutine.
	go attach()
}

func attach() {
	dir := gameDir()
	cfg, err := config.Load(dir)
	if err != nil {
		cfg = config.Defaults()
		cfg.LogFile = filepath.Join(dir, config.DefaultLogFile)
	}
	if lerr := logger.Configure(cfg.LogLevel, cfg.LogFile); lerr != nil {
		fmt.Fprintf(os.Stderr, "cmdhelper: %v\n", lerr)
	}
	if err != nil {
		logger.Warn("Using default settings", "error", err)
	}
	logger.Info("Starting", "version", version.String(), "dir", dir)

	p, err := plugin.Attach(plugin.Deps{
		Mem:     memory.Current(),
		RT:      native.NewWindows(),
		Modules: memory.CurrentModules(),
		Windows: hook.User32{},
		Config:  cfg,
	})
	if err != nil {
		logger.Error("Not attaching", "error", err)
		return
	}
	instance = p
	logger.Info("Attached", "session", p.Session(), "build", p.Build())
}

// gameDir is the directory of the host executable.
func gameDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func main() {}
