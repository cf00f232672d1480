package config

import (
	"os"
	"path/filepath"
	"sync"
)

// HomeEnv overrides where portal-runner keeps browser binaries and
// per-run profiles.
const HomeEnv = "PORTAL_RUNNER_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// homeSources are tried in order; the first non-empty answer wins.
var homeSources = []func() string{
	func() string { return os.Getenv(HomeEnv) },
	installedHome,
	cacheHome,
	func() string { cwd, _ := os.Getwd(); return cwd },
}

// GetHome returns the directory holding drivers/ and profiles/. It is
// resolved once per process: $PORTAL_RUNNER_HOME, then an install prefix
// (binary under <prefix>/bin), then <user cache>/portal-runner, then the
// working directory.
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = "."
		for _, source := range homeSources {
			if dir := source(); dir != "" {
				homeDir = dir
				break
			}
		}
	})
	return homeDir
}

// GetProfilesDir is the parent of the throwaway browser profiles, one
// subdirectory per run.
func GetProfilesDir() string {
	return filepath.Join(GetHome(), "profiles")
}

// GetDriversDir is where `portal-runner install` puts the named driver.
func GetDriversDir(name string) string {
	return filepath.Join(GetHome(), "drivers", name)
}

func installedHome() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return prefixOf(exe)
}

// prefixOf returns <prefix> for a binary at <prefix>/bin/<name>.
func prefixOf(exe string) string {
	dir := filepath.Dir(exe)
	if filepath.Base(dir) != "bin" {
		return ""
	}
	return filepath.Dir(dir)
}

func cacheHome() string {
	cache, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(cache, "portal-runner")
}

// ResetHome forgets the resolved home so tests can change the environment.
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
