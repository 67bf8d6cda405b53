// Package storage keeps built magic tables in a local database so consumers
// can load them at start-up.
package storage

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "taflmagic"

// TableFileExt is the suffix of table files written to the table directory.
// The .zst part makes tablefile compress them.
const TableFileExt = ".json.zst"

// GetDataDir returns the per-user data directory, creating it if needed:
// $XDG_DATA_HOME/taflmagic (default ~/.local/share) on Unix,
// ~/Library/Application Support/taflmagic on macOS and %APPDATA%\taflmagic
// on Windows.
func GetDataDir() (string, error) {
	base, err := dataHome()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(base, appName))
}

func dataHome() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		return underHome("Library", "Application Support")
	case "windows":
		if dir := os.Getenv("APPDATA"); dir != "" {
			return dir, nil
		}
		return underHome("AppData", "Roaming")
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir, nil
	}
	return underHome(".local", "share")
}

func underHome(elem ...string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home}, elem...)...), nil
}

// GetTableDir returns the directory for exported table files.
func GetTableDir() (string, error) {
	return subDir("tables")
}

// TableFile returns the path of the table file called name in the table
// directory.
func TableFile(name string) (string, error) {
	dir, err := GetTableDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+TableFileExt), nil
}

// GetDatabaseDir returns the directory for storing the BadgerDB database.
func GetDatabaseDir() (string, error) {
	return subDir("db")
}

func subDir(name string) (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(dataDir, name))
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
