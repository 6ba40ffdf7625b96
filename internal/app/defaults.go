package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - RFI_CONFIG_PATH: config file location (default: ~/.config/rfi.toml)
//   - RFI_HOME: base directory for rfi data (default: ~/.local/share/rfi)
//   - CARGO_HOME: cargo home whose registry is pruned (default: ~/.cargo)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	registryDir, err := getRegistryDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path":  configPath,
		"base_dir":     baseDir,
		"registry_dir": registryDir,
	}, nil
}

// getConfigPath returns the config file path, checking RFI_CONFIG_PATH env var first,
// then falling back to the default ~/.config/rfi.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("RFI_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "rfi.toml"), nil
}

// getBaseDir returns the base directory for rfi data, checking RFI_HOME env var first,
// then falling back to the XDG default ~/.local/share/rfi.
func getBaseDir() (string, error) {
	if path := os.Getenv("RFI_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "rfi"), nil
}

// getRegistryDir returns the package registry below CARGO_HOME, or below
// ~/.cargo when it is unset. In the usual root-owned CI image this is
// /root/.cargo/registry.
func getRegistryDir() (string, error) {
	if home := os.Getenv("CARGO_HOME"); home != "" {
		return filepath.Join(home, "registry"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cargo", "registry"), nil
}
