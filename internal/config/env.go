package config

import "os"

// Environment variable names recognized by flowforge.
const (
	// EnvRegistryPath overrides the pi-local registry base directory.
	EnvRegistryPath = "FLOWFORGE_REGISTRY_PATH"

	// EnvProjectsPath is the projects base on the local device.
	EnvProjectsPath = "FORGE_PROJECTS_PATH"

	// EnvMacProjectsPath is the projects base on the workstation.
	EnvMacProjectsPath = "FORGE_MAC_PROJECTS_PATH"

	// EnvMacHost is the ssh destination for the workstation.
	EnvMacHost = "FORGE_MAC_HOST"
)

// DefaultRegistryBase is used when EnvRegistryPath is unset.
const DefaultRegistryBase = "/var/flowforge/registries"

// RegistryBase returns the pi-local registry base directory.
func RegistryBase() string {
	if v := os.Getenv(EnvRegistryPath); v != "" {
		return v
	}
	return DefaultRegistryBase
}

// ProjectsPath returns the local projects base, or "" when unset.
func ProjectsPath() string {
	return os.Getenv(EnvProjectsPath)
}

// MacProjectsPath returns the workstation projects base, or "" when unset.
func MacProjectsPath() string {
	return os.Getenv(EnvMacProjectsPath)
}

// MacHost returns the workstation ssh destination, or "" when unset.
func MacHost() string {
	return os.Getenv(EnvMacHost)
}
