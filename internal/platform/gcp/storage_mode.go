package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/NotARoomba/canvas/internal/platform/envutil"
)

type ObjectStorageMode string

const (
	ObjectStorageModeGCS         ObjectStorageMode = "gcs"
	ObjectStorageModeGCSEmulator ObjectStorageMode = "gcs_emulator"
)

type ObjectStorageConfig struct {
	Mode         ObjectStorageMode
	EmulatorHost string
	BucketName   string
}

func (cfg ObjectStorageConfig) IsEmulatorMode() bool {
	return cfg.Mode == ObjectStorageModeGCSEmulator
}

// ResolveObjectStorageConfigFromEnv reads OBJECT_STORAGE_MODE,
// STORAGE_EMULATOR_HOST and ASSET_GCS_BUCKET_NAME. An unset mode with an
// emulator host configured selects the emulator.
func ResolveObjectStorageConfigFromEnv() (ObjectStorageConfig, error) {
	cfg := ObjectStorageConfig{
		EmulatorHost: envutil.String("STORAGE_EMULATOR_HOST", ""),
		BucketName:   envutil.String("ASSET_GCS_BUCKET_NAME", ""),
	}
	switch mode := ObjectStorageMode(strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", ""))); mode {
	case "":
		cfg.Mode = ObjectStorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = ObjectStorageModeGCSEmulator
		}
	case ObjectStorageModeGCS, ObjectStorageModeGCSEmulator:
		cfg.Mode = mode
	default:
		return cfg, fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", mode, ObjectStorageModeGCS, ObjectStorageModeGCSEmulator)
	}
	return cfg, ValidateObjectStorageConfig(cfg)
}

func ValidateObjectStorageConfig(cfg ObjectStorageConfig) error {
	if strings.TrimSpace(cfg.BucketName) == "" {
		return fmt.Errorf("missing env var ASSET_GCS_BUCKET_NAME")
	}
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		return nil
	case ObjectStorageModeGCSEmulator:
		u, err := url.Parse(cfg.EmulatorHost)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", cfg.EmulatorHost)
		}
		return nil
	default:
		return fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q", cfg.Mode)
	}
}
