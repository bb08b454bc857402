package app

import (
	"fmt"
	"strings"

	"github.com/NotARoomba/canvas/internal/data/repos"
	"github.com/NotARoomba/canvas/internal/platform/gcp"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/services"
)

var (
	resolveObjectStorageConfig = gcp.ResolveObjectStorageConfigFromEnv
	newBucketServiceWithConfig = gcp.NewBucketServiceWithConfig
)

type StorageBootstrapErrorCode string

const (
	StorageBootstrapErrorInvalidMode   StorageBootstrapErrorCode = "invalid_mode"
	StorageBootstrapErrorInvalidConfig StorageBootstrapErrorCode = "invalid_config"
	StorageBootstrapErrorConnectFailed StorageBootstrapErrorCode = "connect_failed"
)

type StorageBootstrapError struct {
	Code  StorageBootstrapErrorCode
	Mode  string
	Cause error
}

func (e *StorageBootstrapError) Error() string {
	if e == nil {
		return "asset storage bootstrap failed"
	}
	return fmt.Sprintf("asset storage bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *StorageBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

/*
resolveAssetService picks where generated images and narration audio live.
"db" keeps bytes inline and needs nothing else; "gcs" resolves the bucket from
the environment (real GCS or the emulator) and fails startup if it cannot.
*/
func resolveAssetService(log *logger.Logger, cfg Config, assets repos.AssetRepo) (services.AssetService, gcp.BucketService, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.AssetStorage))
	if mode == "" {
		mode = services.AssetStorageDB
	}
	switch mode {
	case services.AssetStorageDB:
		log.Info("Selecting asset storage", "mode", mode)
		svc, err := services.NewAssetService(log, assets, nil, mode)
		return svc, nil, err
	case services.AssetStorageGCS:
	default:
		err := &StorageBootstrapError{
			Code:  StorageBootstrapErrorInvalidMode,
			Mode:  mode,
			Cause: fmt.Errorf("unsupported ASSET_STORAGE %q", mode),
		}
		log.Error("Asset storage selection failed", "mode", mode, "error_code", err.Code, "error", err)
		return nil, nil, err
	}

	storageCfg, err := resolveObjectStorageConfig()
	if err != nil {
		bootErr := &StorageBootstrapError{Code: StorageBootstrapErrorInvalidConfig, Mode: mode, Cause: err}
		log.Error("Asset storage config invalid", "mode", mode, "error_code", bootErr.Code, "error", err)
		return nil, nil, bootErr
	}
	log.Info("Selecting asset storage",
		"mode", mode,
		"object_storage_mode", storageCfg.Mode,
		"emulator_host", storageCfg.EmulatorHost,
		"bucket", storageCfg.BucketName,
	)
	bucket, err := newBucketServiceWithConfig(log, storageCfg)
	if err != nil {
		bootErr := &StorageBootstrapError{Code: StorageBootstrapErrorConnectFailed, Mode: mode, Cause: err}
		log.Error("Asset storage bootstrap failed", "mode", mode, "error_code", bootErr.Code, "error", err)
		return nil, nil, bootErr
	}
	svc, err := services.NewAssetService(log, assets, bucket, mode)
	if err != nil {
		return nil, nil, err
	}
	return svc, bucket, nil
}
