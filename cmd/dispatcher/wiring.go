// cmd/dispatcher/wiring.go
package main

import (
	"context"
	"fmt"

	"github.com/tendant/odm-dispatcher/internal/config"
	"github.com/tendant/odm-dispatcher/internal/dispatch"
	"github.com/tendant/odm-dispatcher/internal/lock"
	"github.com/tendant/odm-dispatcher/internal/orchestrator"
	"github.com/tendant/odm-dispatcher/internal/upload"
)

type storeSet struct {
	results upload.Store
	// source is nil when the backend cannot read inbound blobs.
	source upload.Source
}

// Every results backend can also read inbound blobs from its own account.
type sourceStore interface {
	upload.Store
	upload.Source
}

func openStores(ctx context.Context, cfg *config.Config) (storeSet, error) {
	var store sourceStore
	switch cfg.ResultsBackend {
	case "azblob":
		s, err := upload.NewAzureBlobStore(cfg.ConnectionString, cfg.ResultsContainer)
		if err != nil {
			return storeSet{}, err
		}
		store = s
	case "s3":
		s, err := upload.NewS3Store(ctx, upload.S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			return storeSet{}, err
		}
		store = s
	case "memory":
		store = upload.NewMemoryStore()
	default:
		return storeSet{}, fmt.Errorf("unknown results backend %q", cfg.ResultsBackend)
	}
	return storeSet{results: store, source: store}, nil
}

func openLocker(cfg *config.Config) (lock.Locker, func(), error) {
	switch cfg.LockBackend {
	case "", "none":
		return lock.Noop{}, func() {}, nil
	case "local":
		return lock.NewLocal(), func() {}, nil
	case "etcd":
		client, err := lock.NewEtcdClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
		if err != nil {
			return nil, nil, err
		}
		return lock.NewEtcd(client), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

func dispatchOptions(cfg *config.Config) dispatch.Options {
	return dispatch.Options{
		Job: dispatch.JobTemplate{
			Image:         cfg.JobImage,
			CPU:           cfg.JobCPU,
			MemoryGB:      cfg.JobMemoryGB,
			RestartPolicy: "Never",
			CommandLine:   cfg.JobCommand,
			Registry: orchestrator.RegistryAuth{
				Server:   cfg.RegistryServer,
				Username: cfg.RegistryUsername,
				Password: cfg.RegistryPassword,
			},
			Volume: orchestrator.FileVolume{
				AccountName: cfg.StorageAccount,
				AccountKey:  cfg.StorageKey,
				ShareName:   cfg.ShareName,
				MountPath:   cfg.JobMountPath,
			},
		},
		OutputDir:          cfg.OutputDir,
		PollInterval:       cfg.PollInterval,
		Timeout:            cfg.JobTimeout,
		MaxQueryErrors:     cfg.MaxQueryErrors,
		ValidateInput:      cfg.InputValidation,
		TerminateOnTimeout: cfg.TerminateOnTimeout,
		ResultSubject:      cfg.ResultSubject,
	}
}
