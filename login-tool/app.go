package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/mesmerverse/vettid-dev/loginkit/authclient"
	"github.com/mesmerverse/vettid-dev/loginkit/login"
	"github.com/mesmerverse/vettid-dev/loginkit/notify"
	"github.com/mesmerverse/vettid-dev/loginkit/pin2"
	"github.com/mesmerverse/vettid-dev/loginkit/stash"
)

// app is the wiring shared by every command.
type app struct {
	client  *login.Client
	stashes *stash.Store
	closers []func()
}

func newApp(ctx context.Context, cfg *Config) (*app, error) {
	a := &app{}

	disk, err := a.openDisk(ctx, cfg.Stash)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Stash.Encryption.Enabled() {
		source, err := cfg.Stash.Encryption.Build(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to set up stash encryption: %w", err)
		}
		disk = stash.NewEncryptedDisk(disk, source)
	}
	a.stashes = stash.NewStore(disk, cfg.Stash.Key)

	var opts []login.Option
	if cfg.NATS.URL != "" {
		n, err := notify.Connect(cfg.NATS)
		if err != nil {
			// events are best effort
			log.Warn().Err(err).Msg("Continuing without login events")
		} else {
			a.closers = append(a.closers, n.Close)
			opts = append(opts, login.WithNotifier(n))
		}
	}

	a.client = login.NewClient(authclient.New(cfg.Server), a.stashes, opts...)
	return a, nil
}

func (a *app) openDisk(ctx context.Context, cfg StashConfig) (stash.Disk, error) {
	switch cfg.Backend {
	case "bolt":
		disk, err := stash.NewBoltDisk(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { disk.Close() })
		return disk, nil
	case "s3":
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return stash.NewS3Disk(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
	default:
		disk, err := stash.NewFileDisk(cfg.Path)
		if err != nil {
			return nil, err
		}
		return disk, nil
	}
}

// unlock recovers the login tree for appID with a PIN.
func (a *app) unlock(ctx context.Context, appID, username, pin string, opts login.LoginOptions) (*login.LoginTree, error) {
	stashTree, err := a.stashes.Load(ctx)
	if err != nil {
		return nil, err
	}
	if stashTree == nil {
		return nil, login.ErrStashNotFound
	}
	return pin2.Login(ctx, a.client, stashTree, appID, username, pin, opts)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
