package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reachlab/campaign-server-go/internal/model"
	"github.com/reachlab/campaign-server-go/internal/repository"
)

// TokenRefresher is the slice of LinkService the sweep needs.
type TokenRefresher interface {
	OpenCredential(cred *model.ProviderCredential) (*model.ProviderCredential, error)
	RefreshCredential(ctx context.Context, cred *model.ProviderCredential) (*model.ProviderCredential, error)
}

// RefreshJob periodically refreshes provider tokens that are close to
// expiry so linked accounts stay usable without user interaction.
type RefreshJob struct {
	credRepo  repository.CredentialRepository
	refresher TokenRefresher
	interval  time.Duration
	window    time.Duration
	done      chan struct{}
}

func NewRefreshJob(
	credRepo repository.CredentialRepository,
	refresher TokenRefresher,
	interval time.Duration,
	window time.Duration,
) *RefreshJob {
	return &RefreshJob{
		credRepo:  credRepo,
		refresher: refresher,
		interval:  interval,
		window:    window,
		done:      make(chan struct{}),
	}
}

func (j *RefreshJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("window", j.window).Msg("token refresh job started")
}

func (j *RefreshJob) Stop() {
	close(j.done)
	log.Info().Msg("token refresh job stopped")
}

func (j *RefreshJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *RefreshJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	creds, err := j.credRepo.FindExpiring(ctx, j.window)
	if err != nil {
		log.Error().Err(err).Msg("failed to list expiring credentials")
		return
	}
	if len(creds) == 0 {
		return
	}

	refreshed := 0
	for _, cred := range creds {
		if cred.RefreshToken == nil {
			continue
		}

		opened, err := j.refresher.OpenCredential(cred)
		if err != nil {
			log.Error().Err(err).
				Str("platform", cred.Platform).
				Str("platformUserId", cred.PlatformUserID).
				Msg("failed to open credential for refresh")
			continue
		}

		if _, err := j.refresher.RefreshCredential(ctx, opened); err != nil {
			log.Error().Err(err).
				Str("platform", cred.Platform).
				Str("platformUserId", cred.PlatformUserID).
				Msg("failed to refresh credential")
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		log.Info().Int("count", refreshed).Msg("refreshed expiring credentials")
	}
}
