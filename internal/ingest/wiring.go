package ingest

import (
	"context"
	"log/slog"

	"hopper/internal/ack"
	"hopper/internal/config"
	"hopper/internal/outcome"
	"hopper/internal/relocate"
	"hopper/internal/session"
	"hopper/internal/stability"
)

// Dependencies are the collaborators NewFromConfig cannot build itself.
type Dependencies struct {
	Transports session.TransportFactory
	Reporter   Reporter
	Journal    Journal
	// Classifier overrides the default acknowledgment parser.
	Classifier ack.Classifier
	Logger     *slog.Logger
}

// NewFromConfig builds a Controller with a session runner, stability
// detector and relocator configured from cfg.
func NewFromConfig(cfg *config.Config, deps Dependencies) (*Controller, error) {
	classifier := deps.Classifier
	if classifier == nil {
		classifier = ack.JSONClassifier{URLFilter: cfg.Remote.ResponseURLFilter}
	}

	// The runner reports state changes to the controller, so it is bound
	// after the controller exists.
	var runner *session.Runner
	upload := func(ctx context.Context, path string) outcome.Outcome {
		return runner.Run(ctx, path)
	}
	ctrl, err := New(Options{
		Extensions:  cfg.Ingest.Extensions,
		UploadedDir: cfg.UploadedDir(),
		Policy: stability.Policy{
			PollInterval:           cfg.PollInterval(),
			RequiredStableReadings: cfg.Stability.RequiredStableReadings,
			Timeout:                cfg.StabilityTimeout(),
		},
		Stabilizer: &stability.Detector{Logger: deps.Logger},
		Uploader:   uploaderFunc(upload),
		Relocator:  &relocate.Relocator{},
		Reporter:   deps.Reporter,
		Journal:    deps.Journal,
		Logger:     deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	runner, err = session.NewRunner(session.Options{
		Credentials: session.Credentials{
			Username: cfg.Remote.Username,
			Password: cfg.Remote.Password,
		},
		InitiationTimeout: cfg.InitiationTimeout(),
		CompletionTimeout: cfg.CompletionTimeout(),
		Classifier:        classifier,
		Transports:        deps.Transports,
		Logger:            deps.Logger,
		OnState:           ctrl.TrackState,
	})
	if err != nil {
		return nil, err
	}
	return ctrl, nil
}

type uploaderFunc func(ctx context.Context, path string) outcome.Outcome

func (f uploaderFunc) Run(ctx context.Context, path string) outcome.Outcome { return f(ctx, path) }
