// Package provider implements the external flag-provider interface against a
// local YAML file. Deployments apply synchronously and are tracked in memory,
// which is enough for single-operator use and for exercising the rollout
// controller end to end without a vendor flag service.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"cutover/internal/domain"
)

// flagFile is the on-disk flag document.
type flagFile struct {
	IngestionEnabled  bool `yaml:"ingestion_enabled"`
	QueryEnabled      bool `yaml:"query_enabled"`
	TrafficPercentage int  `yaml:"traffic_percentage"`
	Version           int  `yaml:"version"`
}

// FileProvider is a domain.ConfigProvider backed by one YAML file. Safe for
// concurrent use within a single process.
type FileProvider struct {
	path   string
	logger *slog.Logger

	mu          sync.Mutex
	deployments map[string]domain.DeploymentState
}

var _ domain.ConfigProvider = (*FileProvider)(nil)

// NewFileProvider creates a provider reading and writing the given path. The
// file is created with safe defaults on first deploy if it does not exist.
func NewFileProvider(path string, logger *slog.Logger) *FileProvider {
	return &FileProvider{
		path:        path,
		logger:      logger,
		deployments: make(map[string]domain.DeploymentState),
	}
}

// GetConfiguration reads the current flag document. A missing file yields the
// initial state: ingestion on, queries off at 0%.
func (p *FileProvider) GetConfiguration(ctx context.Context) (*domain.ConfigurationSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := p.load()
	if err != nil {
		return nil, err
	}
	return &domain.ConfigurationSnapshot{
		IngestionEnabled:  f.IngestionEnabled,
		QueryEnabled:      f.QueryEnabled,
		TrafficPercentage: f.TrafficPercentage,
		Version:           strconv.Itoa(f.Version),
		FetchedAt:         time.Now(),
	}, nil
}

// Deploy applies the change, bumps the version, and records a completed
// deployment. The write is atomic (temp file + rename).
func (p *FileProvider) Deploy(ctx context.Context, change domain.FlagChange) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := p.load()
	if err != nil {
		return "", err
	}
	if change.IngestionEnabled != nil {
		f.IngestionEnabled = *change.IngestionEnabled
	}
	if change.QueryEnabled != nil {
		f.QueryEnabled = *change.QueryEnabled
	}
	if change.TrafficPercentage != nil {
		pct := *change.TrafficPercentage
		if pct < 0 || pct > 100 {
			return "", domain.ErrValidation("traffic percentage must be in [0,100], got %d", pct)
		}
		f.TrafficPercentage = pct
	}
	f.Version++

	id := uuid.NewString()
	if err := p.store(f); err != nil {
		p.deployments[id] = domain.DeploymentFailed
		return id, fmt.Errorf("write flag file: %w", err)
	}
	p.deployments[id] = domain.DeploymentComplete

	p.logger.Info("deployed flag change",
		"deployment_id", id,
		"version", f.Version,
		"description", change.Description,
	)
	return id, nil
}

// GetDeploymentStatus reports the terminal state of a recorded deployment.
func (p *FileProvider) GetDeploymentStatus(ctx context.Context, deploymentID string) (domain.DeploymentState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.deployments[deploymentID]
	if !ok {
		return "", domain.ErrNotFound("deployment %s not found", deploymentID)
	}
	return state, nil
}

// StopDeployment marks an in-progress deployment rolled back. File deploys
// apply synchronously, so this only matters for deployments that failed to
// record.
func (p *FileProvider) StopDeployment(ctx context.Context, deploymentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.deployments[deploymentID]
	if !ok {
		return domain.ErrNotFound("deployment %s not found", deploymentID)
	}
	if state == domain.DeploymentInProgress {
		p.deployments[deploymentID] = domain.DeploymentRolledBack
	}
	return nil
}

// load reads the flag file; callers hold p.mu.
func (p *FileProvider) load() (*flagFile, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return &flagFile{IngestionEnabled: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read flag file %s: %w", p.path, err)
	}
	var f flagFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse flag file %s: %w", p.path, err)
	}
	return &f, nil
}

// store writes the flag file atomically; callers hold p.mu.
func (p *FileProvider) store(f *flagFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(p.path), fmt.Sprintf(".%s.tmp", filepath.Base(p.path)))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}
