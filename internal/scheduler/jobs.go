package scheduler

import (
	"context"
	"time"

	"wheelhouse/internal/backup"
	"wheelhouse/internal/modules/prices"
	"wheelhouse/internal/modules/snapshots"
)

// PriceRefreshJob refreshes underlying prices for every account
type PriceRefreshJob struct {
	prices *prices.Service
}

// NewPriceRefreshJob creates the price refresh job
func NewPriceRefreshJob(pricesSvc *prices.Service) *PriceRefreshJob {
	return &PriceRefreshJob{prices: pricesSvc}
}

// Name returns the job name
func (j *PriceRefreshJob) Name() string { return "price_refresh" }

// Run refreshes all prices
func (j *PriceRefreshJob) Run() error {
	_, err := j.prices.RefreshAll()
	return err
}

// SnapshotJob stores a wheel snapshot per account
type SnapshotJob struct {
	snapshots *snapshots.Service
}

// NewSnapshotJob creates the snapshot job
func NewSnapshotJob(snapshotsSvc *snapshots.Service) *SnapshotJob {
	return &SnapshotJob{snapshots: snapshotsSvc}
}

// Name returns the job name
func (j *SnapshotJob) Name() string { return "wheel_snapshot" }

// Run snapshots all accounts
func (j *SnapshotJob) Run() error {
	return j.snapshots.TakeAll()
}

// BackupJob uploads a database backup
type BackupJob struct {
	backup *backup.Service
}

// NewBackupJob creates the backup job
func NewBackupJob(backupSvc *backup.Service) *BackupJob {
	return &BackupJob{backup: backupSvc}
}

// Name returns the job name
func (j *BackupJob) Name() string { return "database_backup" }

// Run creates and uploads a backup
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	return j.backup.Run(ctx)
}
