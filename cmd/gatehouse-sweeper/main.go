package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/quota"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
)

// lockTTL bounds how long a crashed sweeper blocks the next run
const lockTTL = 30 * time.Minute

func main() {
	quotaSchedule := flag.String("quota-schedule", "@hourly", "Cron schedule for rolling expired quota periods")
	grantSchedule := flag.String("grant-schedule", "@every 10m", "Cron schedule for purging expired grants")
	auditSchedule := flag.String("audit-schedule", "@daily", "Cron schedule for audit retention")
	runOnce := flag.Bool("run-once", false, "Run every job once and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	connMgr, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer connMgr.Close()
	db := connMgr.Primary()

	sweeper := &sweeper{
		cfg:    cfg,
		grants: rbac.NewPostgresStore(db),
	}

	// Quota periods roll on the same ledger the server consumes from
	if cfg.Redis.Enabled() {
		redisClient, err := postgres.NewRedisClient(postgres.RedisOptions{
			URL:        cfg.Redis.URL,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
			PoolSize:   cfg.Redis.PoolSize,
		})
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		sweeper.ledger = quota.NewRedisLedger(redisClient.Client(), cfg.Redis.KeyPrefix)
		sweeper.lock = redisClient
	} else {
		sweeper.ledger = quota.NewPostgresLedger(db)
	}

	if cfg.Audit.Sink == "postgres" {
		store, err := buildAuditStore(db, cfg.Audit)
		if err != nil {
			log.Fatalf("Failed to initialize audit retention: %v", err)
		}
		sweeper.audit = store
	}

	if *runOnce {
		ctx := context.Background()
		sweeper.rollQuotaPeriods(ctx)
		sweeper.purgeExpiredGrants(ctx)
		sweeper.sweepAuditTrail(ctx)
		return
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(*quotaSchedule, func() {
		sweeper.rollQuotaPeriods(context.Background())
	}); err != nil {
		log.Fatalf("Invalid quota schedule %q: %v", *quotaSchedule, err)
	}
	if _, err := scheduler.AddFunc(*grantSchedule, func() {
		sweeper.purgeExpiredGrants(context.Background())
	}); err != nil {
		log.Fatalf("Invalid grant schedule %q: %v", *grantSchedule, err)
	}
	if sweeper.audit != nil {
		if _, err := scheduler.AddFunc(*auditSchedule, func() {
			sweeper.sweepAuditTrail(context.Background())
		}); err != nil {
			log.Fatalf("Invalid audit schedule %q: %v", *auditSchedule, err)
		}
	}

	scheduler.Start()
	log.Printf("Sweeper started (quota %q, grants %q, audit %q)", *quotaSchedule, *grantSchedule, *auditSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down sweeper")
	<-scheduler.Stop().Done()
}

// runLock serializes sweep runs across replicas. Nil when Redis is not
// configured, in which case single-replica deployment is assumed.
type runLock interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

type sweeper struct {
	cfg    *config.Config
	ledger quota.Ledger
	grants *rbac.PostgresStore
	audit  *audit.DBStore
	lock   runLock
}

// withLock runs fn under the named distributed lock when one is available
func (s *sweeper) withLock(ctx context.Context, name string, fn func(context.Context)) {
	if s.lock != nil {
		acquired, err := s.lock.AcquireLock(ctx, name, lockTTL)
		if err != nil {
			log.Printf("Failed to acquire %s lock: %v", name, err)
			return
		}
		if !acquired {
			log.Printf("Skipping %s: another replica holds the lock", name)
			return
		}
		defer func() {
			if err := s.lock.ReleaseLock(ctx, name); err != nil {
				log.Printf("Failed to release %s lock: %v", name, err)
			}
		}()
	}
	fn(ctx)
}

func (s *sweeper) rollQuotaPeriods(ctx context.Context) {
	s.withLock(ctx, "sweep:quota", func(ctx context.Context) {
		rolled, err := s.ledger.RollExpiredPeriods(ctx, time.Now())
		if err != nil {
			log.Printf("Quota period roll failed: %v", err)
			return
		}
		if rolled > 0 {
			log.Printf("Rolled %d expired quota periods", rolled)
		}
	})
}

func (s *sweeper) purgeExpiredGrants(ctx context.Context) {
	s.withLock(ctx, "sweep:grants", func(ctx context.Context) {
		removed, err := s.grants.CleanupExpiredGrants(ctx, time.Now())
		if err != nil {
			log.Printf("Grant purge failed: %v", err)
			return
		}
		if removed > 0 {
			log.Printf("Purged %d expired grants", removed)
		}
	})
}

func (s *sweeper) sweepAuditTrail(ctx context.Context) {
	if s.audit == nil {
		return
	}
	s.withLock(ctx, "sweep:audit", func(ctx context.Context) {
		policy := retentionPolicy(s.cfg.Audit)
		deleted, err := s.audit.Cleanup(ctx, policy)
		if err != nil {
			log.Printf("Audit retention sweep failed: %v", err)
			return
		}
		if deleted > 0 {
			log.Printf("Removed %d audit events past retention", deleted)
		}
	})
}

// buildAuditStore wires the Postgres audit store, with an S3 archiver when
// a bucket is configured
func buildAuditStore(db *sql.DB, auditCfg config.AuditConfig) (*audit.DBStore, error) {
	dbLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return nil, err
	}
	store := audit.NewDBStore(dbLogger)

	if auditCfg.S3Bucket != "" {
		client, err := buildS3Client(auditCfg)
		if err != nil {
			return nil, err
		}
		archiver, err := audit.NewS3Archiver(client, retentionPolicy(auditCfg))
		if err != nil {
			return nil, err
		}
		store.SetArchiver(archiver)
	}

	return store, nil
}

func buildS3Client(auditCfg config.AuditConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(auditCfg.S3Region),
	}
	if auditCfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(auditCfg.S3AccessKey, auditCfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoint supports MinIO and localstack deployments
		if auditCfg.S3Endpoint != "" {
			o.BaseEndpoint = &auditCfg.S3Endpoint
			o.UsePathStyle = true
		}
	}), nil
}

func retentionPolicy(auditCfg config.AuditConfig) audit.RetentionPolicy {
	return audit.RetentionPolicy{
		RetentionDays:   auditCfg.RetentionDays,
		ArchiveEnabled:  auditCfg.S3Bucket != "",
		ArchiveBucket:   auditCfg.S3Bucket,
		ArchivePrefix:   auditCfg.S3Prefix,
		CompressArchive: auditCfg.Compress,
	}
}
