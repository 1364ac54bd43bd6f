package repository_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/aggregator/internal/adapters/repository"
	"github.com/okian/aggregator/internal/domain/dedupe"
	"github.com/okian/aggregator/internal/domain/dedupe/dedupetest"
	"github.com/okian/aggregator/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestSQLiteStoreContract(t *testing.T) {
	dedupetest.Run(t, "sqlite", func(t *testing.T) dedupe.Store {
		s, err := repository.NewSQLiteStore(context.Background(),
			repository.WithSQLitePath(filepath.Join(t.TempDir(), "dedup.db")),
		)
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return s
	})
}

func TestRedisStoreContract(t *testing.T) {
	dedupetest.Run(t, "redis", func(t *testing.T) dedupe.Store {
		mr := miniredis.RunT(t)
		s, err := repository.NewRedisStore(context.Background(),
			repository.WithRedisAddr(mr.Addr()),
			repository.WithRedisPrefix("test"),
		)
		if err != nil {
			t.Fatalf("open redis: %v", err)
		}
		return s
	})
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("AGGREGATOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AGGREGATOR_TEST_POSTGRES_DSN not set")
	}
	dedupetest.Run(t, "postgres", func(t *testing.T) dedupe.Store {
		ctx := context.Background()
		s, err := repository.NewPostgresStore(ctx, repository.WithPostgresDSN(dsn))
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		// Each scenario starts from an empty table.
		recs, err := s.ListByTopic(ctx, "")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(recs) > 0 {
			t.Fatalf("postgres test database must start empty, found %d records", len(recs))
		}
		return s
	})
}

func TestSQLiteDurability(t *testing.T) {
	ctx := context.Background()

	Convey("Given a sqlite file with an accepted record", t, func() {
		path := filepath.Join(t.TempDir(), "nested", "dir", "dedup.db")
		first, err := repository.NewSQLiteStore(ctx, repository.WithSQLitePath(path))
		So(err, ShouldBeNil)
		added, err := first.AddIfNew(ctx, dedupetest.Record("t1", "id-1", 0))
		So(err, ShouldBeNil)
		So(added, ShouldBeTrue)
		So(first.Close(), ShouldBeNil)

		Convey("When the file is reopened by a new store", func() {
			second, err := repository.NewSQLiteStore(ctx,
				repository.WithSQLitePath(path),
				repository.WithBusyTimeout(time.Second),
				repository.WithMaxOpenConns(2),
			)
			So(err, ShouldBeNil)
			Reset(func() { _ = second.Close() })

			Convey("Then the same key should be rejected as a duplicate", func() {
				added, err := second.AddIfNew(ctx, dedupetest.Record("t1", "id-1", time.Minute))
				So(err, ShouldBeNil)
				So(added, ShouldBeFalse)

				n, err := second.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})
	})
}

func TestSQLiteClosed(t *testing.T) {
	ctx := context.Background()

	Convey("Given a closed sqlite store", t, func() {
		s, err := repository.NewSQLiteStore(ctx, repository.WithSQLitePath(filepath.Join(t.TempDir(), "x.db")))
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("Then inserts should fail with a store error, not a duplicate", func() {
			added, err := s.AddIfNew(ctx, dedupetest.Record("t", "e", 0))
			So(added, ShouldBeFalse)
			So(errors.Is(err, dedupe.ErrStore), ShouldBeTrue)
		})
	})
}

func TestRedisUnavailable(t *testing.T) {
	Convey("Given a redis server that goes away", t, func() {
		mr := miniredis.RunT(t)
		s, err := repository.NewRedisStore(context.Background(), repository.WithRedisAddr(mr.Addr()))
		So(err, ShouldBeNil)
		Reset(func() { _ = s.Close() })
		mr.Close()

		Convey("Then inserts should fail with a store error", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			added, err := s.AddIfNew(ctx, dedupetest.Record("t", "e", 0))
			So(added, ShouldBeFalse)
			So(errors.Is(err, dedupe.ErrStore), ShouldBeTrue)
		})
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	Convey("Given the store factory", t, func() {
		Convey("When opening the memory driver", func() {
			s, err := repository.Open(ctx, "Memory")
			So(err, ShouldBeNil)
			Reset(func() { _ = s.Close() })

			Convey("Then it should behave as a store", func() {
				added, err := s.AddIfNew(ctx, dedupetest.Record("t", "e", 0))
				So(err, ShouldBeNil)
				So(added, ShouldBeTrue)
				n, err := s.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When opening the default driver", func() {
			s, err := repository.Open(ctx, "", repository.WithSQLitePath(filepath.Join(t.TempDir(), "d.db")))
			So(err, ShouldBeNil)
			Reset(func() { _ = s.Close() })

			Convey("Then it should be backed by sqlite", func() {
				topics, err := s.Topics(ctx)
				So(err, ShouldBeNil)
				So(topics, ShouldBeEmpty)
			})
		})

		Convey("When opening the redis driver", func() {
			mr := miniredis.RunT(t)
			s, err := repository.Open(ctx, repository.DriverRedis, repository.WithRedisAddr(mr.Addr()), repository.WithRedisDB(0))
			So(err, ShouldBeNil)
			Reset(func() { _ = s.Close() })

			Convey("Then records should land in redis", func() {
				_, err := s.AddIfNew(ctx, dedupetest.Record("t", "e", 0))
				So(err, ShouldBeNil)
				So(mr.Exists("aggregator:records:t"), ShouldBeTrue)
			})
		})

		Convey("When postgres is requested without a DSN", func() {
			_, err := repository.Open(ctx, repository.DriverPostgres)

			Convey("Then it should fail fast", func() {
				So(errors.Is(err, repository.ErrMissingDSN), ShouldBeTrue)
			})
		})

		Convey("When the driver is unknown", func() {
			_, err := repository.Open(ctx, "cassandra")

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
			})
		})

		Convey("Then every listed driver should be distinct", func() {
			So(repository.Drivers(), ShouldResemble, []string{"sqlite", "postgres", "redis", "memory"})
		})
	})
}
