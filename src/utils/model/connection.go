package model

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dao-forum/reconciler/src/utils/build_info"
	"github.com/dao-forum/reconciler/src/utils/config"
	l "github.com/dao-forum/reconciler/src/utils/logger"
	"github.com/dao-forum/reconciler/src/utils/model/sql_migrations"

	"github.com/glebarez/sqlite"
	migrate "github.com/rubenv/sql-migrate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func gormConfig() *gorm.Config {
	log := l.NewSublogger("db")

	return &gorm.Config{
		Logger: logger.New(log,
			logger.Config{
				SlowThreshold:             500 * time.Millisecond, // Slow SQL threshold
				LogLevel:                  logger.Error,           // Log level
				IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
				Colorful:                  false,                  // Disable color
			},
		),
		// Unique violations become gorm.ErrDuplicatedKey
		TranslateError: true,
	}
}

func postgresDsn(dbConfig *config.Database, username, password, applicationName string) (dsn string, cleanup func(), err error) {
	log := l.NewSublogger("db")
	cleanup = func() {}

	dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=%s/dao-reconciler/%s",
		dbConfig.Host,
		dbConfig.Port,
		username,
		password,
		dbConfig.Name,
		dbConfig.SslMode,
		applicationName,
		build_info.Version,
	)

	if dbConfig.ClientKey == "" || dbConfig.ClientCert == "" || dbConfig.CaCert == "" {
		return
	}

	log.Info("Using SSL certificates from variables")

	var files []string
	cleanup = func() {
		for _, f := range files {
			os.Remove(f)
		}
	}

	write := func(pattern, content string) (name string, err error) {
		f, err := os.CreateTemp("", pattern)
		if err != nil {
			return
		}
		defer f.Close()
		files = append(files, f.Name())
		_, err = f.WriteString(content)
		return f.Name(), err
	}

	keyFile, err := write("key.pem", dbConfig.ClientKey)
	if err != nil {
		return
	}
	certFile, err := write("cert.pem", dbConfig.ClientCert)
	if err != nil {
		return
	}
	caFile, err := write("ca.pem", dbConfig.CaCert)
	if err != nil {
		return
	}

	dsn += fmt.Sprintf(" sslcert=%s sslkey=%s sslrootcert=%s", certFile, keyFile, caFile)
	return
}

func Connect(ctx context.Context, dbConfig *config.Database, username, password, applicationName string) (self *gorm.DB, err error) {
	switch dbConfig.Driver {
	case config.DatabaseDriverSqlite:
		self, err = gorm.Open(sqlite.Open(dbConfig.SqlitePath), gormConfig())
		if err != nil {
			return
		}

		db, dbErr := self.DB()
		if dbErr != nil {
			return nil, dbErr
		}

		// Single writer; also keeps an in-memory database alive across queries
		db.SetMaxOpenConns(1)
	case config.DatabaseDriverPostgres, "":
		dsn, cleanup, dsnErr := postgresDsn(dbConfig, username, password, applicationName)
		defer cleanup()
		if dsnErr != nil {
			return nil, dsnErr
		}

		self, err = gorm.Open(postgres.Open(dsn), gormConfig())
		if err != nil {
			return
		}

		db, dbErr := self.DB()
		if dbErr != nil {
			return nil, dbErr
		}

		db.SetMaxOpenConns(dbConfig.MaxOpenConns)
		db.SetMaxIdleConns(dbConfig.MaxIdleConns)
		db.SetConnMaxIdleTime(dbConfig.ConnMaxIdleTime)
		db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", dbConfig.Driver)
	}

	err = ping(ctx, dbConfig, self)
	if err != nil {
		return
	}

	return
}

// Opens the database and brings the schema up to date
func NewConnection(ctx context.Context, conf *config.Config, applicationName string) (self *gorm.DB, err error) {
	if conf.Database.Driver == config.DatabaseDriverSqlite {
		self, err = Connect(ctx, &conf.Database, "", "", applicationName)
		if err != nil {
			return
		}
		err = self.WithContext(ctx).AutoMigrate(All()...)
		return
	}

	err = Migrate(ctx, conf)
	if err != nil {
		return
	}

	return Connect(ctx, &conf.Database, conf.Database.User, conf.Database.Password, applicationName)
}

func Migrate(ctx context.Context, conf *config.Config) (err error) {
	log := l.NewSublogger("db-migrate")

	if conf.Database.MigrationUser == "" || conf.Database.MigrationPassword == "" {
		log.Info("Migration user not set, skipping migrations")
		return
	}

	// Run migrations
	migrations := &migrate.HttpFileSystemMigrationSource{
		FileSystem: http.FS(sql_migrations.FS),
	}

	// Use special migration user
	self, err := Connect(ctx, &conf.Database, conf.Database.MigrationUser, conf.Database.MigrationPassword, "migration")
	if err != nil {
		return
	}

	db, err := self.DB()
	if err != nil {
		return
	}
	defer db.Close()

	n, err := migrate.Exec(db, "postgres", migrations, migrate.Up)
	if err != nil {
		return
	}

	log.WithField("num", n).Info("Applied migrations")

	conf.Database.MigrationUser = ""
	conf.Database.MigrationPassword = ""

	return
}

func ping(ctx context.Context, dbConfig *config.Database, db *gorm.DB) (err error) {
	if dbConfig.PingTimeout < 0 {
		// Ping disabled
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, dbConfig.PingTimeout)
	defer cancel()

	return sqlDB.PingContext(dbCtx)
}
