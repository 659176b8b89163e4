package repository_test

import (
	"context"
	"database/sql"
	"log"
	"testing"
	"time"

	"github.com/CzarSimon/httputil/dbutil"
	"github.com/CzarSimon/httputil/id"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rtcheap/session-broker/internal/models"
	"github.com/rtcheap/session-broker/internal/repository"
	"github.com/stretchr/testify/assert"
)

func TestSaveAndFindByUniqueID(t *testing.T) {
	assert := assert.New(t)
	db := createTestDB()
	defer db.Close()
	repo := repository.NewSessionRepository(db)
	ctx := context.Background()

	session := newTestSession(time.Now().UTC())
	err := repo.Save(ctx, session)
	assert.NoError(err)

	stored, err := repo.FindByUniqueID(ctx, session.UniqueID)
	assert.NoError(err)
	assert.Equal(session.ID, stored.ID)
	assert.Equal(models.TypeAdmin, stored.Type)
	assert.Equal(session.UniqueID, stored.UniqueID)
	assert.Equal(session.ShareURL, stored.ShareURL)
	assert.Equal(session.UniqueID, stored.AgoraChannelName)
	assert.True(stored.Active)
	assert.True(session.CreatedAt.Equal(stored.CreatedAt))
	assert.True(session.CreatedAt.Equal(stored.UpdatedAt))

	_, err = repo.FindByUniqueID(ctx, "does-not-exist")
	assert.Equal(repository.ErrNotFound, err)
}

func TestSave_DuplicateUniqueID(t *testing.T) {
	assert := assert.New(t)
	db := createTestDB()
	defer db.Close()
	repo := repository.NewSessionRepository(db)
	ctx := context.Background()

	first := newTestSession(time.Now().UTC())
	err := repo.Save(ctx, first)
	assert.NoError(err)

	second := newTestSession(time.Now().UTC())
	second.UniqueID = first.UniqueID
	err = repo.Save(ctx, second)
	assert.Error(err)
}

func TestSave_InvalidType(t *testing.T) {
	assert := assert.New(t)
	db := createTestDB()
	defer db.Close()
	repo := repository.NewSessionRepository(db)

	session := newTestSession(time.Now().UTC())
	session.Type = "moderator"
	err := repo.Save(context.Background(), session)
	assert.Error(err)
}

func TestFindAll_NewestFirst(t *testing.T) {
	assert := assert.New(t)
	db := createTestDB()
	defer db.Close()
	repo := repository.NewSessionRepository(db)
	ctx := context.Background()

	sessions, err := repo.FindAll(ctx)
	assert.NoError(err)
	assert.Len(sessions, 0)

	now := time.Now().UTC()
	oldest := newTestSession(now.Add(-2 * time.Hour))
	middle := newTestSession(now.Add(-1 * time.Hour))
	newest := newTestSession(now)

	for _, s := range []models.Session{middle, newest, oldest} {
		err := repo.Save(ctx, s)
		assert.NoError(err)
	}

	sessions, err = repo.FindAll(ctx)
	assert.NoError(err)
	assert.Len(sessions, 3)
	assert.Equal(newest.UniqueID, sessions[0].UniqueID)
	assert.Equal(middle.UniqueID, sessions[1].UniqueID)
	assert.Equal(oldest.UniqueID, sessions[2].UniqueID)
}

func TestMigrations(t *testing.T) {
	assert := assert.New(t)
	dbConf := dbutil.SqliteConfig{}
	db := dbutil.MustConnect(dbConf)
	db.SetMaxOpenConns(1)
	defer db.Close()

	migrationsPath := "../../resources/db/sqlite"

	err := dbutil.Upgrade(migrationsPath, dbConf.Driver(), db)
	assert.NoError(err)
	assert.Equal(1, countTables(db, "session"))

	err = dbutil.Downgrade(migrationsPath, dbConf.Driver(), db)
	assert.NoError(err)
	assert.Equal(0, countTables(db, "session"))
}

// ---- Test utils ----

func countTables(db *sql.DB, name string) int {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
	if err != nil {
		log.Panic("Failed to count tables", err)
	}

	return count
}

func newTestSession(createdAt time.Time) models.Session {
	uniqueID := id.New()
	return models.Session{
		ID:               id.New(),
		Type:             models.TypeAdmin,
		UniqueID:         uniqueID,
		ShareURL:         "http://localhost:3000/session/" + uniqueID,
		AgoraChannelName: uniqueID,
		Active:           true,
		CreatedAt:        createdAt,
	}
}

func createTestDB() *sql.DB {
	dbConf := dbutil.SqliteConfig{}
	migrationsPath := "../../resources/db/sqlite"
	db := dbutil.MustConnect(dbConf)
	// Every new connection to an in-memory database starts empty.
	db.SetMaxOpenConns(1)

	err := dbutil.Downgrade(migrationsPath, dbConf.Driver(), db)
	if err != nil {
		log.Panic("Failed to apply downgrade migratons", err)
	}

	err = dbutil.Upgrade(migrationsPath, dbConf.Driver(), db)
	if err != nil {
		log.Panic("Failed to apply upgrade migratons", err)
	}

	return db
}
