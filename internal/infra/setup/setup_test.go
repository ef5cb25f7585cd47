package setup

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retro-paint/internal/domain"
)

func TestInitDB_SQLiteAndMigrate(t *testing.T) {
	db, err := InitDB(DBConfig{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	require.NotNil(t, db)

	require.NoError(t, MigrateDB(db))
	assert.True(t, db.Migrator().HasTable(&domain.Room{}))
	assert.True(t, db.Migrator().HasTable(&domain.CanvasSnapshot{}))
}

func TestInitDB_Memory(t *testing.T) {
	db, err := InitDB(DBConfig{Driver: DriverMemory})
	assert.NoError(t, err)
	assert.Nil(t, db)
}

func TestInitDB_Errors(t *testing.T) {
	_, err := InitDB(DBConfig{Driver: "postgres"})
	assert.Error(t, err)

	_, err = InitDB(DBConfig{Driver: DriverMySQL})
	assert.Error(t, err, "mysql without user")

	assert.Error(t, MigrateDB(nil))
}

func TestDBConfig_DSN(t *testing.T) {
	cfg := DBConfig{User: "u", Password: "p", Host: "h", Port: "3306", Name: "paint"}
	assert.Equal(t, "u:p@tcp(h:3306)/paint?charset=utf8mb4&parseTime=True&loc=Local", cfg.DSN())
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := InitRedis(mr.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	// 没有服务监听的端口
	_, err = InitRedis("127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
