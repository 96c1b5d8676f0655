package main

import (
	"bytes"
	"errors"
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appmigrations "github.com/wolfman30/clinic-scheduler/migrations"
)

type fakeMigrator struct {
	upErr, downErr, versionErr error
	version                    uint
	dirty                      bool
	forced                     int
	calls                      []string
}

func (f *fakeMigrator) Up() error   { f.calls = append(f.calls, "up"); return f.upErr }
func (f *fakeMigrator) Down() error { f.calls = append(f.calls, "down"); return f.downErr }
func (f *fakeMigrator) Force(v int) error {
	f.calls = append(f.calls, "force")
	f.forced = v
	return nil
}
func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }

func TestRunDefaultsToUp(t *testing.T) {
	m := &fakeMigrator{}
	var out bytes.Buffer
	require.NoError(t, run(m, nil, &out))
	assert.Equal(t, []string{"up"}, m.calls)
	assert.Contains(t, out.String(), "migrations complete")
}

func TestRunUpNoChangeIsSuccess(t *testing.T) {
	m := &fakeMigrator{upErr: migrate.ErrNoChange}
	assert.NoError(t, run(m, []string{"up"}, &bytes.Buffer{}))

	m = &fakeMigrator{upErr: errors.New("syntax error")}
	assert.ErrorContains(t, run(m, []string{"up"}, &bytes.Buffer{}), "migrate up")
}

func TestRunDownAndVersion(t *testing.T) {
	m := &fakeMigrator{version: 1}
	var out bytes.Buffer
	require.NoError(t, run(m, []string{"down"}, &out))
	require.NoError(t, run(m, []string{"version"}, &out))
	assert.Contains(t, out.String(), "migrations rolled back")
	assert.Contains(t, out.String(), "version 1 (dirty=false)")

	out.Reset()
	m = &fakeMigrator{versionErr: migrate.ErrNilVersion}
	require.NoError(t, run(m, []string{"version"}, &out))
	assert.Contains(t, out.String(), "no migrations applied")
}

func TestRunForce(t *testing.T) {
	m := &fakeMigrator{}
	require.NoError(t, run(m, []string{"force", "1"}, &bytes.Buffer{}))
	assert.Equal(t, 1, m.forced)

	assert.Error(t, run(m, []string{"force"}, &bytes.Buffer{}))
	assert.Error(t, run(m, []string{"force", "x"}, &bytes.Buffer{}))
	assert.ErrorContains(t, run(m, []string{"sideways"}, &bytes.Buffer{}), "unknown command")
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(appmigrations.FS, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(appmigrations.FS, "*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))

	schema, err := fs.ReadFile(appmigrations.FS, "0001_init.up.sql")
	require.NoError(t, err)
	for _, table := range []string{"patients", "doctors", "schedules", "appointments"} {
		assert.Contains(t, string(schema), "CREATE TABLE IF NOT EXISTS "+table)
	}
}
