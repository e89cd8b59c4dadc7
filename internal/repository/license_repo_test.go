package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/license_go_server/internal/model"
	"github.com/qs3c/license_go_server/internal/testutil"
)

func TestLicenseRepository_GetByKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewLicenseRepository(db)
	license := testutil.TestLicense(t, db)

	got, err := repo.GetByKey(license.Key)
	require.NoError(t, err)
	assert.Equal(t, license.Key, got.Key)
	assert.Equal(t, model.LicenseStatusActive, got.Status)
}

func TestLicenseRepository_Revoke(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewLicenseRepository(db)
	license := testutil.TestLicense(t, db)

	require.NoError(t, repo.Revoke(license.Key, time.Now().UTC()))

	got, err := repo.GetByKey(license.Key)
	require.NoError(t, err)
	assert.Equal(t, model.LicenseStatusRevoked, got.Status)
	assert.NotNil(t, got.RevokedAt)
}

func TestLicenseRepository_FlagForReview(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewLicenseRepository(db)
	license := testutil.TestLicense(t, db)

	require.NoError(t, repo.FlagForReview(license.Key, "扣费超出剩余额度", time.Now().UTC()))

	flagged, err := repo.ListFlagged()
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, license.Key, flagged[0].Key)
	assert.Equal(t, "扣费超出剩余额度", flagged[0].FlagReason)
}
