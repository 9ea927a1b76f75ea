package db

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/keyword-collector/internal/types"
)

func TestRunFromResult(t *testing.T) {
	id := uuid.New()
	result := &types.CollectionResult{
		RunID:                 id.String(),
		Status:                types.StatusSuccess,
		Stage:                 "persisted",
		Category:              "панели",
		Query:                 "панели для кухни",
		FilteringMethod:       types.FilteringMethodLLM,
		OriginalKeywordsCount: 40,
		FilteredKeywordsCount: 2,
		DurationMS:            1200,
	}
	artifact := &types.KeywordArtifact{RunID: id.String(), Keywords: []string{"кухня"}}

	run, err := RunFromResult(result, artifact)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, []string{}, run.Purposes, "nil slices become empty arrays")
	assert.Equal(t, []string{}, run.AdditionalParams)
	assert.Equal(t, int64(1200), run.DurationMS)

	var decoded types.KeywordArtifact
	require.NoError(t, json.Unmarshal(run.Artifact, &decoded))
	assert.Equal(t, []string{"кухня"}, decoded.Keywords)
}

func TestRunFromResult_Errors(t *testing.T) {
	_, err := RunFromResult(nil, nil)
	assert.Error(t, err)

	_, err = RunFromResult(&types.CollectionResult{RunID: "not-a-uuid"}, nil)
	assert.ErrorContains(t, err, "invalid run id")

	run, err := RunFromResult(&types.CollectionResult{RunID: uuid.NewString(), Status: types.StatusError}, nil)
	require.NoError(t, err)
	assert.Nil(t, run.Artifact)
}

func TestMigrationsEmbedded(t *testing.T) {
	sql, err := migrations.ReadFile("migrations/001_collection_runs.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sql), "CREATE TABLE IF NOT EXISTS collection_runs")
}
