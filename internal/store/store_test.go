package store

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aerrors "github.com/ella-systems/ella-agent/internal/errors"
)

func testDB(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetProject(t *testing.T) {
	ctx := context.Background()
	s := testDB(t)

	p := &Project{Name: "billing-service", Description: "invoice pipeline"}
	require.NoError(t, s.CreateProject(ctx, p))
	require.NotEmpty(t, p.ID)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "billing-service", got.Name)
	assert.Equal(t, "planning", got.Stage)
	assert.Equal(t, 0, got.Confidence)
}

func TestGetProjectNotFound(t *testing.T) {
	s := testDB(t)

	_, err := s.GetProject(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, aerrors.ErrNotFound))
}

func TestUpdateProjectStage(t *testing.T) {
	ctx := context.Background()
	s := testDB(t)

	p := &Project{Name: "x"}
	require.NoError(t, s.CreateProject(ctx, p))

	require.NoError(t, s.UpdateProjectStage(ctx, p.ID, "implementation"))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "implementation", got.Stage)

	err = s.UpdateProjectStage(ctx, "missing", "review")
	assert.True(t, errors.Is(err, aerrors.ErrNotFound))
}

func TestUpdateProjectConfidence(t *testing.T) {
	ctx := context.Background()
	s := testDB(t)

	p := &Project{Name: "x"}
	require.NoError(t, s.CreateProject(ctx, p))
	require.NoError(t, s.UpdateProjectConfidence(ctx, p.ID, 85))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 85, got.Confidence)
}

func TestChatOrderIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := testDB(t)

	p := &Project{Name: "x"}
	require.NoError(t, s.CreateProject(ctx, p))

	contents := []string{"first", "second", "third"}
	var lastSeq int64
	for _, c := range contents {
		seq, err := s.AppendChat(ctx, p.ID, ChatRoleAssistant, c)
		require.NoError(t, err)
		assert.Greater(t, seq, lastSeq)
		lastSeq = seq
	}

	msgs, err := s.ChatHistory(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, contents[i], m.Content)
	}
}

func TestChatHistoryScopedToProject(t *testing.T) {
	ctx := context.Background()
	s := testDB(t)

	a := &Project{Name: "a"}
	b := &Project{Name: "b"}
	require.NoError(t, s.CreateProject(ctx, a))
	require.NoError(t, s.CreateProject(ctx, b))

	_, err := s.AppendChat(ctx, a.ID, ChatRoleUser, "for a")
	require.NoError(t, err)
	_, err = s.AppendChat(ctx, b.ID, ChatRoleUser, "for b")
	require.NoError(t, err)

	msgs, err := s.ChatHistory(ctx, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "for a", msgs[0].Content)
}

func TestArtifactsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testDB(t)

	p := &Project{Name: "x"}
	require.NoError(t, s.CreateProject(ctx, p))

	require.NoError(t, s.SaveArtifact(ctx, &Artifact{ProjectID: p.ID, Kind: "plan", Content: "step 1"}))
	require.NoError(t, s.SaveArtifact(ctx, &Artifact{ProjectID: p.ID, Kind: "review", Content: "lgtm"}))

	arts, err := s.ListArtifacts(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, "plan", arts[0].Kind)
	assert.Equal(t, "review", arts[1].Kind)
}
