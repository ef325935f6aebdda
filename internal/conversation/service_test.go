package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/store"
	"github.com/ashureev/career-advisor/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSeedRepo struct {
	store.Repository
}

func (failingSeedRepo) AddMessage(context.Context, string, *domain.Message) error {
	return errors.New("insert failed")
}

func TestCreateSpecializedResume(t *testing.T) {
	repo := storetest.NewSQLite(t)
	session := storetest.SeedUser(t, repo, "ada@example.com")
	svc := NewService(repo)
	ctx := context.Background()

	conv, err := svc.CreateSpecialized(ctx, session, domain.TypeResume, "doc-1", "")
	require.NoError(t, err)
	assert.Equal(t, "Resume Review", conv.Title)
	assert.Equal(t, domain.TypeResume, conv.Type)
	assert.Equal(t, "doc-1", conv.Metadata.DocumentID)

	full, err := svc.FetchWithMessages(ctx, session, conv.ID)
	require.NoError(t, err)
	require.Len(t, full.Messages, 1)
	assert.Equal(t, domain.RoleAssistant, full.Messages[0].Role)
	assert.Equal(t, Greeting(domain.TypeResume), full.Messages[0].Content)
}

func TestCreateSpecializedTitles(t *testing.T) {
	repo := storetest.NewSQLite(t)
	session := storetest.SeedUser(t, repo, "ada@example.com")
	svc := NewService(repo)

	want := map[domain.ConversationType]string{
		domain.TypeResume:        "Resume Review",
		domain.TypeInterviewPrep: "Interview Preparation",
		domain.TypeCoverLetter:   "Cover Letter Assistant",
		domain.TypeJobSearch:     "Job Search Strategy",
		domain.TypeLinkedIn:      "LinkedIn Optimization",
		domain.TypeAssessment:    "Skills Assessment",
		domain.TypeGeneral:       "Career Advice",
	}
	for _, typ := range domain.ConversationTypes {
		conv, err := svc.CreateSpecialized(context.Background(), session, typ, "", "")
		require.NoError(t, err, typ)
		assert.Equal(t, want[typ], conv.Title, typ)

		full, err := svc.FetchWithMessages(context.Background(), session, conv.ID)
		require.NoError(t, err)
		require.NotEmpty(t, full.Messages)
		assert.Equal(t, domain.RoleAssistant, full.Messages[0].Role, typ)
	}
}

func TestCreateSpecializedKeepsConversationWhenSeedFails(t *testing.T) {
	repo := storetest.NewSQLite(t)
	session := storetest.SeedUser(t, repo, "ada@example.com")
	svc := NewService(failingSeedRepo{repo})

	conv, err := svc.CreateSpecialized(context.Background(), session, domain.TypeJobSearch, "", "")
	require.Error(t, err)
	require.NotNil(t, conv)

	msgs, err := repo.ListMessages(context.Background(), session.UserID, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCreateRequiresSession(t *testing.T) {
	svc := NewService(storetest.NewSQLite(t))

	_, err := svc.Create(context.Background(), nil, "x", domain.TypeGeneral, domain.ConversationMetadata{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = svc.List(context.Background(), &domain.Session{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestCreateRejectsUnknownType(t *testing.T) {
	repo := storetest.NewSQLite(t)
	session := storetest.SeedUser(t, repo, "ada@example.com")

	_, err := NewService(repo).Create(context.Background(), session, "x", "astrology", domain.ConversationMetadata{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestListOrderAndEmpty(t *testing.T) {
	repo := storetest.NewSQLite(t)
	session := storetest.SeedUser(t, repo, "ada@example.com")
	svc := NewService(repo)
	ctx := context.Background()

	convs, err := svc.List(ctx, session)
	require.NoError(t, err)
	assert.NotNil(t, convs)
	assert.Empty(t, convs)

	base := time.Now()
	svc.now = func() time.Time { return base }
	first, err := svc.Create(ctx, session, "first", domain.TypeGeneral, domain.ConversationMetadata{})
	require.NoError(t, err)
	svc.now = func() time.Time { return base.Add(time.Second) }
	second, err := svc.Create(ctx, session, "second", domain.TypeGeneral, domain.ConversationMetadata{})
	require.NoError(t, err)

	convs, err = svc.List(ctx, session)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, second.ID, convs[0].ID)

	svc.now = func() time.Time { return base.Add(2 * time.Second) }
	title := "renamed"
	_, err = svc.Update(ctx, session, first.ID, domain.ConversationPatch{Title: &title})
	require.NoError(t, err)

	convs, err = svc.List(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, first.ID, convs[0].ID)
	assert.Equal(t, "renamed", convs[0].Title)
}

func TestFetchForeignConversationIsNotFound(t *testing.T) {
	repo := storetest.NewSQLite(t)
	owner := storetest.SeedUser(t, repo, "ada@example.com")
	other := storetest.SeedUser(t, repo, "eve@example.com")
	svc := NewService(repo)
	ctx := context.Background()

	conv, err := svc.CreateSpecialized(ctx, owner, domain.TypeGeneral, "", "")
	require.NoError(t, err)

	_, err = svc.FetchWithMessages(ctx, other, conv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.Delete(ctx, other, conv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteCascadesMessages(t *testing.T) {
	repo := storetest.NewSQLite(t)
	session := storetest.SeedUser(t, repo, "ada@example.com")
	svc := NewService(repo)
	ctx := context.Background()

	conv, err := svc.CreateSpecialized(ctx, session, domain.TypeCoverLetter, "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, session, conv.ID))

	_, err = svc.FetchWithMessages(ctx, session, conv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.ListMessages(ctx, session.UserID, conv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateRejectsEmptyTitle(t *testing.T) {
	repo := storetest.NewSQLite(t)
	session := storetest.SeedUser(t, repo, "ada@example.com")
	svc := NewService(repo)

	conv, err := svc.Create(context.Background(), session, "", domain.TypeGeneral, domain.ConversationMetadata{})
	require.NoError(t, err)
	assert.Equal(t, "Career Advice", conv.Title)

	blank := "  "
	_, err = svc.Update(context.Background(), session, conv.ID, domain.ConversationPatch{Title: &blank})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
