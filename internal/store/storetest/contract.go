package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/store"
)

// RunRepository checks the behaviour every store.Repository must share.
// open must return an empty repository for each call.
func RunRepository(t *testing.T, open func(t *testing.T) store.Repository) {
	cases := []struct {
		name string
		fn   func(t *testing.T, r store.Repository)
	}{
		{"UserUniqueEmail", testUserUniqueEmail},
		{"MessagesOrderedAndTouchConversation", testMessagesOrdered},
		{"AddMessageRejectsForeignConversation", testAddMessageForeign},
		{"AddMessageMergesAttachmentsConcurrently", testConcurrentAttachments},
		{"ListConversationsScopedAndOrdered", testListConversations},
		{"UpdateConversationPatch", testUpdateConversation},
		{"DeleteConversationCascades", testDeleteConversation},
		{"MagicLinkConsumeOnce", testMagicLink},
		{"RevokeAndPurge", testRevokeAndPurge},
		{"ProfileUpsert", testProfileUpsert},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

func createUser(t *testing.T, r store.Repository, id, email string) {
	t.Helper()
	now := time.Now()
	if err := r.CreateUser(context.Background(), &domain.User{
		ID: id, Email: email, Provider: domain.ProviderEmail, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
}

func createConversation(t *testing.T, r store.Repository, id, userID string, at time.Time) {
	t.Helper()
	if err := r.CreateConversation(context.Background(), &domain.Conversation{
		ID: id, UserID: userID, Title: "t", Type: domain.TypeGeneral, CreatedAt: at, UpdatedAt: at,
	}); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
}

func testUserUniqueEmail(t *testing.T, r store.Repository) {
	createUser(t, r, "u1", "ada@example.com")

	err := r.CreateUser(context.Background(), &domain.User{
		ID: "u2", Email: "ada@example.com", Provider: domain.ProviderEmail, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate email error = %v, want ErrConflict", err)
	}

	got, err := r.GetUserByEmail(context.Background(), "ADA@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if got.ID != "u1" {
		t.Fatalf("GetUserByEmail() id = %q, want u1", got.ID)
	}

	if _, err := r.GetUserByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetUserByID(missing) error = %v, want ErrNotFound", err)
	}
}

func testMessagesOrdered(t *testing.T, r store.Repository) {
	ctx := context.Background()
	createUser(t, r, "u1", "ada@example.com")

	base := time.UnixMilli(time.Now().UnixMilli())
	createConversation(t, r, "c1", "u1", base)

	// Same timestamp: insertion order breaks the tie.
	for i, id := range []string{"m1", "m2", "m3"} {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		if err := r.AddMessage(ctx, "u1", &domain.Message{
			ID: id, ConversationID: "c1", Role: role, Content: id,
			Attachments: []string{"https://files/" + id}, CreatedAt: base.Add(time.Second),
		}); err != nil {
			t.Fatalf("AddMessage(%s) error = %v", id, err)
		}
	}

	msgs, err := r.ListMessages(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 3 || msgs[0].ID != "m1" || msgs[1].ID != "m2" || msgs[2].ID != "m3" {
		t.Fatalf("unexpected order: %+v", msgs)
	}
	if len(msgs[0].Attachments) != 1 {
		t.Fatalf("attachments not persisted: %+v", msgs[0])
	}

	conv, err := r.GetConversation(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if !conv.UpdatedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("updated_at = %v, want %v", conv.UpdatedAt, base.Add(time.Second))
	}
	if len(conv.Metadata.Attachments) != 3 {
		t.Fatalf("metadata attachments = %v, want 3", conv.Metadata.Attachments)
	}
}

func testAddMessageForeign(t *testing.T, r store.Repository) {
	createUser(t, r, "u1", "ada@example.com")
	createUser(t, r, "u2", "eve@example.com")
	createConversation(t, r, "c1", "u1", time.Now())

	err := r.AddMessage(context.Background(), "u2", &domain.Message{
		ID: "m1", ConversationID: "c1", Role: domain.RoleUser, Content: "hi", CreatedAt: time.Now(),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("AddMessage() error = %v, want ErrNotFound", err)
	}
}

func testConcurrentAttachments(t *testing.T, r store.Repository) {
	ctx := context.Background()
	createUser(t, r, "u1", "ada@example.com")
	createConversation(t, r, "c1", "u1", time.Now())

	const senders = 8
	var wg sync.WaitGroup
	errs := make(chan error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- r.AddMessage(ctx, "u1", &domain.Message{
				ID:             fmt.Sprintf("m%d", i),
				ConversationID: "c1",
				Role:           domain.RoleUser,
				Content:        "see attached",
				Attachments:    []string{fmt.Sprintf("https://files/%d.pdf", i)},
				CreatedAt:      time.Now(),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AddMessage() error = %v", err)
		}
	}

	conv, err := r.GetConversation(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if len(conv.Metadata.Attachments) != senders {
		t.Fatalf("metadata attachments = %v, want %d entries", conv.Metadata.Attachments, senders)
	}
}

func testListConversations(t *testing.T, r store.Repository) {
	ctx := context.Background()
	createUser(t, r, "u1", "ada@example.com")
	createUser(t, r, "u2", "eve@example.com")

	now := time.Now()
	createConversation(t, r, "old", "u1", now.Add(-time.Hour))
	createConversation(t, r, "new", "u1", now)
	createConversation(t, r, "other", "u2", now)

	convs, err := r.ListConversations(ctx, "u1")
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(convs) != 2 || convs[0].ID != "new" || convs[1].ID != "old" {
		t.Fatalf("unexpected conversations: %+v", convs)
	}

	empty, err := r.ListConversations(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListConversations(nobody) error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}

func testUpdateConversation(t *testing.T, r store.Repository) {
	ctx := context.Background()
	createUser(t, r, "u1", "ada@example.com")
	created := time.UnixMilli(time.Now().UnixMilli())
	createConversation(t, r, "c1", "u1", created)

	title := "Renamed"
	meta := domain.ConversationMetadata{JobDescription: "Staff engineer"}
	later := created.Add(time.Minute)
	got, err := r.UpdateConversation(ctx, "u1", "c1", domain.ConversationPatch{Title: &title, Metadata: &meta}, later)
	if err != nil {
		t.Fatalf("UpdateConversation() error = %v", err)
	}
	if got.Title != "Renamed" || got.Metadata.JobDescription != "Staff engineer" || !got.UpdatedAt.Equal(later) {
		t.Fatalf("unexpected patch result: %+v", got)
	}

	if _, err := r.UpdateConversation(ctx, "u1", "missing", domain.ConversationPatch{}, later); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdateConversation(missing) error = %v, want ErrNotFound", err)
	}
}

func testDeleteConversation(t *testing.T, r store.Repository) {
	ctx := context.Background()
	createUser(t, r, "u1", "ada@example.com")
	createConversation(t, r, "c1", "u1", time.Now())
	if err := r.AddMessage(ctx, "u1", &domain.Message{
		ID: "m1", ConversationID: "c1", Role: domain.RoleAssistant, Content: "hello", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	if err := r.DeleteConversation(ctx, "u1", "c1"); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}
	if err := r.DeleteConversation(ctx, "u1", "c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second DeleteConversation() error = %v, want ErrNotFound", err)
	}
	if _, err := r.ListMessages(ctx, "u1", "c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ListMessages() after delete error = %v, want ErrNotFound", err)
	}

	// Reusing the id must not resurrect the old messages.
	createConversation(t, r, "c1", "u1", time.Now())
	msgs, err := r.ListMessages(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("messages left after delete: %d", len(msgs))
	}
}

func testMagicLink(t *testing.T, r store.Repository) {
	ctx := context.Background()
	now := time.Now()

	if err := r.CreateMagicLink(ctx, &domain.MagicLink{
		TokenHash: "h", Email: "ada@example.com", ExpiresAt: now.Add(time.Minute), CreatedAt: now,
	}); err != nil {
		t.Fatalf("CreateMagicLink() error = %v", err)
	}

	link, err := r.ConsumeMagicLink(ctx, "h", now)
	if err != nil {
		t.Fatalf("ConsumeMagicLink() error = %v", err)
	}
	if link.Email != "ada@example.com" || link.UsedAt == nil {
		t.Fatalf("unexpected link: %+v", link)
	}

	if _, err := r.ConsumeMagicLink(ctx, "h", now); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("second ConsumeMagicLink() error = %v, want ErrTokenExpired", err)
	}
}

func testRevokeAndPurge(t *testing.T, r store.Repository) {
	ctx := context.Background()
	now := time.Now()

	if err := r.RevokeToken(ctx, "jti-1", now.Add(-time.Minute)); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}
	if err := r.RevokeToken(ctx, "jti-1", now.Add(-time.Minute)); err != nil {
		t.Fatalf("repeated RevokeToken() error = %v", err)
	}
	if err := r.RevokeToken(ctx, "jti-2", now.Add(time.Hour)); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}

	revoked, err := r.IsTokenRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("IsTokenRevoked(jti-1) = %v, %v", revoked, err)
	}

	n, err := r.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("PurgeExpired() = %d, want 1", n)
	}

	revoked, _ = r.IsTokenRevoked(ctx, "jti-2")
	if !revoked {
		t.Fatal("unexpired revocation was purged")
	}
}

func testProfileUpsert(t *testing.T, r store.Repository) {
	ctx := context.Background()
	createUser(t, r, "u1", "ada@example.com")

	if _, err := r.GetProfile(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetProfile() before upsert error = %v, want ErrNotFound", err)
	}

	p := &domain.Profile{UserID: "u1", FullName: "Ada", Skills: []string{"go", "sql"}, UpdatedAt: time.Now()}
	if err := r.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("UpsertProfile() error = %v", err)
	}
	p.Headline = "Engineer"
	if err := r.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("second UpsertProfile() error = %v", err)
	}

	got, err := r.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.Headline != "Engineer" || len(got.Skills) != 2 {
		t.Fatalf("unexpected profile: %+v", got)
	}
}
