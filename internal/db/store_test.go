package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	if err := MigrateUp(ctx, url); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := New(ctx, url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStoreConcurrentClaimIntegration(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	const n = 8
	ids := make([]int64, n)
	for i := range ids {
		u := models.User{
			Username: fmt.Sprintf("claim-%d-%d", suffix, i),
			FullName: "Operator", Role: models.RoleOperator, Status: models.UserOnline, IsActive: true,
			PasswordHash: "x",
		}
		if err := store.CreateUser(ctx, &u); err != nil {
			t.Fatalf("create user: %v", err)
		}
		ids[i] = u.ID
	}
	chat := models.Chat{ClientName: "Ivan"}
	if err := store.CreateChat(ctx, &chat, "welcome"); err != nil {
		t.Fatalf("create chat: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []int64
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, _, err := store.AppendMessage(ctx, &models.Message{ChatID: chat.ID, SenderType: models.SenderOperator, SenderID: &id, Text: "mine"})
			if err == nil {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
				return
			}
			if !errors.Is(err, errs.ErrAlreadyClaimed) {
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	got, err := store.GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if got.Status != models.ChatActive || !got.AssignedTo(winners[0]) {
		t.Fatalf("unexpected chat state %+v", got)
	}
	msgs, _ := store.ListMessages(ctx, chat.ID)
	if len(msgs) != 2 {
		t.Fatalf("expected welcome plus winner message, got %d", len(msgs))
	}
}

func TestStoreCloseAndRateIntegration(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	op := models.User{Username: fmt.Sprintf("rate-op-%d", suffix), FullName: "Op", Role: models.RoleOperator, Status: models.UserOnline, IsActive: true, PasswordHash: "x"}
	qc := models.User{Username: fmt.Sprintf("rate-qc-%d", suffix), FullName: "QC", Role: models.RoleOKK, Status: models.UserOnline, IsActive: true, PasswordHash: "x"}
	for _, u := range []*models.User{&op, &qc} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	dup := models.User{Username: op.Username, FullName: "Dup", Role: models.RoleOperator, Status: models.UserOffline, PasswordHash: "x"}
	if err := store.CreateUser(ctx, &dup); !errors.Is(err, errs.ErrDuplicateUsername) {
		t.Fatalf("expected DUPLICATE_USERNAME, got %v", err)
	}

	chat := models.Chat{ClientName: "Ivan"}
	_ = store.CreateChat(ctx, &chat, "")
	if _, _, err := store.AppendMessage(ctx, &models.Message{ChatID: chat.ID, SenderType: models.SenderOperator, SenderID: &op.ID, Text: "hi"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	r := models.QCRating{ChatID: chat.ID, OperatorID: op.ID, QCUserID: qc.ID, Score: 85}
	if err := store.AddRating(ctx, &r); !errors.Is(err, errs.ErrNotClosed) {
		t.Fatalf("expected NOT_CLOSED, got %v", err)
	}
	other := op.ID + 100000
	if _, err := store.CloseChat(ctx, chat.ID, &other, "closed"); !errors.Is(err, errs.ErrAlreadyAssignedElsewhere) {
		t.Fatalf("expected ALREADY_ASSIGNED_ELSEWHERE, got %v", err)
	}
	if _, err := store.CloseChat(ctx, chat.ID, &op.ID, "closed"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, err := store.AppendMessage(ctx, &models.Message{ChatID: chat.ID, SenderType: models.SenderClient, Text: "late"}); !errors.Is(err, errs.ErrAlreadyClosed) {
		t.Fatalf("expected ALREADY_CLOSED, got %v", err)
	}
	if err := store.AddRating(ctx, &r); err != nil {
		t.Fatalf("add rating: %v", err)
	}
	list, err := store.ListRatings(ctx, &op.ID)
	if err != nil || len(list) != 1 || list[0].Score != 85 || list[0].QCUserName != "QC" {
		t.Fatalf("unexpected ratings %+v %v", list, err)
	}
}

func TestStoreUpdatedAtNeverRegressesUnderLockIntegration(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	chat := models.Chat{ClientName: "Ivan"}
	if err := store.CreateChat(ctx, &chat, ""); err != nil {
		t.Fatalf("create chat: %v", err)
	}

	// Hold the row lock so the send below starts its transaction and then waits.
	holder, err := store.Pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer holder.Rollback(ctx)
	if _, err := holder.Exec(ctx, `SELECT 1 FROM chats WHERE id = $1 FOR UPDATE`, chat.ID); err != nil {
		t.Fatalf("lock chat: %v", err)
	}

	type result struct {
		chat models.Chat
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, _, err := store.AppendMessage(ctx, &models.Message{ChatID: chat.ID, SenderType: models.SenderClient, Text: "waiting"})
		done <- result{c, err}
	}()

	time.Sleep(200 * time.Millisecond)
	var held time.Time
	if err := holder.QueryRow(ctx, `
		UPDATE chats SET updated_at = clock_timestamp() WHERE id = $1 RETURNING updated_at
	`, chat.ID).Scan(&held); err != nil {
		t.Fatalf("touch under lock: %v", err)
	}
	if err := holder.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("append: %v", res.err)
	}
	if res.chat.UpdatedAt.Before(held) {
		t.Fatalf("updated_at went backwards: %s before %s", res.chat.UpdatedAt, held)
	}
}
