package service

import (
	"context"
	"sync"
	"testing"

	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/models"
)

// Ivan opens a chat, operators 7 and 9 race for it, the winner closes it
// and QC reviewer 3 rates the winner.
func TestTicketLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	qc := f.user(t, "qc3", models.RoleOKK)
	op7 := f.user(t, "op7", models.RoleOperator)
	op9 := f.user(t, "op9", models.RoleOperator)

	chat := f.chat(t, "Ivan")
	if chat.Status != models.ChatWaiting || chat.AssignedOperatorID != nil {
		t.Fatalf("new chat must be waiting and unassigned: %+v", chat)
	}
	observed := []models.ChatStatus{chat.Status}

	var (
		wg   sync.WaitGroup
		errA error
		errB error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = f.svc.Chats.SendMessage(ctx, op7, chat.ID, models.SenderOperator, nil, "Hello")
	}()
	go func() {
		defer wg.Done()
		_, errB = f.svc.Chats.SendMessage(ctx, op9, chat.ID, models.SenderOperator, nil, "Hi there")
	}()
	wg.Wait()

	if (errA == nil) == (errB == nil) {
		t.Fatalf("exactly one claim must win: op7=%v op9=%v", errA, errB)
	}
	winner, loserErr := op7, errB
	if errA != nil {
		winner, loserErr = op9, errA
	}
	if errs.KindOf(loserErr) != errs.KindConflict {
		t.Fatalf("loser must observe a conflict, got %v", loserErr)
	}

	active, _ := f.repo.GetChat(ctx, chat.ID)
	if active.Status != models.ChatActive || !active.AssignedTo(winner.UserID) {
		t.Fatalf("unexpected chat after claim %+v", active)
	}
	observed = append(observed, active.Status)

	closed, err := f.svc.Assignment.Close(ctx, winner, chat.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	observed = append(observed, closed.Status)
	msgs, _ := f.svc.Chats.GetMessages(ctx, winner, chat.ID)
	if msgs[len(msgs)-1].SenderType != models.SenderSystem {
		t.Fatalf("close must append a system message")
	}

	for i := 1; i < len(observed); i++ {
		if !observed[i-1].CanTransition(observed[i]) {
			t.Fatalf("invalid status transition: %v", observed)
		}
	}

	if _, err := f.svc.Ratings.AddRating(ctx, qc, RatingInput{ChatID: chat.ID, OperatorID: winner.UserID, Score: 85}); err != nil {
		t.Fatalf("rate: %v", err)
	}
	ratings, err := f.svc.Ratings.ListRatings(ctx, winner, &winner.UserID)
	if err != nil || len(ratings) != 1 || ratings[0].Score != 85 {
		t.Fatalf("unexpected ratings %+v %v", ratings, err)
	}
	if mean := models.SummarizeRatings(ratings).Mean; mean != 85 {
		t.Fatalf("expected average 85, got %v", mean)
	}
}
