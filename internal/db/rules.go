package db

import (
	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/models"
)

// The guards below state when a conditional write is refused. Memory runs
// them before writing; Store runs them against the fresh row after a
// conditional UPDATE matched nothing, to report why.

func sendGuard(c models.Chat, msg *models.Message) error {
	if msg.SenderType == models.SenderOperator && msg.SenderID == nil {
		return errs.Empty("sender_id")
	}
	// Only a closed chat cannot move to active.
	if !c.Status.CanTransition(models.ChatActive) {
		return errs.ErrAlreadyClosed
	}
	if msg.SenderType == models.SenderOperator && c.Status != models.ChatWaiting {
		if !c.AssignedTo(*msg.SenderID) {
			return errs.ErrAlreadyClaimed
		}
	}
	return nil
}

func assignGuard(c models.Chat, to, holder *int64) error {
	if !c.Status.CanTransition(models.ChatActive) {
		return errs.ErrAlreadyClosed
	}
	if to == nil && c.Status != models.ChatWaiting {
		return errs.Assignment("an active chat must keep an assignee")
	}
	return holderGuard(c, holder)
}

func closeGuard(c models.Chat, holder *int64) error {
	if !c.Status.CanTransition(models.ChatClosed) {
		return errs.ErrAlreadyClosed
	}
	return holderGuard(c, holder)
}

func holderGuard(c models.Chat, holder *int64) error {
	if holder != nil && c.AssignedOperatorID != nil && !c.AssignedTo(*holder) {
		return errs.ErrAlreadyAssignedElsewhere
	}
	return nil
}

func ratingGuard(c models.Chat, operatorID int64) error {
	if c.Status != models.ChatClosed {
		return errs.ErrNotClosed
	}
	if !c.AssignedTo(operatorID) {
		return errs.Assignment("operator was not the assignee when the chat closed")
	}
	return nil
}
