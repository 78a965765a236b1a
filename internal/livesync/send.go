package livesync

import (
	"context"

	"github.com/adamavenir/chatsync/internal/types"
)

// dispatchSend posts an optimistic message and arms its confirmation
// window.
func (c *Coordinator) dispatchSend(s *session, tempID, body, correlationID string) {
	slot, ok := s.confirmTimers[tempID]
	if !ok {
		slot = &timerSlot{}
		s.confirmTimers[tempID] = slot
	}
	c.arm(s, slot, c.cfg.ConfirmTimeout, func() {
		c.onConfirmTimeout(s, tempID)
	})

	gen := s.gen
	ctx := s.ctx
	conversationID := s.conversationID
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
		msg, ok, err := c.cfg.API.CreateMessage(reqCtx, conversationID, body, correlationID)
		c.postGen(gen, func() {
			c.onSendResult(s, tempID, body, msg, ok, err)
		})
	}()
}

func (c *Coordinator) onSendResult(s *session, tempID, body string, msg types.Message, ok bool, err error) {
	current, present := s.store.Get(tempID)
	switch {
	case err != nil:
		s.forgetSend(tempID)
		if !present || !current.Pending {
			// Already confirmed through a transport, or already failed.
			return
		}
		c.failSend(s, tempID, body, err)
	case ok:
		s.forgetSend(tempID)
		if msg.AuthorDisplayName == "" && present {
			msg.AuthorDisplayName = current.AuthorDisplayName
		}
		s.store.ReconcileOptimistic(tempID, msg)
		c.resolveName(s, msg)
	default:
		// Accepted without a usable body: settle through a snapshot.
		if !present {
			s.forgetSend(tempID)
			return
		}
		s.accepted[tempID] = s.snapshotSeq
		c.arm(s, &s.refetchTimer, c.cfg.RefetchDelay, func() {
			c.fetchSnapshot(s, nil)
		})
	}
}

// onConfirmTimeout refetches once; a send still unconfirmed afterwards is
// marked failed.
func (c *Coordinator) onConfirmTimeout(s *session, tempID string) {
	m, ok := s.store.Get(tempID)
	if !ok || !m.Pending {
		return
	}
	c.debugf("confirmation window expired for %s", tempID)
	c.fetchSnapshot(s, func() {
		m, ok := s.store.Get(tempID)
		if !ok || !m.Pending {
			return
		}
		c.failSend(s, tempID, m.Body, ErrConfirmTimeout)
	})
}

func (c *Coordinator) failSend(s *session, tempID, body string, err error) {
	s.forgetSend(tempID)
	s.store.MarkFailed(tempID)
	c.cfg.Observer.ObserveSendFailure()
	c.reportError(&SendFailedError{
		ConversationID: s.conversationID,
		TempID:         tempID,
		Body:           body,
		Err:            err,
	})
}

func (c *Coordinator) dispatchEdit(s *session, messageID, body string) {
	gen := s.gen
	ctx := s.ctx
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
		msg, ok, err := c.cfg.API.UpdateMessage(reqCtx, messageID, body)
		c.postGen(gen, func() {
			switch {
			case err != nil:
				c.reportError(&RequestError{Op: "edit", MessageID: messageID, Err: err})
			case ok:
				if msg.ID == "" {
					msg.ID = messageID
				}
				s.store.ApplyUpdate(msg)
			default:
				c.arm(s, &s.refetchTimer, c.cfg.RefetchDelay, func() {
					c.fetchSnapshot(s, nil)
				})
			}
		})
	}()
}

func (c *Coordinator) dispatchDelete(s *session, messageID string) {
	gen := s.gen
	ctx := s.ctx
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
		err := c.cfg.API.DeleteMessage(reqCtx, messageID)
		c.postGen(gen, func() {
			if err != nil {
				c.reportError(&RequestError{Op: "delete", MessageID: messageID, Err: err})
				return
			}
			s.store.ApplyDelete(messageID)
		})
	}()
}
