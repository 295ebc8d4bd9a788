package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postbot/internal/accounts"
	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

// execute performs one run on a fresh snapshot: accounts in insertion
// order, each sending to every destination in insertion order. A failing
// account or destination is logged and skipped; only a panic or a store
// read failure aborts the run.
func (d *Dispatcher) execute(ctx context.Context, run *Run) (sum Summary, err error) {
	sum = Summary{RunID: run.ID, UserID: run.UserID}
	start := time.Now()
	// audit entries must land even after cancellation
	logCtx := context.WithoutCancel(ctx)
	log := d.log.With(logx.Int64("user", run.UserID), logx.String("run", run.ID))

	defer func() {
		sum.Duration = time.Since(start)
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil && errors.Is(err, context.Canceled) {
			sum.Cancelled, err = true, nil
		}
		switch {
		case err != nil:
			log.Error("broadcast aborted", logx.Err(err))
			d.audit(logCtx, run.UserID, storage.ActionMailingError, err.Error())
		case sum.Cancelled:
			err = context.Canceled
			log.Info("broadcast cancelled", logx.String("summary", sum.String()))
			d.audit(logCtx, run.UserID, storage.ActionMailingCancelled, sum.String())
		default:
			log.Info("broadcast finished", logx.String("summary", sum.String()), logx.Duration("took", sum.Duration))
			d.audit(logCtx, run.UserID, storage.ActionMailingFinished, sum.String())
		}
	}()

	accs, err := d.store.ListActiveAccounts(ctx, run.UserID)
	if err != nil {
		return sum, err
	}
	dests, err := d.store.ListActiveDestinations(ctx, run.UserID)
	if err != nil {
		return sum, err
	}
	msg, ok, err := d.store.CurrentMessage(ctx, run.UserID)
	if err != nil {
		return sum, err
	}
	if !ok {
		return sum, &PreconditionError{Reason: ErrNoMessage}
	}

	for _, acc := range accs {
		if ctx.Err() != nil {
			sum.Cancelled = true
			break
		}
		if !acc.HasToken() {
			sum.Skipped++
			continue
		}
		if d.sendFromAccount(ctx, logCtx, log, acc, dests, msg.Body, &sum) {
			sum.Cancelled = true
			break
		}
	}
	return sum, nil
}

// sendFromAccount reports true when the run was cancelled midway.
func (d *Dispatcher) sendFromAccount(ctx, logCtx context.Context, log logx.Logger, acc storage.Account, dests []storage.Destination, body string, sum *Summary) bool {
	creds, err := d.sender.Credentials(acc.Phone, acc.APIID, acc.APIHash)
	if err != nil {
		d.accountError(logCtx, log, acc, err, sum)
		return false
	}
	conn, err := d.sender.Acquire(ctx, creds, acc.SessionToken)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		d.accountError(logCtx, log, acc, err, sum)
		return false
	}
	defer d.sender.Release(acc.Phone, true)
	sum.Accounts++

	for _, dst := range dests {
		if ctx.Err() != nil {
			return true
		}
		err := d.sender.SendOne(ctx, conn, dst.Ident, body)
		if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return true
		}
		if err != nil {
			sum.Failed++
			log.Warn("send failed", logx.String("phone", acc.Phone), logx.String("dest", dst.Ident), logx.Err(err))
			d.audit(logCtx, acc.UserID, storage.ActionSendError, fmt.Sprintf("group: %s, error: %v", dst.Ident, err))
			continue
		}
		sum.Sent++
		log.Debug("message sent", logx.String("phone", acc.Phone), logx.String("dest", dst.Ident))
		d.audit(logCtx, acc.UserID, storage.ActionMessageSent, fmt.Sprintf("account: %s, group: %s", acc.Phone, dst.Ident))
	}
	return false
}

func (d *Dispatcher) accountError(ctx context.Context, log logx.Logger, acc storage.Account, err error, sum *Summary) {
	sum.AccountErrors++
	var ce *accounts.ConnectionError
	if errors.As(err, &ce) {
		err = ce.Err
	}
	log.Warn("account unavailable", logx.String("phone", acc.Phone), logx.Err(err))
	d.audit(ctx, acc.UserID, storage.ActionAccountError, fmt.Sprintf("account: %s, error: %v", acc.Phone, err))
}

func (d *Dispatcher) audit(ctx context.Context, userID int64, action, details string) {
	if err := d.store.AppendLog(ctx, storage.LogEntry{UserID: userID, Action: action, Details: details}); err != nil {
		d.log.Error("audit write failed", logx.String("action", action), logx.Err(err))
	}
}
